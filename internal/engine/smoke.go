package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arp-standard/arp-conformance/internal/report"
	"github.com/arp-standard/arp-conformance/internal/spec"
)

// Smoke tier: GET-only reachability checks against the two universal
// endpoints, plus a version-compatibility assertion on the captured
// VersionInfo.

func (rn *run) checkHealth(ctx context.Context, chk *report.Check) {
	resp, err := rn.r.client.Send(ctx, http.MethodGet, "/v1/health", nil)
	if err != nil {
		transportFail(chk, err, false)
		return
	}
	chk.Exchange = newExchange(http.MethodGet, nil, resp)
	if rn.authRejected(chk, resp) {
		return
	}
	if resp.Status != http.StatusOK {
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("Expected 200, got %d", resp.Status)
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaHealth, "Health response") {
		return
	}
	if resp.ContentType != "application/json" {
		chk.Outcome = report.OutcomeWarn
		chk.Message = fmt.Sprintf("OK (unexpected Content-Type %q)", resp.ContentType)
		return
	}
	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

func (rn *run) checkVersion(ctx context.Context, chk *report.Check) {
	resp, err := rn.r.client.Send(ctx, http.MethodGet, "/v1/version", nil)
	if err != nil {
		transportFail(chk, err, false)
		return
	}
	chk.Exchange = newExchange(http.MethodGet, nil, resp)
	if rn.authRejected(chk, resp) {
		return
	}
	if resp.Status != http.StatusOK {
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("Expected 200, got %d", resp.Status)
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaVersionInfo, "Version response") {
		return
	}

	// Keep the parsed body for the compatibility check that follows.
	var info map[string]any
	if err := json.Unmarshal(resp.Body, &info); err == nil {
		rn.version = info
	}

	if resp.ContentType != "application/json" {
		chk.Outcome = report.OutcomeWarn
		chk.Message = fmt.Sprintf("OK (unexpected Content-Type %q)", resp.ContentType)
		return
	}
	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

// checkVersionCompat asserts the advertised API versions include the one
// this run validates against. No I/O: it consumes the VersionInfo the
// previous check captured.
func (rn *run) checkVersionCompat(chk *report.Check) {
	if rn.version == nil {
		chk.Outcome = report.OutcomeSkip
		chk.Message = "No usable VersionInfo (version check did not pass)"
		return
	}
	want := rn.r.index.Version()
	supported, _ := rn.version["supported_api_versions"].([]any)
	for _, v := range supported {
		if s, ok := v.(string); ok && s == want {
			chk.Outcome = report.OutcomePass
			chk.Message = "OK"
			return
		}
	}
	chk.Outcome = report.OutcomeFail
	chk.Message = fmt.Sprintf("supported_api_versions must include %q", want)
	if raw, err := json.Marshal(rn.version["supported_api_versions"]); err == nil {
		chk.Evidence = append(chk.Evidence, "supported_api_versions="+string(raw))
	}
}

package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/arp-standard/arp-conformance/internal/probe"
	"github.com/arp-standard/arp-conformance/internal/report"
	"github.com/arp-standard/arp-conformance/internal/spec"
)

// Deep tier: probes of optional endpoints a service may legitimately
// omit. A 404/405 is SKIP, not FAIL; strict mode decides whether skips
// count against the run. Probes use identifiers that cannot name a real
// run, so an implemented endpoint answers with its error envelope.

const sseSampleBytes = 2048

// optionalAbsent records SKIP when the endpoint answered in a way
// consistent with "not implemented".
func optionalAbsent(chk *report.Check, resp *probe.Response) bool {
	if resp.Status != http.StatusNotFound && resp.Status != http.StatusMethodNotAllowed {
		return false
	}
	chk.Outcome = report.OutcomeSkip
	chk.Message = "Endpoint not implemented (404/405)"
	return true
}

func (rn *run) stepCancelRun(ctx context.Context, chk *report.Check) {
	path := "/v1/runs/" + rn.r.ids.Token("run_conformance_") + ":cancel"
	body := map[string]any{}
	resp, err := rn.r.client.Send(ctx, http.MethodPost, path, body)
	if err != nil {
		transportFail(chk, err, true)
		return
	}
	if optionalAbsent(chk, resp) {
		return
	}
	chk.Exchange = newExchange(http.MethodPost, body, resp)
	if resp.Status >= 400 {
		if !rn.checkBody(chk, resp.Body, spec.SchemaError, "Error response") {
			return
		}
		chk.Outcome = report.OutcomePass
		chk.Message = "Endpoint responded with error envelope (shape OK)"
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaRunStatus, "RunStatus") {
		return
	}
	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

func (rn *run) stepStreamEvents(ctx context.Context, chk *report.Check) {
	path := "/v1/runs/" + rn.r.ids.Token("run_conformance_") + "/events"
	resp, err := rn.r.client.Sample(ctx, http.MethodGet, path, "text/event-stream", sseSampleBytes)
	if err != nil {
		transportFail(chk, err, true)
		return
	}
	if optionalAbsent(chk, resp) {
		return
	}
	chk.Exchange = newExchange(http.MethodGet, nil, resp)
	if resp.Status >= 400 {
		if !rn.checkBody(chk, resp.Body, spec.SchemaError, "Error response") {
			return
		}
		chk.Outcome = report.OutcomePass
		chk.Message = "Endpoint responded with error envelope (shape OK)"
		return
	}
	if resp.ContentType != "text/event-stream" {
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("Expected Content-Type text/event-stream, got %q", resp.ContentType)
		return
	}

	// Validate the first JSON event in the sampled window, if any.
	validated := false
	var evidence []string
	for _, line := range sseDataLines(string(resp.Body)) {
		violations, err := rn.r.check.Validate(spec.SchemaRunEvent, []byte(line))
		if err != nil {
			evidence = append(evidence, "event was not valid JSON: "+err.Error())
			continue
		}
		for _, v := range violations {
			evidence = append(evidence, v.String())
		}
		validated = true
		break
	}

	if len(evidence) > 0 {
		chk.Outcome = report.OutcomeWarn
		chk.Message = "SSE stream reachable; sampled event did not validate"
		chk.Evidence = append(chk.Evidence, evidence...)
		return
	}
	chk.Outcome = report.OutcomePass
	if validated {
		chk.Message = "OK"
	} else {
		chk.Message = "SSE stream reachable; no event validated from sample"
	}
}

func (rn *run) stepFetchTrace(ctx context.Context, chk *report.Check) {
	path := "/v1/runs/" + rn.r.ids.Token("run_conformance_") + "/trace"
	resp, err := rn.r.client.Send(ctx, http.MethodGet, path, nil)
	if err != nil {
		transportFail(chk, err, true)
		return
	}
	if optionalAbsent(chk, resp) {
		return
	}
	chk.Exchange = newExchange(http.MethodGet, nil, resp)
	if resp.Status >= 400 {
		if !rn.checkBody(chk, resp.Body, spec.SchemaError, "Error response") {
			return
		}
		chk.Outcome = report.OutcomePass
		chk.Message = "Endpoint responded with error envelope (shape OK)"
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaTraceResponse, "TraceResponse") {
		return
	}
	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

// sseDataLines extracts candidate JSON payload lines from a raw SSE
// sample: data-prefixed or bare lines that start an object.
func sseDataLines(sample string) []string {
	var out []string
	for _, raw := range strings.Split(sample, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if strings.HasPrefix(line, "{") {
			out = append(out, line)
		}
	}
	return out
}

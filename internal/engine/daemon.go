package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arp-standard/arp-conformance/internal/report"
	"github.com/arp-standard/arp-conformance/internal/spec"
)

// Daemon workflow: ensure a runtime profile exists, create an instance
// scheduled onto it, then submit a run against that instance. Profiles
// and instances created here are tracked for cleanup.

func (rn *run) stepListProfiles(ctx context.Context, chk *report.Check) {
	resp, err := rn.r.client.Send(ctx, http.MethodGet, "/v1/admin/runtime-profiles", nil)
	if err != nil {
		transportFail(chk, err, false)
		return
	}
	chk.Exchange = newExchange(http.MethodGet, nil, resp)
	if rn.authRejected(chk, resp) {
		return
	}
	if resp.Status >= 400 {
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("Expected 200 RuntimeProfileListResponse, got %d", resp.Status)
		chk.Evidence = append(chk.Evidence, rn.envelopeEvidence(resp.Body)...)
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaRuntimeProfileList, "RuntimeProfileListResponse") {
		return
	}
	var list struct {
		Profiles []any `json:"profiles"`
	}
	if err := json.Unmarshal(resp.Body, &list); err == nil {
		rn.profiles = list.Profiles
	}
	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

// stepEnsureProfile makes sure a runtime profile is available for the
// rest of the workflow. An explicitly pinned or already-listed profile
// is reused without touching the target; otherwise a throwaway profile
// is upserted and tracked for cleanup.
func (rn *run) stepEnsureProfile(ctx context.Context, chk *report.Check) {
	if name := rn.r.cfg.RuntimeProfile; name != "" {
		rn.vars["runtime_profile"] = name
		chk.Outcome = report.OutcomePass
		chk.Message = fmt.Sprintf("Using runtime profile %q", name)
		return
	}
	if len(rn.profiles) > 0 {
		if first, ok := rn.profiles[0].(map[string]any); ok {
			if name, ok := first["runtime_profile"].(string); ok && name != "" {
				rn.vars["runtime_profile"] = name
				chk.Outcome = report.OutcomePass
				chk.Message = fmt.Sprintf("Reusing existing runtime profile %q", name)
				return
			}
		}
	}

	name := rn.r.ids.Token("conformance_profile_")
	body := map[string]any{"description": "ARP conformance test profile"}
	path := "/v1/admin/runtime-profiles/" + name
	resp, err := rn.r.client.Send(ctx, http.MethodPut, path, body)
	if err != nil {
		transportFail(chk, err, false)
		return
	}
	chk.Exchange = newExchange(http.MethodPut, body, resp)
	if rn.authRejected(chk, resp) {
		return
	}
	if resp.Status >= 400 {
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("Expected 200 RuntimeProfile, got %d", resp.Status)
		chk.Evidence = append(chk.Evidence, rn.envelopeEvidence(resp.Body)...)
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaRuntimeProfile, "RuntimeProfile") {
		return
	}
	rn.vars["runtime_profile"] = name
	rn.track(resourceHandle{kind: "runtime-profile", id: name, deletePath: path})
	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

func (rn *run) stepCreateInstance(ctx context.Context, chk *report.Check) {
	body := map[string]any{
		"runtime_profile": rn.vars["runtime_profile"],
		"count":           1,
	}
	resp, err := rn.r.client.Send(ctx, http.MethodPost, "/v1/instances", body)
	if err != nil {
		transportFail(chk, err, false)
		return
	}
	chk.Exchange = newExchange(http.MethodPost, body, resp)
	if rn.authRejected(chk, resp) {
		return
	}
	if resp.Status >= 400 {
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("Expected 200 InstanceCreateResponse, got %d", resp.Status)
		chk.Evidence = append(chk.Evidence, rn.envelopeEvidence(resp.Body)...)
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaInstanceCreate, "InstanceCreateResponse") {
		return
	}

	var created struct {
		Instances []struct {
			InstanceID string `json:"instance_id"`
		} `json:"instances"`
	}
	_ = json.Unmarshal(resp.Body, &created)
	if len(created.Instances) == 0 || created.Instances[0].InstanceID == "" {
		chk.Outcome = report.OutcomeFail
		chk.Message = "InstanceCreateResponse.instances[0].instance_id missing"
		return
	}
	instanceID := created.Instances[0].InstanceID
	rn.vars["instance_id"] = instanceID
	rn.track(resourceHandle{kind: "instance", id: instanceID, deletePath: "/v1/instances/" + instanceID})
	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/arp-standard/arp-conformance/internal/poll"
	"github.com/arp-standard/arp-conformance/internal/probe"
	"github.com/arp-standard/arp-conformance/internal/report"
	"github.com/arp-standard/arp-conformance/internal/spec"
)

// Run workflow steps shared by the runtime and daemon service kinds:
// submit a minimal unit of work, poll its status until terminal, fetch
// its result. The runtime accepts synchronously (200), the daemon
// asynchronously (202); everything downstream of submission is
// identical.

// terminalRunStates are the states a run never leaves.
func isTerminalRunState(state string) bool {
	switch state {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

func (rn *run) stepCreateRun(ctx context.Context, chk *report.Check) {
	runID := rn.r.ids.Token("run_conformance_")
	body := map[string]any{
		"run_id": runID,
		"input":  map[string]any{"goal": "ARP conformance test run"},
		"limits": map[string]any{"timeout_ms": 10000, "max_steps": 1},
	}
	resp, err := rn.r.client.Send(ctx, http.MethodPost, "/v1/runs", body)
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
		chk.Message = fmt.Sprintf("Expected 200 RunStatus, got %d", resp.Status)
		chk.Evidence = append(chk.Evidence, rn.envelopeEvidence(resp.Body)...)
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaRunStatus, "RunStatus") {
		return
	}

	// The server may assign its own run id; prefer it.
	var status struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(resp.Body, &status); err == nil && status.RunID != "" {
		runID = status.RunID
	}
	rn.vars["run_id"] = runID

	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

func (rn *run) stepSubmitRun(ctx context.Context, chk *report.Check) {
	runID := rn.r.ids.Token("run_conformance_")
	body := map[string]any{
		"run_id":           runID,
		"input":            map[string]any{"goal": "ARP conformance daemon run"},
		"runtime_selector": map[string]any{"instance_id": rn.vars["instance_id"]},
		"limits":           map[string]any{"timeout_ms": 10000, "max_steps": 1},
	}
	resp, err := rn.r.client.Send(ctx, http.MethodPost, "/v1/runs", body)
	if err != nil {
		transportFail(chk, err, false)
		return
	}
	chk.Exchange = newExchange(http.MethodPost, body, resp)
	if rn.authRejected(chk, resp) {
		return
	}
	if resp.Status != http.StatusAccepted {
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("Expected 202 RunStatus, got %d", resp.Status)
		if resp.Status >= 400 {
			chk.Evidence = append(chk.Evidence, rn.envelopeEvidence(resp.Body)...)
		}
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaRunStatus, "RunStatus") {
		return
	}
	rn.vars["run_id"] = runID
	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

// runObservation is one poll sample: the raw response plus the state it
// reported.
type runObservation struct {
	resp  *probe.Response
	state string
}

// pollAbort carries a response that failed a poll iteration, so the
// check can attach it as evidence.
type pollAbort struct {
	resp     *probe.Response
	message  string
	evidence []string
}

func (e *pollAbort) Error() string { return e.message }

func (rn *run) stepPollRun(ctx context.Context, chk *report.Check) {
	path := "/v1/runs/" + rn.vars["run_id"]

	fetch := func(ctx context.Context) (runObservation, error) {
		resp, err := rn.r.client.Send(ctx, http.MethodGet, path, nil)
		if err != nil {
			return runObservation{}, err
		}
		if resp.Status >= 400 {
			return runObservation{}, &pollAbort{
				resp:     resp,
				message:  fmt.Sprintf("Expected 200 RunStatus, got %d", resp.Status),
				evidence: rn.envelopeEvidence(resp.Body),
			}
		}
		violations, err := rn.r.check.Validate(spec.SchemaRunStatus, resp.Body)
		if err != nil {
			return runObservation{}, &pollAbort{resp: resp, message: "RunStatus JSON parse failed", evidence: []string{err.Error()}}
		}
		if len(violations) > 0 {
			evidence := make([]string, len(violations))
			for i, v := range violations {
				evidence[i] = v.String()
			}
			return runObservation{}, &pollAbort{resp: resp, message: "RunStatus did not match schema", evidence: evidence}
		}
		var status struct {
			State string `json:"state"`
		}
		_ = json.Unmarshal(resp.Body, &status)
		return runObservation{resp: resp, state: status.State}, nil
	}

	obs, err := poll.Await(ctx, fetch,
		func(o runObservation) bool { return isTerminalRunState(o.state) },
		rn.r.cfg.PollTimeout, rn.r.cfg.PollInterval,
	)
	if err != nil {
		var timeout *poll.TimeoutError
		var abort *pollAbort
		switch {
		case errors.As(err, &timeout):
			chk.Outcome = report.OutcomeFail
			chk.Message = "Polling timed out before terminal state"
			if obs.resp != nil {
				chk.Exchange = newExchange(http.MethodGet, nil, obs.resp)
			}
		case errors.As(err, &abort):
			chk.Outcome = report.OutcomeFail
			chk.Message = abort.message
			chk.Exchange = newExchange(http.MethodGet, nil, abort.resp)
			chk.Evidence = append(chk.Evidence, abort.evidence...)
		default:
			transportFail(chk, err, false)
		}
		return
	}

	chk.Exchange = newExchange(http.MethodGet, nil, obs.resp)
	chk.Outcome = report.OutcomePass
	chk.Message = "Terminal state: " + obs.state
}

func (rn *run) stepFetchRunResult(ctx context.Context, chk *report.Check) {
	path := "/v1/runs/" + rn.vars["run_id"] + "/result"
	resp, err := rn.r.client.Send(ctx, http.MethodGet, path, nil)
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
		chk.Message = fmt.Sprintf("Expected 200 RunResult, got %d", resp.Status)
		chk.Evidence = append(chk.Evidence, rn.envelopeEvidence(resp.Body)...)
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaRunResult, "RunResult") {
		return
	}
	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

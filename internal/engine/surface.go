package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/arp-standard/arp-conformance/internal/registry"
	"github.com/arp-standard/arp-conformance/internal/report"
	"github.com/arp-standard/arp-conformance/internal/spec"
)

// Surface tier: one required-route probe per profile endpoint. Path
// parameters are filled with identifiers that cannot exist on the
// target, and mutating endpoints receive a deliberately invalid body, so
// no probe ever creates a real resource. Error responses must carry a
// schema-valid error envelope.

func (rn *run) surface(ctx context.Context) {
	prof, ok := registry.Profile(rn.r.cfg.Service)
	if !ok {
		return
	}
	for i, ep := range prof.Endpoints {
		chk := report.Check{
			ID:   fmt.Sprintf("surface.%02d", i+1),
			Name: ep.Method + " " + ep.PathTemplate,
		}
		start := time.Now()
		rn.surfaceEndpoint(ctx, &chk, ep)
		chk.DurationMS = time.Since(start).Milliseconds()
		rn.record(chk)
	}
}

func (rn *run) surfaceEndpoint(ctx context.Context, chk *report.Check, ep registry.Endpoint) {
	path := fillPath(rn.r.ids, ep.PathTemplate)

	var body any
	if ep.Method == http.MethodPost || ep.Method == http.MethodPut {
		body = map[string]any{}
	}

	resp, err := rn.r.client.Send(ctx, ep.Method, path, body)
	if err != nil {
		transportFail(chk, err, false)
		return
	}
	chk.Exchange = newExchange(ep.Method, body, resp)
	if rn.authRejected(chk, resp) {
		return
	}

	// An intentionally invalid mutation body must be rejected.
	if body != nil && resp.Status < 400 {
		chk.Outcome = report.OutcomeFail
		chk.Message = "Expected non-2xx for intentionally invalid request body"
		return
	}

	if ep.ExpectsNoContent && resp.Status == http.StatusNoContent {
		chk.Outcome = report.OutcomePass
		chk.Message = "OK (204)"
		return
	}

	if resp.Status < 400 {
		op, ok := rn.r.index.Operation(ep.Method, ep.PathTemplate)
		if !ok || op.ResponseSchema == "" {
			chk.Outcome = report.OutcomePass
			chk.Message = "OK"
			return
		}
		if op.ResponseIsArray {
			if !rn.checkArrayBody(chk, resp.Body, op.ResponseSchema, "Success response") {
				return
			}
		} else if !rn.checkBody(chk, resp.Body, op.ResponseSchema, "Success response") {
			return
		}
		chk.Outcome = report.OutcomePass
		chk.Message = "OK"
		return
	}

	if !rn.checkBody(chk, resp.Body, spec.SchemaError, "Error response") {
		return
	}
	chk.Outcome = report.OutcomePass
	chk.Message = "OK (error path)"
}

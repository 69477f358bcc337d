package engine

import (
	"context"
	"fmt"
	"net/http"
)

// resourceHandle identifies one resource a workflow step created on the
// target, and how to delete it.
type resourceHandle struct {
	kind       string
	id         string
	deletePath string
}

// track records a created resource for cleanup. Handles are tracked
// immediately on creation, so a later step failure never orphans them.
func (rn *run) track(h resourceHandle) {
	rn.handles = append(rn.handles, h)
}

// cleanup deletes tracked resources in reverse creation order. Failures
// are recorded as report annotations, never as check outcomes. Cleanup
// runs on its own context so it still executes after the run's context
// is canceled, and a cleanup timeout cannot stall the invocation.
func (rn *run) cleanup() {
	if len(rn.handles) == 0 {
		return
	}
	if rn.r.cfg.NoCleanup {
		rn.r.log.Info("cleanup disabled, leaving resources behind", "count", len(rn.handles))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultCleanupTimeout)
	defer cancel()

	for i := len(rn.handles) - 1; i >= 0; i-- {
		h := rn.handles[i]
		resp, err := rn.r.client.Send(ctx, http.MethodDelete, h.deletePath, nil)
		if err != nil {
			rn.rep.AddCleanupError(fmt.Sprintf("delete %s %s: %v", h.kind, h.id, err))
			continue
		}
		// 404 means someone else already removed it.
		if resp.Status >= 400 && resp.Status != http.StatusNotFound {
			rn.rep.AddCleanupError(fmt.Sprintf("delete %s %s: status %d", h.kind, h.id, resp.Status))
			continue
		}
		rn.r.log.Debug("cleaned up resource", "kind", h.kind, "id", h.id)
	}
}

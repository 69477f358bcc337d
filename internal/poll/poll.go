// Package poll provides a blocking retry-until-terminal primitive for
// awaiting asynchronous server-side state transitions.
package poll

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError is returned when the deadline passes before a terminal
// state is observed. It is distinct from a fetch error: the last fetch
// succeeded, the state just never became terminal.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("polling timed out after %s before reaching a terminal state", e.Timeout)
}

// Await repeatedly fetches a state and evaluates isTerminal, sleeping
// interval between attempts, until either a terminal state is observed
// or timeout elapses.
//
// Fetch errors abort immediately and are returned as-is. A context
// cancellation aborts with ctx.Err(). On timeout the last observed state
// is returned together with a *TimeoutError.
func Await[S any](
	ctx context.Context,
	fetch func(ctx context.Context) (S, error),
	isTerminal func(S) bool,
	timeout time.Duration,
	interval time.Duration,
) (S, error) {
	var last S
	deadline := time.Now().Add(timeout)

	for {
		state, err := fetch(ctx)
		if err != nil {
			return last, err
		}
		last = state
		if isTerminal(state) {
			return state, nil
		}
		if time.Now().Add(interval).After(deadline) {
			return last, &TimeoutError{Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}
}

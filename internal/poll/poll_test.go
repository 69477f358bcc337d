package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runState struct {
	State string
}

func terminal(s runState) bool {
	return s.State == "succeeded" || s.State == "failed"
}

func TestAwaitReturnsTerminalState(t *testing.T) {
	states := []string{"pending", "running", "succeeded", "never-reached"}
	calls := 0
	fetch := func(ctx context.Context) (runState, error) {
		s := runState{State: states[calls]}
		calls++
		return s, nil
	}

	got, err := Await(context.Background(), fetch, terminal, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", got.State)
	assert.Equal(t, 3, calls, "polling stops at the first terminal state")
}

func TestAwaitTimeoutReturnsLastState(t *testing.T) {
	fetch := func(ctx context.Context) (runState, error) {
		return runState{State: "running"}, nil
	}

	got, err := Await(context.Background(), fetch, terminal, 20*time.Millisecond, 5*time.Millisecond)
	require.Error(t, err)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 20*time.Millisecond, te.Timeout)
	assert.Equal(t, "running", got.State, "last observed state survives the timeout")
	assert.Contains(t, te.Error(), "20ms")
}

func TestAwaitFetchErrorAbortsImmediately(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	fetch := func(ctx context.Context) (runState, error) {
		calls++
		return runState{}, boom
	}

	_, err := Await(context.Background(), fetch, terminal, time.Second, time.Millisecond)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "fetch errors are not retried")
}

func TestAwaitContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(ctx context.Context) (runState, error) {
		cancel()
		return runState{State: "running"}, nil
	}

	got, err := Await(ctx, fetch, terminal, time.Second, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "running", got.State)
}

func TestAwaitZeroTimeoutStillFetchesOnce(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context) (runState, error) {
		calls++
		return runState{State: "succeeded"}, nil
	}

	got, err := Await(context.Background(), fetch, terminal, 0, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", got.State)
	assert.Equal(t, 1, calls)
}

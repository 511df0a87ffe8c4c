package initiator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	businessflow "github.com/callwatch/presenced/business_flow"
)

func TestBackoffDelay(t *testing.T) {
	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, backoffDelay(i))
	}
	// The last delay repeats forever.
	assert.Equal(t, 32*time.Second, backoffDelay(6))
	assert.Equal(t, 32*time.Second, backoffDelay(100))
}

func TestAmidTimeout(t *testing.T) {
	expected := []time.Duration{
		30 * time.Second,
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		480 * time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, amidTimeout(i))
	}
	assert.Equal(t, 480*time.Second, amidTimeout(5))
}

// timeoutError satisfies net.Error the way an HTTP client timeout does
type timeoutError struct{}

func (timeoutError) Error() string   { return "read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type fakeBootstrap struct {
	calls    []time.Duration
	response func(attempt int) error
}

func (f *fakeBootstrap) Run(ctx context.Context, amidTimeout time.Duration) error {
	attempt := len(f.calls)
	f.calls = append(f.calls, amidTimeout)
	return f.response(attempt)
}

func TestSweepEscalatesTimeoutsThenTerminates(t *testing.T) {
	bootstrap := &fakeBootstrap{
		response: func(int) error { return timeoutError{} },
	}
	loop := NewLoop(bootstrap, businessflow.NewStatusAggregator(), zap.NewNop())

	terminated := false
	loop.terminate = func() { terminated = true }

	ok := loop.sweep(context.Background())

	assert.False(t, ok)
	assert.True(t, terminated)
	require.Len(t, bootstrap.calls, len(amidTimeouts))
	assert.Equal(t, amidTimeouts, bootstrap.calls)
}

func TestSweepMarksInitializedOnSuccess(t *testing.T) {
	bootstrap := &fakeBootstrap{
		response: func(attempt int) error {
			if attempt == 0 {
				return timeoutError{}
			}
			return nil
		},
	}
	status := businessflow.NewStatusAggregator()
	loop := NewLoop(bootstrap, status, zap.NewNop())

	ok := loop.sweep(context.Background())

	assert.True(t, ok)
	assert.True(t, status.Initialized())
	require.Len(t, bootstrap.calls, 2)
	// The retry after a timeout runs with the escalated deadline.
	assert.Equal(t, 30*time.Second, bootstrap.calls[0])
	assert.Equal(t, 60*time.Second, bootstrap.calls[1])
}

func TestRestartCoalesces(t *testing.T) {
	loop := NewLoop(&fakeBootstrap{response: func(int) error { return nil }},
		businessflow.NewStatusAggregator(), zap.NewNop())

	loop.Restart()
	loop.Restart()
	loop.Restart()

	select {
	case <-loop.restart:
	default:
		t.Fatal("expected one pending restart trigger")
	}
	select {
	case <-loop.restart:
		t.Fatal("expected triggers to coalesce")
	default:
	}
}

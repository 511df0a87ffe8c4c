package initiator

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/callwatch/presenced/app/services"
	businessflow "github.com/callwatch/presenced/business_flow"
)

// retryBackoff is the delay before re-attempting a failed sweep; the last
// entry repeats forever.
var retryBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
}

// amidTimeouts escalates the AMI read deadline on consecutive timeouts. A
// timeout past the last entry means Asterisk cannot enumerate its state in
// any reasonable window; the process gives up.
var amidTimeouts = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	240 * time.Second,
	480 * time.Second,
}

// Bootstrap is one sweep attempt. Initiator implements it.
type Bootstrap interface {
	Run(ctx context.Context, amidTimeout time.Duration) error
}

// Loop drives bootstrap sweeps: one at startup and one per Restart trigger,
// each retried until it succeeds.
type Loop struct {
	bootstrap Bootstrap
	status    *businessflow.StatusAggregator
	logger    *zap.Logger
	restart   chan struct{}

	// terminate defaults to sending SIGTERM to the process; tests override it.
	terminate func()
}

// NewLoop creates the bootstrap loop
func NewLoop(bootstrap Bootstrap, status *businessflow.StatusAggregator, logger *zap.Logger) *Loop {
	return &Loop{
		bootstrap: bootstrap,
		status:    status,
		logger:    logger,
		restart:   make(chan struct{}, 1),
		terminate: func() {
			p, err := os.FindProcess(os.Getpid())
			if err == nil {
				p.Signal(syscall.SIGTERM)
			}
		},
	}
}

// Restart schedules a new sweep. Triggers arriving while a sweep runs or is
// already pending coalesce into one.
func (l *Loop) Restart() {
	select {
	case l.restart <- struct{}{}:
	default:
	}
}

// Start runs the loop in the background and returns a stop function
func (l *Loop) Start(ctx context.Context) func() {
	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		l.run(runCtx)
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

func (l *Loop) run(ctx context.Context) {
	for {
		if !l.sweep(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-l.restart:
			l.logger.Info("bootstrap sweep restart requested")
			l.status.SetFail(businessflow.ComponentPresenceInit)
		}
	}
}

// sweep retries one bootstrap until it succeeds. It returns false when the
// loop should exit.
func (l *Loop) sweep(ctx context.Context) bool {
	failures := 0
	timeouts := 0
	for {
		if ctx.Err() != nil {
			return false
		}

		err := l.bootstrap.Run(ctx, amidTimeout(timeouts))
		if err == nil {
			l.status.MarkInitialized()
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		if services.IsReadTimeout(err) {
			timeouts++
			if timeouts >= len(amidTimeouts) {
				l.logger.Error("asterisk state enumeration timed out repeatedly, giving up",
					zap.Error(err))
				l.terminate()
				return false
			}
			l.logger.Warn("asterisk state enumeration timed out, escalating read deadline",
				zap.Duration("next_timeout", amidTimeout(timeouts)),
				zap.Error(err))
			continue
		}

		delay := backoffDelay(failures)
		failures++
		l.logger.Warn("bootstrap sweep failed",
			zap.Duration("retry_in", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
}

// backoffDelay returns the delay before attempt n+1, capped at the last entry
func backoffDelay(failures int) time.Duration {
	if failures >= len(retryBackoff) {
		return retryBackoff[len(retryBackoff)-1]
	}
	return retryBackoff[failures]
}

// amidTimeout returns the AMI read deadline for the given timeout count
func amidTimeout(timeouts int) time.Duration {
	if timeouts >= len(amidTimeouts) {
		return amidTimeouts[len(amidTimeouts)-1]
	}
	return amidTimeouts[timeouts]
}

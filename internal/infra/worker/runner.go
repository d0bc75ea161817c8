// File: internal/infra/worker/runner.go
package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Runner owns the execution goroutines: one per dispatched job, all
// descended from a single parent context so Stop can drain them together.
// Backpressure comes from the admission gate inside the task, not from a
// bounded queue here, so dispatch never drops work.
type Runner struct {
	log    *zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func NewRunner(logger *zerolog.Logger) *Runner {
	l := logger.With().Str("component", "Runner").Logger()
	return &Runner{log: &l}
}

// Start fixes the parent context for all subsequently launched tasks.
// Calling Start twice has no effect.
func (r *Runner) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx != nil {
		return
	}
	r.ctx, r.cancel = context.WithCancel(parent)
}

// Go launches task in its own goroutine. Tasks submitted after Stop are
// dropped silently; the caller recovers them at next startup.
func (r *Runner) Go(task func(ctx context.Context)) {
	r.mu.Lock()
	if r.stopped || r.ctx == nil {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	ctx := r.ctx
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().Interface("panic", rec).Msg("task panicked")
			}
		}()
		task(ctx)
	}()
}

// Stop cancels all running tasks and waits for them to return. Idempotent.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.log.Info().Msg("runner stopped")
}

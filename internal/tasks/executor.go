package tasks

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Executor runs background jobs with a bounded concurrency. Work submitted
// after Shutdown is rejected; Shutdown waits for in-flight jobs to drain.
type Executor struct {
	sem    *semaphore.Weighted
	logger zerolog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func NewExecutor(maxWorkers int, logger zerolog.Logger) *Executor {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Executor{
		sem:    semaphore.NewWeighted(int64(maxWorkers)),
		logger: logger,
	}
}

// Submit schedules fn on a worker slot. It returns immediately; fn runs once
// a slot frees up. A panicking job is logged and does not take the process
// down.
func (e *Executor) Submit(name string, fn func(ctx context.Context)) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Warn().Str("job", name).Msg("executor closed, job rejected")
		return false
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		ctx := context.Background()
		if err := e.sem.Acquire(ctx, 1); err != nil {
			e.logger.Error().Err(err).Str("job", name).Msg("worker slot acquire failed")
			return
		}
		defer e.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().
					Interface("panic", r).
					Str("job", name).
					Bytes("stack", debug.Stack()).
					Msg("job panicked")
			}
		}()
		fn(ctx)
	}()
	return true
}

// Shutdown stops accepting work and blocks until running jobs finish or the
// context expires.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

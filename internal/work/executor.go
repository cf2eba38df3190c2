// Package work provides the bounded fire-and-forget executor used for slow
// correlation tasks.
package work

import (
	"context"
	"log/slog"
	"sync"
)

// #region executor

// Task is a detached unit of background work. Its outcome is never consumed
// by the submitting cycle; failures are logged here and go no further.
type Task func(ctx context.Context)

// Executor runs tasks under a counting semaphore. Submission never blocks:
// when all slots are busy the task is dropped with a diagnostic.
type Executor struct {
	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger

	mu      sync.Mutex
	dropped uint64
}

// NewExecutor creates an executor with the given concurrency cap.
func NewExecutor(workers int, log *slog.Logger) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		sem:    make(chan struct{}, workers),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// #endregion executor

// #region submit

// Submit schedules task if a slot is free. Returns false when the task was
// dropped because the executor is saturated or shut down.
func (e *Executor) Submit(task Task) bool {
	select {
	case <-e.ctx.Done():
		return false
	default:
	}

	select {
	case e.sem <- struct{}{}:
	default:
		e.mu.Lock()
		e.dropped++
		n := e.dropped
		e.mu.Unlock()
		e.log.Warn("background task dropped, executor saturated", "dropped_total", n)
		return false
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() { <-e.sem }()
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("background task panicked", "panic", r)
			}
		}()
		task(e.ctx)
	}()
	return true
}

// Dropped returns how many tasks have been rejected for saturation.
func (e *Executor) Dropped() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// #endregion submit

// #region shutdown

// Shutdown cancels the task context and waits for in-flight tasks.
func (e *Executor) Shutdown() {
	e.cancel()
	e.wg.Wait()
}

// #endregion shutdown

package session

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// TaskRunner runs at most one task at a time. Starting a task cancels the
// one in flight and waits for it to return before the new one begins.
type TaskRunner struct {
	mu             sync.Mutex
	cancel         context.CancelFunc
	done           chan struct{}
	catchInterrupt bool
}

// NewTaskRunner creates a runner. With catchInterrupt set, SIGINT cancels
// the running task instead of terminating the process.
func NewTaskRunner(catchInterrupt bool) *TaskRunner {
	return &TaskRunner{catchInterrupt: catchInterrupt}
}

// Run supersedes any running task with fn and blocks until fn returns.
func (r *TaskRunner) Run(parent context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	r.mu.Lock()
	prevCancel, prevDone := r.cancel, r.done
	r.cancel, r.done = cancel, done
	r.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	defer func() {
		r.mu.Lock()
		if r.done == done {
			r.cancel, r.done = nil, nil
		}
		r.mu.Unlock()
	}()

	if r.catchInterrupt {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}

	return fn(ctx)
}

// Cancel stops the running task, if any, without waiting for it.
func (r *TaskRunner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// Busy reports whether a task is running.
func (r *TaskRunner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done != nil
}

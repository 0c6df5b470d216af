package handler

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
)

// Tasks runs background work started by handlers
type Tasks struct {
	ctx context.Context
	wg  sync.WaitGroup
}

// NewTasks creates a task group. Tasks receive ctx, which should outlive
// individual requests.
func NewTasks(ctx context.Context) *Tasks {
	return &Tasks{ctx: ctx}
}

// Go runs fn in its own goroutine. A panic is logged, never propagated.
func (t *Tasks) Go(fn func(ctx context.Context)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("ERROR: background task panicked: %v\n%s", r, debug.Stack())
			}
		}()
		fn(t.ctx)
	}()
}

// Wait blocks until every task has finished or ctx is done
func (t *Tasks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

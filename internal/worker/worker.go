// Package worker executes dispatched tasks on the bounded executor and,
// optionally, pulls jobs from a remote JobSource and acknowledges their
// results back to it.
//
// Execution model: each task runs inside a closure posted to a
// pkg/executor.BoundedExecutor, which is what actually bounds concurrency
// and provides the submit-side backpressure Pool.Submit relies on — there
// is no longer a fixed goroutine per worker id, only a fixed concurrency
// width.
package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// runner holds the execution logic a posted task closure calls into. It
// keeps an id purely for log/debug correlation with the task that
// triggered it; it owns no channels of its own.
type runner struct {
	id int
}

func newRunner(id int) *runner {
	return &runner{id: id}
}

// run executes task and returns its Result. Timeout is enforced by
// wrapping task.Payload's processing in a context with task.Timeout; this
// mirrors the original per-task Context discipline even though the
// surrounding goroutine pool is no longer worker-owned.
func (r *runner) run(task Task) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), task.Timeout)
	err := r.execute(ctx, task.Payload)
	cancel()

	return Result{
		JobID:    task.ID,
		Success:  err == nil,
		Error:    err,
		Duration: time.Since(start),
	}
}

// execute executes the actual task logic
// - Uses Context with timeout to ensure task won't execute indefinitely
// - Simulated work logic includes random delay and 10% failure rate
func (r *runner) execute(ctx context.Context, payload map[string]interface{}) error {
	// Simulate CPU-intensive work, random delay 0-500 milliseconds
	workDuration := time.Duration(rand.Intn(500)) * time.Millisecond

	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-time.After(workDuration):
		if rand.Intn(100) < 10 {
			return errors.New("simulated execution failure")
		}
		return nil
	}
}

// Package executor implements a fixed-width concurrent dispatch pool whose
// Post call blocks the caller when the pool is saturated. It is the
// backpressure primitive the scheduling queue above pkg/pool relies on to
// keep its own backlog bounded.
package executor

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrExecutorStopped is returned by Post once Stop has been called. Spec
// leaves post-Stop Post behavior undefined/caller-error; the executor
// chooses to return an error rather than panic or block forever, since a
// racing caller has no other way to observe the shutdown.
var ErrExecutorStopped = errors.New("executor: Post called after Stop")

// MetricsSink receives observability events from a BoundedExecutor.
// Implementations must not block. nil is a valid, no-op sink.
type MetricsSink interface {
	SetInFlight(n int)
	ObserveQueueWait(seconds float64)
}

// BoundedExecutor runs each submitted closure on its own goroutine, with at
// most maxConcurrency running at once. Post blocks the submitter while all slots are occupied; it
// never buffers an unbounded backlog and never silently drops work.
type BoundedExecutor struct {
	maxConcurrency int
	logger         *slog.Logger
	metrics        MetricsSink

	// slots is a counting semaphore: one token per concurrent slot. Post
	// acquires a token before dispatch and the running closure releases it
	// on completion, which is what makes Post's blocking behavior match the
	// pool's own saturation rather than an arbitrarily deep queue.
	slots chan struct{}

	mu       sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
	inFlight int
}

// WithMetrics wires a MetricsSink that observes in-flight count and Post
// queue-wait duration. Must be set before any Post call; there is no
// setter after construction since BoundedExecutor has no other post-NewX
// configuration point.
func (e *BoundedExecutor) WithMetrics(sink MetricsSink) *BoundedExecutor {
	e.metrics = sink
	return e
}

// NewBoundedExecutor builds an executor with exactly maxConcurrency slots.
// maxConcurrency must be >= 1; constructing with 0 is the caller's signal
// that no executor is needed at all (see NeedDefaultExecutor) and is a
// programmer error here.
func NewBoundedExecutor(maxConcurrency int, logger *slog.Logger) *BoundedExecutor {
	if maxConcurrency < 1 {
		panic("executor: maxConcurrency must be >= 1")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BoundedExecutor{
		maxConcurrency: maxConcurrency,
		logger:         logger,
		slots:          make(chan struct{}, maxConcurrency),
	}
}

// Post schedules fn for execution, blocking the caller until a slot is free.
// Acquisition of a slot happens in the order callers arrive at the acquire
// step, so accepted submissions dispatch first-come-first-served even
// though completion order is unconstrained.
//
// A panic or error escaping fn is logged and swallowed; it never tears down
// the executor or leaks the slot.
func (e *BoundedExecutor) Post(fn func()) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrExecutorStopped
	}
	e.wg.Add(1)
	e.mu.Unlock()

	waitStart := time.Now()
	e.slots <- struct{}{}
	if e.metrics != nil {
		e.metrics.ObserveQueueWait(time.Since(waitStart).Seconds())
	}

	e.mu.Lock()
	e.inFlight++
	if e.metrics != nil {
		e.metrics.SetInFlight(e.inFlight)
	}
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer func() {
			<-e.slots
			e.mu.Lock()
			e.inFlight--
			if e.metrics != nil {
				e.metrics.SetInFlight(e.inFlight)
			}
			e.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("executor: submitted closure panicked", "panic", r)
			}
		}()
		fn()
	}()

	return nil
}

// Stop marks the executor as no-longer-accepting. Submissions already
// dispatched by Post continue to run; Join waits for them. Calling Post
// after Stop returns ErrExecutorStopped rather than panicking, since a
// caller racing Stop has no other way to detect it.
func (e *BoundedExecutor) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
}

// Join blocks until every closure accepted by Post has completed. Intended
// to be called after Stop; calling it before Stop simply waits for the
// in-flight backlog to momentarily drain, which is rarely what a caller
// wants, since new submissions may still race in concurrently.
func (e *BoundedExecutor) Join() {
	e.wg.Wait()
}

// NeedDefaultExecutor reports whether the default concurrency group needs
// its own BoundedExecutor, versus running posted work inline. It returns
// false iff maxConcurrencyInDefaultGroup is 0 (the caller's signal that no
// default executor is wanted at all), and otherwise true iff either more
// than one slot is configured for the default group or some other
// concurrency group exists that the default group's executor would need to
// coexist alongside.
//
// The remaining case — exactly one slot, no other concurrency groups — runs
// inline: a single-slot executor serializes everything anyway, so the
// indirection buys nothing.
func NeedDefaultExecutor(maxConcurrencyInDefaultGroup int, hasOtherConcurrencyGroups bool) bool {
	if maxConcurrencyInDefaultGroup == 0 {
		return false
	}
	return maxConcurrencyInDefaultGroup > 1 || hasOtherConcurrencyGroups
}

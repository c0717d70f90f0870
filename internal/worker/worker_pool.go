// Package worker implements the lifecycle and task distribution of a
// bounded-width task executor.
//
// Architecture:
//
//	┌─────────────┐
//	│ Controller  │ --Submit()--> pkg/executor.BoundedExecutor
//	└─────────────┘
//	      ↑
//	 GetResult()
//	      ↑
//	┌─────────────┐
//	│    Pool     │
//	└─────────────┘
//
// Submit's blocking behavior when the executor is saturated is the
// backpressure contract the dispatch loop above this package relies on;
// see pkg/executor for the mechanism.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ChuLiYu/raft-recovery/pkg/executor"
	"github.com/ChuLiYu/raft-recovery/pkg/types"
)

var (
	// ErrPoolClosed indicates that the current Pool is closed and cannot accept new tasks
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted indicates that the Pool has not been started yet and cannot accept tasks
	ErrPoolNotStarted = errors.New("worker pool not started")
)

// Pool dispatches tasks onto a bounded executor and collects their results.
type Pool struct {
	exec         *executor.BoundedExecutor
	workerCount  int
	nextRunnerID int

	resultCh chan Result
	stopCh   chan struct{}
	wg       sync.WaitGroup // poller/ack loops only; the executor tracks its own in-flight work

	started bool
	stopped bool
	mu      sync.Mutex

	jobSource JobSource
	metrics   executor.MetricsSink
}

// SetMetrics wires a metrics sink into the executor this Pool will build on
// the next Start call. Must be called before Start; Start captures it once
// and Pool has no other post-construction configuration point.
func (p *Pool) SetMetrics(sink executor.MetricsSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = sink
}

// NewPool creates a new Worker Pool. bufferSize sizes the result channel;
// it is not a task backlog buffer. Submit blocks while every executor slot
// is taken, and a task whose result does not fit in the result channel keeps
// its slot until the result is received, so unread results also block Submit.
func NewPool(bufferSize int) *Pool {
	return &Pool{
		resultCh: make(chan Result, bufferSize),
		stopCh:   make(chan struct{}),
	}
}

// Start builds a BoundedExecutor with workerCount slots and, if source is
// non-nil, starts the pull-mode polling and acknowledgement loops.
func (p *Pool) Start(workerCount int, source JobSource) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}

	p.exec = executor.NewBoundedExecutor(workerCount, nil)
	if p.metrics != nil {
		p.exec.WithMetrics(p.metrics)
	}
	p.workerCount = workerCount
	p.jobSource = source

	if source != nil {
		p.wg.Add(2)
		go p.pollerLoop(source)
		go p.ackLoop(source)
	}

	p.started = true
	return nil
}

// pollerLoop continuously polls jobs from the source and submits them to the executor.
func (p *Pool) pollerLoop(source JobSource) {
	defer p.wg.Done()

	pollInterval := 100 * time.Millisecond
	batchSize := 10

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			jobs, err := source.Poll(ctx, batchSize)
			cancel()
			if err != nil {
				continue
			}

			for _, job := range jobs {
				task := Task{ID: job.ID, Payload: job.Payload, Timeout: job.Timeout}
				if err := p.Submit(task); err != nil {
					return
				}
			}
		}
	}
}

// ackLoop continuously receives results from the executor and acknowledges them to the source.
func (p *Pool) ackLoop(source JobSource) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case result, ok := <-p.resultCh:
			if !ok {
				return
			}

			// The executor only reports success/failure; the Master
			// (JobSource implementation) decides whether a failure means
			// retry or dead-letter.
			status := types.StatusCompleted
			if !result.Success {
				status = types.StatusDead
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = source.Acknowledge(ctx, string(result.JobID), status, &result)
			cancel()
		}
	}
}

// Submit schedules task for execution, blocking the caller if the
// executor's concurrency width is currently saturated — this is the
// backpressure contract the dispatch loop above relies on.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.nextRunnerID++
	id := p.nextRunnerID
	exec := p.exec
	p.mu.Unlock()

	r := newRunner(id)
	err := exec.Post(func() {
		result := r.run(task)
		select {
		case p.resultCh <- result:
		case <-p.stopCh:
		}
	})
	if err != nil {
		return ErrPoolClosed
	}
	return nil
}

// ReceiveResult receives execution results from the result channel.
func (p *Pool) ReceiveResult() (Result, error) {
	select {
	case result, ok := <-p.resultCh:
		if !ok {
			return Result{}, ErrPoolClosed
		}
		return result, nil
	case <-p.stopCh:
		return Result{}, ErrPoolClosed
	}
}

// Stop gracefully shuts down the Pool: stop accepting new submissions,
// drain the executor's in-flight closures, then stop the poller/ack loops.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	exec := p.exec
	p.mu.Unlock()

	exec.Stop()
	// Signal the poller/ack loops and any result-send already blocked in a
	// posted closure before Join, not after: a closure's only escape from a
	// full resultCh is the stopCh case, and Join would otherwise wait
	// forever for a closure that can never land its send.
	close(p.stopCh)
	exec.Join()

	p.wg.Wait()

	close(p.resultCh)
}

// GetWorkerCount returns the executor's configured concurrency width.
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workerCount
}

// IsStarted checks if the Pool has started
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

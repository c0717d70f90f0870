package pool

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
)

// entry is the LRU sequence's payload. The client is exclusively owned by
// the entry for eviction purposes; callers who already hold a reference to
// the client keep it valid regardless of what the pool later does to this
// entry (spec.md §3).
type entry struct {
	workerID WorkerId
	client   Client
}

// MetricsSink receives observability events from a Pool. Implementations
// must not block or call back into the Pool. nil is a valid, no-op sink.
type MetricsSink interface {
	SetSize(n int)
	RecordEviction()
	RecordDisconnect()
}

// Pool caches RPC client handles by worker identity, with least-recently-used
// idle eviction. A single mutex protects the LRU sequence and its index
// together; per spec.md §9 this is intentional — the critical section is
// tens of nanoseconds and contention across a cluster's worth of peers is
// negligible next to RPC latency, so the pool does not shard.
type Pool struct {
	mu      sync.Mutex
	factory ClientFactory
	logger  *slog.Logger
	metrics MetricsSink

	// order runs most-recently-used at the front to least-recently-used at
	// the back. index gives O(1) lookup of an entry's list.Element.
	order *list.List
	index map[WorkerId]*list.Element
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithLogger overrides the pool's logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// WithMetrics wires a MetricsSink that observes size/eviction/disconnect
// events. Unset, the pool simply does not report them.
func WithMetrics(sink MetricsSink) Option {
	return func(p *Pool) { p.metrics = sink }
}

// NewPool creates an empty Pool backed by the given client factory. The
// pool imposes no hard size cap (spec.md §4.1); eviction is pure garbage
// collection of idle peers.
func NewPool(factory ClientFactory, opts ...Option) *Pool {
	p := &Pool{
		factory: factory,
		logger:  slog.Default(),
		order:   list.New(),
		index:   make(map[WorkerId]*list.Element),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) reportSizeLocked() {
	if p.metrics != nil {
		p.metrics.SetSize(p.order.Len())
	}
}

// GetOrConnect returns the cached client for addr.WorkerID, promoting it to
// most-recently-used, or builds one via the injected factory and inserts it
// at the front. Before either branch it runs one opportunistic idle-eviction
// scan (see evictIdleLocked).
//
// Two concurrent calls for the same worker id are serialized by the lock:
// exactly one constructs, both return the same client, and the second call's
// own promotion is a no-op that does not reorder anything further — unless
// the second call's eviction scan finds that entry idle and evicts it, in
// which case the second call builds a new client.
func (p *Pool) GetOrConnect(addr Address) (Client, error) {
	if addr.WorkerID.IsNil() {
		return nil, ErrInvalidArgument
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.evictIdleLocked()

	if el, ok := p.index[addr.WorkerID]; ok {
		p.order.MoveToFront(el)
		return el.Value.(*entry).client, nil
	}

	// Factory invocation happens inside the lock: simpler reasoning at the
	// cost of serializing construction (spec.md §5). Factories are expected
	// not to block on an actual connection handshake.
	client, err := p.factory(addr)
	if err != nil {
		return nil, fmt.Errorf("pool: client factory failed for worker %s: %w", addr.WorkerID, err)
	}

	el := p.order.PushFront(&entry{workerID: addr.WorkerID, client: client})
	p.index[addr.WorkerID] = el
	p.reportSizeLocked()

	p.logger.Info("pool: connected", "worker_id", addr.WorkerID.String(), "node_id", addr.NodeID.String())
	return client, nil
}

// Disconnect removes the entry for workerID, if any. Idempotent: a second
// call with no intervening GetOrConnect is a no-op. Callers who already hold
// a reference to the evicted client keep a valid handle; the pool simply
// never serves it again.
func (p *Pool) Disconnect(workerID WorkerId) {
	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.index[workerID]
	if !ok {
		return
	}
	p.order.Remove(el)
	delete(p.index, workerID)
	p.reportSizeLocked()
	if p.metrics != nil {
		p.metrics.RecordDisconnect()
	}

	p.logger.Info("pool: disconnected", "worker_id", workerID.String())
}

// Size returns the current number of cached entries. Advisory: callers must
// not race on it for correctness, only for monitoring.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

// evictIdleLocked walks the LRU sequence from the back toward the front,
// removing idle entries, and stops at the first busy one after promoting it
// to the front. Promoting the first busy entry found keeps a single stale
// busy client from blocking eviction of genuinely older idle entries behind
// it on the next call, while bounding this scan's cost to the number of
// entries it actually removes plus one. Must be called with p.mu held.
func (p *Pool) evictIdleLocked() {
	for {
		el := p.order.Back()
		if el == nil {
			return
		}
		e := el.Value.(*entry)

		if e.client.IsIdleAfterRPCs() {
			p.order.Remove(el)
			delete(p.index, e.workerID)
			p.reportSizeLocked()
			if p.metrics != nil {
				p.metrics.RecordEviction()
			}
			p.logger.Debug("pool: evicted idle client", "worker_id", e.workerID.String())
			continue
		}

		p.order.MoveToFront(el)
		p.logger.Debug("pool: busy client blocks further eviction this scan", "worker_id", e.workerID.String())
		return
	}
}

package rpcwire

import "sync/atomic"

// IdleTracker is the shared IsIdleAfterRPCs() oracle for the concrete
// pool.Client implementations in pkg/raylet and pkg/runtimeenv: any handle
// wrapping a *grpc.ClientConn embeds one of these rather than re-deriving
// the same counter dance per package.
//
// A handle is idle once no RPC is in flight and none has started since the
// last time IsIdleAfterRPCs observed quiescence — so a single in-flight RPC
// that completes right before the eviction scan still requires one more
// idle check before the handle is considered safe to evict, avoiding a
// race where an RPC's own completion and the scan interleave.
type IdleTracker struct {
	inFlight    int32
	activitySeq uint64
	lastIdleSeq uint64
}

// NewIdleTracker returns an IdleTracker that starts idle.
func NewIdleTracker() *IdleTracker {
	return &IdleTracker{}
}

// BeginRPC records that an RPC is starting and returns a func to call on
// its completion.
func (t *IdleTracker) BeginRPC() func() {
	atomic.AddInt32(&t.inFlight, 1)
	atomic.AddUint64(&t.activitySeq, 1)
	return func() {
		atomic.AddInt32(&t.inFlight, -1)
	}
}

// IsIdleAfterRPCs implements the pool.Client oracle.
func (t *IdleTracker) IsIdleAfterRPCs() bool {
	if atomic.LoadInt32(&t.inFlight) != 0 {
		return false
	}
	seq := atomic.LoadUint64(&t.activitySeq)
	if atomic.LoadUint64(&t.lastIdleSeq) == seq {
		return true
	}
	atomic.StoreUint64(&t.lastIdleSeq, seq)
	return false
}

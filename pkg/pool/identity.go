// Package pool implements the per-process cache of RPC client handles that
// lets a worker in the raft-recovery cluster reuse, evict, and invalidate its
// connections to every other worker it talks to.
//
// See internal/raft/transport.go for the sibling cache used for raft peer
// connections — both are built on the same Pool type.
package pool

import (
	"encoding/hex"
	"errors"
)

// WorkerId uniquely identifies a worker process across the cluster's
// lifetime. It is opaque and fixed-width; equality and hashing are by byte
// content, which a plain array gives for free as a comparable map key.
type WorkerId [16]byte

// NodeId identifies the raylet (host process-group) supervising a worker.
type NodeId [16]byte

// Nil is the zero value of a WorkerId/NodeId. A non-nil check is how
// GetOrConnect rejects the empty identity spec.md §4.1 requires.
var Nil WorkerId

// IsNil reports whether w is the empty worker identity.
func (w WorkerId) IsNil() bool {
	return w == Nil
}

// String renders the identity as hex, for logging only.
func (w WorkerId) String() string {
	return hex.EncodeToString(w[:])
}

// String renders the identity as hex, for logging only.
func (n NodeId) String() string {
	return hex.EncodeToString(n[:])
}

// Address is the record a caller supplies to GetOrConnect. WorkerID is the
// pool's key; the remaining fields are advisory, consulted only by the
// client factory the first time a client is built for that worker.
type Address struct {
	WorkerID WorkerId
	NodeID   NodeId
	IP       string
	Port     uint16
}

// ErrInvalidArgument is returned when GetOrConnect is called with an
// Address whose WorkerID is the nil identity. Per spec.md §7 this is a
// programmer error, not a runtime condition a caller is expected to recover
// from — but unlike the fatal-assertion errors below, the pool still
// returns it rather than panicking, since it originates from caller input
// rather than a broken invariant of the pool's own wiring.
var ErrInvalidArgument = errors.New("pool: address.worker_id must not be empty")

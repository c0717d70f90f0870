package pool

import "log/slog"

// NodeInfo is the subset of cluster-membership node data the liveness
// callback needs: where to dial the node's raylet.
type NodeInfo struct {
	NodeManagerAddress string
	NodeManagerPort    uint16
}

// MembershipClient is the read-only cluster-membership collaborator the
// liveness callback consults (spec.md §6). The pool depends only on this
// narrow shape; concrete implementations live in pkg/membership and satisfy
// it structurally, so this package never imports that one.
type MembershipClient interface {
	// IsSubscribedToNodeChange reports whether this process has an active
	// membership-change subscription. The callback asserts this is true;
	// it is not a control query.
	IsSubscribedToNodeChange() bool

	// GetNode returns the node's info, or ok=false if the node is unknown
	// (or, when filterDeadNodes is true, known-dead).
	GetNode(nodeID NodeId, filterDeadNodes bool) (info NodeInfo, ok bool)
}

// RayletClient issues the per-node liveness RPC. IsLocalWorkerDead is
// asynchronous: cb is invoked exactly once, from whatever goroutine the
// implementation chooses, with a non-nil err iff the RPC itself failed
// (any non-OK status is "inconclusive, do nothing" per spec.md §6).
type RayletClient interface {
	IsLocalWorkerDead(workerID WorkerId, cb func(err error, isDead bool))
}

// RayletClientFactory dials (or reuses) a RayletClient for a node-manager
// address. Concrete implementations live in pkg/raylet.
type RayletClientFactory func(host string, port uint16) (RayletClient, error)

// NewUnavailableTimeoutCallback builds the callback a client should invoke
// when its own RPCs time out with "unavailable" (spec.md §4.1). The
// callback captures p, membership, and rayletFactory, plus the target
// peer's address; per spec.md §9 it must only be constructed once all
// three collaborators are live, and the pool must outlive any client that
// may invoke it.
//
// Disconnecting only on a confirmed-dead reply avoids thrashing during a
// transient raylet partition; a missing node record is treated as
// definitive because the membership layer is itself authoritative
// (spec.md §4.1 Rationale).
func NewUnavailableTimeoutCallback(p *Pool, membership MembershipClient, rayletFactory RayletClientFactory, addr Address, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}

	return func() {
		if !membership.IsSubscribedToNodeChange() {
			// Configuration bug: the callback is undefined without an
			// active subscription (spec.md §4.1, §7).
			panic("pool: liveness callback invoked without an active membership subscription")
		}

		node, ok := membership.GetNode(addr.NodeID, true)
		if !ok {
			logger.Info("pool: node unknown to membership, disconnecting peer",
				"worker_id", addr.WorkerID.String(), "node_id", addr.NodeID.String())
			p.Disconnect(addr.WorkerID)
			return
		}

		raylet, err := rayletFactory(node.NodeManagerAddress, node.NodeManagerPort)
		if err != nil {
			logger.Info("pool: failed to reach raylet, leaving peer connected",
				"worker_id", addr.WorkerID.String(), "error", err)
			return
		}

		raylet.IsLocalWorkerDead(addr.WorkerID, func(err error, isDead bool) {
			switch {
			case err != nil:
				logger.Info("pool: raylet probe transport error, leaving peer connected",
					"worker_id", addr.WorkerID.String(), "error", err)
			case isDead:
				logger.Info("pool: raylet confirmed worker dead, disconnecting peer",
					"worker_id", addr.WorkerID.String())
				p.Disconnect(addr.WorkerID)
			default:
				logger.Debug("pool: raylet reports worker alive", "worker_id", addr.WorkerID.String())
			}
		})
	}
}

// Package membership implements the read-only cluster-membership
// collaborator pkg/pool's liveness callback consults (spec.md §6): an
// in-memory node table, replicated across the cluster through the same
// internal/raft log that already carries job-queue commands.
package membership

import (
	"encoding/json"
	"sync"

	"github.com/ChuLiYu/raft-recovery/internal/raft"
	"github.com/ChuLiYu/raft-recovery/pkg/pool"
)

type nodeRecord struct {
	info pool.NodeInfo
	dead bool
}

// nodeKey canonicalizes an arbitrary node-identifying string into the same
// hex form GetNode's pool.NodeId argument produces via String(): the table
// is keyed on this form everywhere, so a Join("foo", ...) is visible to a
// later GetNode(nodeID, ...) iff nodeID was derived from "foo" the same way
// (the copy(id[:], s) idiom internal/raft/transport.go and friends use to
// turn an address string into a fixed-width identity).
func nodeKey(nodeID string) string {
	var id pool.NodeId
	copy(id[:], nodeID)
	return id.String()
}

// Client is the concrete pool.MembershipClient: a node table plus a
// subscription flag a caller asserts once it starts consuming raft-applied
// membership changes.
type Client struct {
	mu         sync.RWMutex
	nodes      map[string]*nodeRecord
	subscribed bool
	raftNode   *raft.Raft
}

// New builds an empty Client. raftNode may be nil in standalone (no-raft)
// deployments, in which case Join/Leave apply directly rather than going
// through consensus — mirroring internal/server.SubmitJob's existing
// raft-optional fallback.
func New(raftNode *raft.Raft) *Client {
	return &Client{
		nodes:    make(map[string]*nodeRecord),
		raftNode: raftNode,
	}
}

// MarkSubscribed records that this process has begun consuming membership
// changes (via RunApplyLoop or, in standalone mode, direct Join/Leave
// calls). pkg/pool's liveness callback asserts this before querying.
func (c *Client) MarkSubscribed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = true
}

// IsSubscribedToNodeChange implements pool.MembershipClient.
func (c *Client) IsSubscribedToNodeChange() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed
}

// GetNode implements pool.MembershipClient.
func (c *Client) GetNode(nodeID pool.NodeId, filterDeadNodes bool) (pool.NodeInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.nodes[nodeID.String()]
	if !ok {
		return pool.NodeInfo{}, false
	}
	if filterDeadNodes && rec.dead {
		return pool.NodeInfo{}, false
	}
	return rec.info, true
}

// Join proposes (or, without raft, directly applies) a node joining or
// re-announcing itself. nodeID is whatever string the caller addresses the
// node by; it is canonicalized through nodeKey before being used as the
// table key, the same derivation GetNode's pool.NodeId argument already
// went through, so the two agree regardless of which caller supplied which
// form first.
func (c *Client) Join(nodeID string, info pool.NodeInfo) error {
	cmd, err := raft.NewNodeJoinCommand(nodeID, info.NodeManagerAddress, info.NodeManagerPort)
	if err != nil {
		return err
	}
	if c.raftNode == nil {
		c.applyJoin(raft.NodeJoinPayload{
			NodeID:             nodeID,
			NodeManagerAddress: info.NodeManagerAddress,
			NodeManagerPort:    info.NodeManagerPort,
		})
		return nil
	}
	c.raftNode.Propose(cmd)
	return nil
}

// Leave proposes (or directly applies) a node being marked dead.
func (c *Client) Leave(nodeID string) error {
	cmd, err := raft.NewNodeLeaveCommand(nodeID)
	if err != nil {
		return err
	}
	if c.raftNode == nil {
		c.applyLeave(raft.NodeLeavePayload{NodeID: nodeID})
		return nil
	}
	c.raftNode.Propose(cmd)
	return nil
}

// Apply decodes a committed raft.RaftCommand and applies it if it is a
// membership command; commands of any other type are ignored, since this
// table is not the only state machine fed by the shared raft log.
func (c *Client) Apply(cmd raft.RaftCommand) error {
	switch cmd.Type {
	case raft.CmdNodeJoin:
		var payload raft.NodeJoinPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return err
		}
		c.applyJoin(payload)
	case raft.CmdNodeLeave:
		var payload raft.NodeLeavePayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return err
		}
		c.applyLeave(payload)
	}
	return nil
}

// RunApplyLoop drains applyCh, decoding and applying membership commands,
// until the channel is closed. Intended to run on its own goroutine
// alongside whatever consumes the same applyCh for job-queue commands.
func (c *Client) RunApplyLoop(applyCh <-chan raft.ApplyMsg) {
	c.MarkSubscribed()
	for msg := range applyCh {
		var cmd raft.RaftCommand
		if err := json.Unmarshal(msg.Command, &cmd); err != nil {
			continue
		}
		_ = c.Apply(cmd)
	}
}

func (c *Client) applyJoin(p raft.NodeJoinPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[nodeKey(p.NodeID)] = &nodeRecord{
		info: pool.NodeInfo{
			NodeManagerAddress: p.NodeManagerAddress,
			NodeManagerPort:    p.NodeManagerPort,
		},
	}
}

func (c *Client) applyLeave(p raft.NodeLeavePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.nodes[nodeKey(p.NodeID)]; ok {
		rec.dead = true
	}
}

package raft

import (
	"encoding/json"
	"github.com/ChuLiYu/raft-recovery/pkg/types"
)

// CommandType identifies the type of raft command
type CommandType string

const (
	CmdEnqueue   CommandType = "ENQUEUE"
	CmdAck       CommandType = "ACK"
	CmdNodeJoin  CommandType = "NODE_JOIN"
	CmdNodeLeave CommandType = "NODE_LEAVE"
)

// RaftCommand is the data structure serialized into the Raft log
type RaftCommand struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EnqueuePayload is the payload for ENQUEUE command
type EnqueuePayload struct {
	Jobs []types.Job `json:"jobs"`
}

// AckPayload is the payload for ACK command
type AckPayload struct {
	JobID  string          `json:"job_id"`
	Status types.JobStatus `json:"status"`
	// Result could be added here
}

// NodeJoinPayload is the payload for NODE_JOIN: a node entering or
// re-announcing itself to cluster membership.
type NodeJoinPayload struct {
	NodeID             string `json:"node_id"`
	NodeManagerAddress string `json:"node_manager_address"`
	NodeManagerPort    uint16 `json:"node_manager_port"`
}

// NodeLeavePayload is the payload for NODE_LEAVE: a node being marked dead,
// whether by explicit departure or by a lapsed heartbeat lease.
type NodeLeavePayload struct {
	NodeID string `json:"node_id"`
}

// NewEnqueueCommand creates an encoded Enqueue command
func NewEnqueueCommand(jobs []types.Job) ([]byte, error) {
	payload, _ := json.Marshal(EnqueuePayload{Jobs: jobs})
	cmd := RaftCommand{
		Type:    CmdEnqueue,
		Payload: payload,
	}
	return json.Marshal(cmd)
}

// NewAckCommand creates an encoded Ack command
func NewAckCommand(jobID string, status types.JobStatus) ([]byte, error) {
	payload, _ := json.Marshal(AckPayload{JobID: jobID, Status: status})
	cmd := RaftCommand{
		Type:    CmdAck,
		Payload: payload,
	}
	return json.Marshal(cmd)
}

// NewNodeJoinCommand creates an encoded NodeJoin command.
func NewNodeJoinCommand(nodeID, nodeManagerAddress string, nodeManagerPort uint16) ([]byte, error) {
	payload, _ := json.Marshal(NodeJoinPayload{
		NodeID:             nodeID,
		NodeManagerAddress: nodeManagerAddress,
		NodeManagerPort:    nodeManagerPort,
	})
	cmd := RaftCommand{
		Type:    CmdNodeJoin,
		Payload: payload,
	}
	return json.Marshal(cmd)
}

// NewNodeLeaveCommand creates an encoded NodeLeave command.
func NewNodeLeaveCommand(nodeID string) ([]byte, error) {
	payload, _ := json.Marshal(NodeLeavePayload{NodeID: nodeID})
	cmd := RaftCommand{
		Type:    CmdNodeLeave,
		Payload: payload,
	}
	return json.Marshal(cmd)
}

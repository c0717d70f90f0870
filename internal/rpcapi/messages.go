// Package rpcapi defines the wire contracts the teacher repo's generated
// api/proto/v1 package would otherwise have provided: the worker<->master
// job-dispatch surface and the raft peer-transport surface, both carried
// over pkg/rpcwire instead of protoc-generated protobuf stubs.
package rpcapi

import "github.com/ChuLiYu/raft-recovery/pkg/types"

// JobStatus mirrors types.JobStatus on the wire as a string rather than a
// protobuf enum's int32, since rpcwire's codec is plain JSON.
type JobStatus string

const (
	JobStatusPending  JobStatus = "PENDING"
	JobStatusInFlight JobStatus = "IN_FLIGHT"
	JobStatusComplete JobStatus = "COMPLETED"
	JobStatusDead     JobStatus = "DEAD"
)

func JobStatusFromType(s types.JobStatus) JobStatus {
	switch s {
	case types.StatusPending:
		return JobStatusPending
	case types.StatusInFlight:
		return JobStatusInFlight
	case types.StatusCompleted:
		return JobStatusComplete
	case types.StatusDead:
		return JobStatusDead
	default:
		return JobStatusPending
	}
}

func (s JobStatus) ToType() types.JobStatus {
	switch s {
	case JobStatusInFlight:
		return types.StatusInFlight
	case JobStatusComplete:
		return types.StatusCompleted
	case JobStatusDead:
		return types.StatusDead
	default:
		return types.StatusPending
	}
}

// Job is the wire form of types.Job.
type Job struct {
	ID         string    `json:"id"`
	Payload    []byte    `json:"payload,omitempty"`
	Status     JobStatus `json:"status"`
	Attempt    int32     `json:"attempt"`
	TimeoutMs  int64     `json:"timeout_ms"`
	CreatedAt  int64     `json:"created_at"`
	UpdatedAt  int64     `json:"updated_at"`
	WorkerID   string    `json:"worker_id,omitempty"`
	DeadlineMs int64     `json:"deadline_ms,omitempty"`
}

type SubmitJobRequest struct {
	JobID     string `json:"job_id,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
	TimeoutMs int64  `json:"timeout_ms"`
}

type SubmitJobResponse struct {
	Success      bool   `json:"success"`
	JobID        string `json:"job_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type RegisterWorkerRequest struct {
	NodeID   string   `json:"node_id"`
	Address  string   `json:"address"`
	Capacity int32    `json:"capacity"`
	Tags     []string `json:"tags,omitempty"`
}

type RegisterWorkerResponse struct {
	Success         bool  `json:"success"`
	LeaseDurationMs int64 `json:"lease_duration_ms"`
}

type HeartbeatRequest struct {
	NodeID      string `json:"node_id"`
	CurrentLoad int32  `json:"current_load"`
	Timestamp   int64  `json:"timestamp"`
}

type HeartbeatResponse struct {
	Acknowledged bool `json:"acknowledged"`
	ReRegister   bool `json:"re_register"`
}

type PollJobsRequest struct {
	WorkerID string `json:"worker_id"`
	MaxJobs  int32  `json:"max_jobs"`
}

type PollJobsResponse struct {
	Jobs []*Job `json:"jobs"`
}

type AcknowledgeJobRequest struct {
	JobID    string    `json:"job_id"`
	WorkerID string    `json:"worker_id"`
	Status   JobStatus `json:"status"`
}

type AcknowledgeJobResponse struct {
	Success bool `json:"success"`
}

// LogEntry is the wire form of raft.LogEntry.
type LogEntry struct {
	Term    int64  `json:"term"`
	Index   int64  `json:"index"`
	Command []byte `json:"command"`
}

type RequestVoteRequest struct {
	Term         int64  `json:"term"`
	CandidateID  string `json:"candidate_id"`
	LastLogIndex int64  `json:"last_log_index"`
	LastLogTerm  int64  `json:"last_log_term"`
}

type RequestVoteResponse struct {
	Term        int64 `json:"term"`
	VoteGranted bool  `json:"vote_granted"`
}

type AppendEntriesRequest struct {
	Term         int64      `json:"term"`
	LeaderID     string     `json:"leader_id"`
	PrevLogIndex int64      `json:"prev_log_index"`
	PrevLogTerm  int64      `json:"prev_log_term"`
	Entries      []LogEntry `json:"entries,omitempty"`
	LeaderCommit int64      `json:"leader_commit"`
}

type AppendEntriesResponse struct {
	Term    int64 `json:"term"`
	Success bool  `json:"success"`
}

// IsLocalWorkerDeadRequest/Response is the liveness RPC wire contract
// consumed by pkg/raylet (spec.md §6): a worker id in, a single boolean
// out.
type IsLocalWorkerDeadRequest struct {
	WorkerID []byte `json:"worker_id"`
}

type IsLocalWorkerDeadResponse struct {
	IsDead bool `json:"is_dead"`
}

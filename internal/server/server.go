package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ChuLiYu/raft-recovery/internal/controller"
	"github.com/ChuLiYu/raft-recovery/internal/raft"
	"github.com/ChuLiYu/raft-recovery/internal/rpcapi"
	"github.com/ChuLiYu/raft-recovery/internal/worker"
	"github.com/ChuLiYu/raft-recovery/pkg/membership"
	"github.com/ChuLiYu/raft-recovery/pkg/pool"
	"github.com/ChuLiYu/raft-recovery/pkg/types"
)

// Server implements the rpcapi.FalconQueueServiceServer wire contract.
type Server struct {
	controller *controller.Controller
	raftNode   *raft.Raft
	members    *membership.Client

	// Worker Registry
	mu      sync.RWMutex
	workers map[string]*WorkerInfo
}

// WorkerInfo tracks the state of a registered worker
type WorkerInfo struct {
	NodeID     string
	Address    string
	Capacity   int32
	Tags       []string
	LastSeen   time.Time
	ExpiryTime time.Time
}

// NewServer creates a new gRPC server instance. members may be nil if this
// deployment does not track cluster membership (e.g. a single-node
// standalone run).
func NewServer(ctrl *controller.Controller, rf *raft.Raft, members *membership.Client) *Server {
	return &Server{
		controller: ctrl,
		raftNode:   rf,
		members:    members,
		workers:    make(map[string]*WorkerInfo),
	}
}

// IsWorkerDead implements pkg/raylet.LivenessSource: a worker is dead once
// its heartbeat lease has lapsed. The registry is searched for the worker
// whose node id matches workerID.
func (s *Server) IsWorkerDead(workerID pool.WorkerId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, info := range s.workers {
		if matchesWorkerID(info.NodeID, workerID) {
			return time.Now().After(info.ExpiryTime)
		}
	}
	// A worker this node has never registered is, from this node's
	// perspective, not something it can vouch for as alive.
	return true
}

func matchesWorkerID(nodeID string, workerID pool.WorkerId) bool {
	var derived pool.WorkerId
	copy(derived[:], nodeID)
	return derived == workerID
}

// RequestVote handles Raft RequestVote RPC
func (s *Server) RequestVote(ctx context.Context, req *rpcapi.RequestVoteRequest) (*rpcapi.RequestVoteResponse, error) {
	if s.raftNode == nil {
		return nil, fmt.Errorf("raft node not initialized")
	}

	args := &raft.RequestVoteArgs{
		Term:         req.Term,
		CandidateID:  req.CandidateID,
		LastLogIndex: req.LastLogIndex,
		LastLogTerm:  req.LastLogTerm,
	}

	reply := &raft.RequestVoteReply{}
	s.raftNode.RequestVote(args, reply)

	return &rpcapi.RequestVoteResponse{
		Term:        reply.Term,
		VoteGranted: reply.VoteGranted,
	}, nil
}

// AppendEntries handles Raft AppendEntries RPC
func (s *Server) AppendEntries(ctx context.Context, req *rpcapi.AppendEntriesRequest) (*rpcapi.AppendEntriesResponse, error) {
	if s.raftNode == nil {
		return nil, fmt.Errorf("raft node not initialized")
	}

	entries := make([]raft.LogEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = raft.LogEntry{
			Term:    e.Term,
			Index:   e.Index,
			Command: e.Command,
		}
	}

	args := &raft.AppendEntriesArgs{
		Term:         req.Term,
		LeaderID:     req.LeaderID,
		PrevLogIndex: req.PrevLogIndex,
		PrevLogTerm:  req.PrevLogTerm,
		Entries:      entries,
		LeaderCommit: req.LeaderCommit,
	}

	reply := &raft.AppendEntriesReply{}
	s.raftNode.AppendEntries(args, reply)

	return &rpcapi.AppendEntriesResponse{
		Term:    reply.Term,
		Success: reply.Success,
	}, nil
}

// SubmitJob handles job submission from clients.
func (s *Server) SubmitJob(ctx context.Context, req *rpcapi.SubmitJobRequest) (*rpcapi.SubmitJobResponse, error) {
	jobID := req.JobID
	if jobID == "" {
		jobID = fmt.Sprintf("job-%d", time.Now().UnixNano())
	}

	var payload map[string]interface{}
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			return &rpcapi.SubmitJobResponse{
				Success:      false,
				ErrorMessage: "Invalid payload JSON: " + err.Error(),
			}, nil
		}
	}

	job := types.Job{
		ID:        types.JobID(jobID),
		Payload:   payload,
		Status:    types.StatusPending,
		Timeout:   time.Duration(req.TimeoutMs) * time.Millisecond,
		CreatedAt: time.Now().UnixMilli(),
		UpdatedAt: time.Now().UnixMilli(),
	}

	if s.raftNode != nil {
		cmd, err := raft.NewEnqueueCommand([]types.Job{job})
		if err != nil {
			return &rpcapi.SubmitJobResponse{Success: false, ErrorMessage: "Failed to encode command"}, nil
		}

		_, _, isLeader := s.raftNode.Propose(cmd)
		if !isLeader {
			return &rpcapi.SubmitJobResponse{Success: false, ErrorMessage: "Not the leader"}, nil
		}

		return &rpcapi.SubmitJobResponse{Success: true, JobID: jobID}, nil
	}

	// Fallback to local Enqueue if Raft not enabled (Standalone Mode)
	if err := s.controller.EnqueueJobs([]types.Job{job}); err != nil {
		return &rpcapi.SubmitJobResponse{
			Success:      false,
			ErrorMessage: "Enqueue failed: " + err.Error(),
		}, nil
	}

	return &rpcapi.SubmitJobResponse{
		Success: true,
		JobID:   jobID,
	}, nil
}

// RegisterWorker registers a new worker node.
func (s *Server) RegisterWorker(ctx context.Context, req *rpcapi.RegisterWorkerRequest) (*rpcapi.RegisterWorkerResponse, error) {
	s.mu.Lock()
	leaseDuration := 10 * time.Second
	s.workers[req.NodeID] = &WorkerInfo{
		NodeID:     req.NodeID,
		Address:    req.Address,
		Capacity:   req.Capacity,
		Tags:       req.Tags,
		LastSeen:   time.Now(),
		ExpiryTime: time.Now().Add(leaseDuration),
	}
	s.mu.Unlock()

	if s.members != nil {
		_ = s.members.Join(req.NodeID, pool.NodeInfo{NodeManagerAddress: req.Address})
	}

	return &rpcapi.RegisterWorkerResponse{
		Success:         true,
		LeaseDurationMs: leaseDuration.Milliseconds(),
	}, nil
}

// SendHeartbeat updates the liveness of a worker.
func (s *Server) SendHeartbeat(ctx context.Context, req *rpcapi.HeartbeatRequest) (*rpcapi.HeartbeatResponse, error) {
	s.mu.Lock()
	info, exists := s.workers[req.NodeID]
	if !exists {
		s.mu.Unlock()
		return &rpcapi.HeartbeatResponse{
			Acknowledged: false,
			ReRegister:   true,
		}, nil
	}

	leaseDuration := 10 * time.Second
	info.LastSeen = time.UnixMilli(req.Timestamp)
	info.ExpiryTime = time.Now().Add(leaseDuration)
	s.mu.Unlock()

	return &rpcapi.HeartbeatResponse{
		Acknowledged: true,
		ReRegister:   false,
	}, nil
}

// ExpireLapsedWorkers scans the registry for workers whose lease has
// lapsed and marks their node dead in cluster membership, which is what
// ultimately drives pkg/pool's liveness callback for any connection
// cached under that worker's id. Intended to be called periodically by
// whatever owns this Server's lifecycle.
func (s *Server) ExpireLapsedWorkers() {
	if s.members == nil {
		return
	}

	now := time.Now()
	s.mu.RLock()
	var lapsed []string
	for nodeID, info := range s.workers {
		if now.After(info.ExpiryTime) {
			lapsed = append(lapsed, nodeID)
		}
	}
	s.mu.RUnlock()

	for _, nodeID := range lapsed {
		_ = s.members.Leave(nodeID)
	}
}

// PollJobs fetches pending jobs for the worker.
func (s *Server) PollJobs(ctx context.Context, req *rpcapi.PollJobsRequest) (*rpcapi.PollJobsResponse, error) {
	jobs, err := s.controller.Poll(ctx, int(req.MaxJobs))
	if err != nil {
		return nil, err
	}

	wireJobs := make([]*rpcapi.Job, 0, len(jobs))
	for _, job := range jobs {
		payloadBytes, _ := json.Marshal(job.Payload)

		wireJob := &rpcapi.Job{
			ID:        string(job.ID),
			Payload:   payloadBytes,
			Status:    rpcapi.JobStatusFromType(job.Status),
			Attempt:   int32(job.Attempt),
			TimeoutMs: job.Timeout.Milliseconds(),
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
			WorkerID:  req.WorkerID,
		}

		if job.Deadline != nil {
			wireJob.DeadlineMs = *job.Deadline
		}

		wireJobs = append(wireJobs, wireJob)
	}

	return &rpcapi.PollJobsResponse{Jobs: wireJobs}, nil
}

// AcknowledgeJob reports job status from worker.
func (s *Server) AcknowledgeJob(ctx context.Context, req *rpcapi.AcknowledgeJobRequest) (*rpcapi.AcknowledgeJobResponse, error) {
	status := req.Status.ToType()

	if s.raftNode != nil {
		cmd, err := raft.NewAckCommand(req.JobID, status)
		if err != nil {
			return &rpcapi.AcknowledgeJobResponse{Success: false}, nil
		}

		_, _, isLeader := s.raftNode.Propose(cmd)
		if !isLeader {
			return &rpcapi.AcknowledgeJobResponse{Success: false}, nil
		}

		return &rpcapi.AcknowledgeJobResponse{Success: true}, nil
	}

	result := &worker.Result{
		JobID:   types.JobID(req.JobID),
		Success: status == types.StatusCompleted,
	}

	if err := s.controller.Acknowledge(ctx, req.JobID, status, result); err != nil {
		return &rpcapi.AcknowledgeJobResponse{Success: false}, nil
	}

	return &rpcapi.AcknowledgeJobResponse{Success: true}, nil
}

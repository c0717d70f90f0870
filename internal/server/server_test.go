package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChuLiYu/raft-recovery/internal/controller"
	"github.com/ChuLiYu/raft-recovery/internal/rpcapi"
	"github.com/ChuLiYu/raft-recovery/pkg/membership"
	"github.com/ChuLiYu/raft-recovery/pkg/pool"
	"github.com/ChuLiYu/raft-recovery/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) *controller.Controller {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "server_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	cfg := controller.Config{
		WorkerCount:         1,
		TaskTimeout:         2 * time.Second,
		SnapshotInterval:    5 * time.Second,
		MaxRetry:            3,
		WALPath:             filepath.Join(tmpDir, "test.wal"),
		SnapshotPath:        filepath.Join(tmpDir, "test.snapshot"),
		WALBufferSize:       10,
		DisableDispatchLoop: true,
	}

	ctrl, err := controller.NewController(cfg)
	require.NoError(t, err)
	t.Cleanup(ctrl.Stop)

	require.NoError(t, ctrl.Start())
	return ctrl
}

func TestRegisterWorkerJoinsMembership(t *testing.T) {
	ctrl := newTestController(t)
	members := membership.New(nil)
	srv := NewServer(ctrl, nil, members)

	resp, err := srv.RegisterWorker(context.Background(), &rpcapi.RegisterWorkerRequest{
		NodeID:   "worker-1",
		Address:  "10.0.0.5:7000",
		Capacity: 4,
		Tags:     []string{"gpu"},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Greater(t, resp.LeaseDurationMs, int64(0))

	srv.mu.RLock()
	info, ok := srv.workers["worker-1"]
	srv.mu.RUnlock()
	require.True(t, ok, "RegisterWorker should add the worker to the registry")
	require.Equal(t, "10.0.0.5:7000", info.Address)
	require.Equal(t, int32(4), info.Capacity)

	members.MarkSubscribed()
	var nodeID pool.NodeId
	copy(nodeID[:], "worker-1")
	nodeInfo, ok := members.GetNode(nodeID, true)
	require.True(t, ok, "RegisterWorker should also Join the node into membership")
	require.Equal(t, "10.0.0.5:7000", nodeInfo.NodeManagerAddress)
}

// TestRegisterWorkerWithoutMembershipDoesNotPanic covers the standalone
// (no-membership) deployment: RegisterWorker must still succeed even though
// there is nowhere to propagate the join.
func TestRegisterWorkerWithoutMembershipDoesNotPanic(t *testing.T) {
	ctrl := newTestController(t)
	srv := NewServer(ctrl, nil, nil)

	resp, err := srv.RegisterWorker(context.Background(), &rpcapi.RegisterWorkerRequest{
		NodeID:  "worker-1",
		Address: "10.0.0.5:7000",
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
}

func TestIsWorkerDeadBeforeAndAfterLeaseExpiry(t *testing.T) {
	ctrl := newTestController(t)
	srv := NewServer(ctrl, nil, nil)

	srv.mu.Lock()
	srv.workers["worker-1"] = &WorkerInfo{
		NodeID:     "worker-1",
		LastSeen:   time.Now(),
		ExpiryTime: time.Now().Add(time.Hour),
	}
	srv.mu.Unlock()

	var id pool.WorkerId
	copy(id[:], "worker-1")

	require.False(t, srv.IsWorkerDead(id), "worker with a live lease should not be reported dead")

	srv.mu.Lock()
	srv.workers["worker-1"].ExpiryTime = time.Now().Add(-time.Second)
	srv.mu.Unlock()

	require.True(t, srv.IsWorkerDead(id), "worker with a lapsed lease should be reported dead")
}

func TestIsWorkerDeadForUnknownWorker(t *testing.T) {
	ctrl := newTestController(t)
	srv := NewServer(ctrl, nil, nil)

	var id pool.WorkerId
	copy(id[:], "never-registered")

	require.True(t, srv.IsWorkerDead(id), "a worker this node never registered cannot be vouched for as alive")
}

func TestExpireLapsedWorkersMarksMembershipDead(t *testing.T) {
	ctrl := newTestController(t)
	members := membership.New(nil)
	srv := NewServer(ctrl, nil, members)

	require.NoError(t, members.Join("worker-1", pool.NodeInfo{NodeManagerAddress: "10.0.0.5"}))
	require.NoError(t, members.Join("worker-2", pool.NodeInfo{NodeManagerAddress: "10.0.0.6"}))

	srv.mu.Lock()
	srv.workers["worker-1"] = &WorkerInfo{
		NodeID:     "worker-1",
		ExpiryTime: time.Now().Add(-time.Second),
	}
	srv.workers["worker-2"] = &WorkerInfo{
		NodeID:     "worker-2",
		ExpiryTime: time.Now().Add(time.Hour),
	}
	srv.mu.Unlock()

	// ExpireLapsedWorkers must not touch the still-leased worker.
	srv.ExpireLapsedWorkers()

	srv.mu.RLock()
	_, stillTracked := srv.workers["worker-2"]
	srv.mu.RUnlock()
	require.True(t, stillTracked, "a worker with a live lease should not be removed from the registry")

	members.MarkSubscribed()
	var lapsedID, liveID pool.NodeId
	copy(lapsedID[:], "worker-1")
	copy(liveID[:], "worker-2")

	_, ok := members.GetNode(lapsedID, true)
	require.False(t, ok, "the lapsed worker must be marked dead in membership")

	_, ok = members.GetNode(liveID, true)
	require.True(t, ok, "the still-leased worker must remain live in membership")
}

func TestExpireLapsedWorkersNoopWithoutMembership(t *testing.T) {
	ctrl := newTestController(t)
	srv := NewServer(ctrl, nil, nil)

	srv.mu.Lock()
	srv.workers["worker-1"] = &WorkerInfo{NodeID: "worker-1", ExpiryTime: time.Now().Add(-time.Second)}
	srv.mu.Unlock()

	// Must not panic when members is nil (standalone deployments).
	srv.ExpireLapsedWorkers()
}

func TestPollJobsAndAcknowledgeJobRoundTrip(t *testing.T) {
	ctrl := newTestController(t)
	srv := NewServer(ctrl, nil, nil)

	require.NoError(t, ctrl.EnqueueJobs([]types.Job{
		{ID: "job-1", Payload: map[string]interface{}{"x": 1}},
	}))

	pollResp, err := srv.PollJobs(context.Background(), &rpcapi.PollJobsRequest{
		WorkerID: "worker-1",
		MaxJobs:  5,
	})
	require.NoError(t, err)
	require.Len(t, pollResp.Jobs, 1)
	require.Equal(t, "job-1", pollResp.Jobs[0].ID)

	ackResp, err := srv.AcknowledgeJob(context.Background(), &rpcapi.AcknowledgeJobRequest{
		JobID:    "job-1",
		WorkerID: "worker-1",
		Status:   rpcapi.JobStatusComplete,
	})
	require.NoError(t, err)
	require.True(t, ackResp.Success)
}

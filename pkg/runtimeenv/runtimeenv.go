// Package runtimeenv carries the peripheral runtime-environment RPC shapes
// from spec.md §6: messages that flow over pooled connections but whose
// content the pool itself never interprets. It also supplies a second,
// independent pool.Client implementation alongside pkg/raylet, exercising
// the pool from a second call site; NewPool builds a pool that holds only
// runtime-env connections.
package runtimeenv

import (
	"context"
	"fmt"

	"github.com/ChuLiYu/raft-recovery/pkg/pool"
	"github.com/ChuLiYu/raft-recovery/pkg/rpcwire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "runtimeenv.v1.RuntimeEnvService"

// Status mirrors a minimal OK/FAILED result code; spec §6 leaves the
// underlying RPC framework's status codes out of scope, so runtime-env
// replies carry their own small enum instead of reusing grpc's.
type Status string

const (
	StatusOK     Status = "OK"
	StatusFailed Status = "FAILED"
)

type GetOrCreateRuntimeEnvRequest struct {
	SerializedRuntimeEnv string `json:"serialized_runtime_env"`
	RuntimeEnvConfig     string `json:"runtime_env_config,omitempty"`
	JobID                []byte `json:"job_id"`
	SourceProcess        string `json:"source_process"`
}

type GetOrCreateRuntimeEnvReply struct {
	Status                      Status `json:"status"`
	ErrorMessage                string `json:"error_message,omitempty"`
	SerializedRuntimeEnvContext string `json:"serialized_runtime_env_context,omitempty"`
}

type DeleteRuntimeEnvIfPossibleRequest struct {
	SerializedRuntimeEnv string `json:"serialized_runtime_env"`
	SourceProcess        string `json:"source_process"`
}

type DeleteRuntimeEnvIfPossibleReply struct {
	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type RuntimeEnvState struct {
	SerializedRuntimeEnv string `json:"serialized_runtime_env"`
	RefCount             int64  `json:"ref_count"`
}

type GetRuntimeEnvsInfoRequest struct {
	Limit int64 `json:"limit,omitempty"`
}

type GetRuntimeEnvsInfoReply struct {
	States []RuntimeEnvState `json:"states"`
	Total  int64             `json:"total"`
}

// Client is the pool.Client implementation for runtime-env traffic: the
// same IdleTracker-backed shape as pkg/raylet's client, but issuing a
// different RPC set over the same kind of connection.
type Client struct {
	cc   *grpc.ClientConn
	idle *rpcwire.IdleTracker
}

// NewPool builds a pool.Pool dedicated to runtime-env connections.
func NewPool(opts ...pool.Option) *pool.Pool {
	return pool.NewPool(func(addr pool.Address) (pool.Client, error) {
		target := fmt.Sprintf("%s:%d", addr.IP, addr.Port)
		cc, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("runtimeenv: dial %s: %w", target, err)
		}
		return &Client{cc: cc, idle: rpcwire.NewIdleTracker()}, nil
	}, opts...)
}

func (c *Client) IsIdleAfterRPCs() bool {
	return c.idle.IsIdleAfterRPCs()
}

func (c *Client) GetOrCreateRuntimeEnv(ctx context.Context, req *GetOrCreateRuntimeEnvRequest) (*GetOrCreateRuntimeEnvReply, error) {
	done := c.idle.BeginRPC()
	defer done()
	return rpcwire.Call[GetOrCreateRuntimeEnvRequest, GetOrCreateRuntimeEnvReply](ctx, c.cc, "/"+serviceName+"/GetOrCreateRuntimeEnv", req)
}

func (c *Client) DeleteRuntimeEnvIfPossible(ctx context.Context, req *DeleteRuntimeEnvIfPossibleRequest) (*DeleteRuntimeEnvIfPossibleReply, error) {
	done := c.idle.BeginRPC()
	defer done()
	return rpcwire.Call[DeleteRuntimeEnvIfPossibleRequest, DeleteRuntimeEnvIfPossibleReply](ctx, c.cc, "/"+serviceName+"/DeleteRuntimeEnvIfPossible", req)
}

func (c *Client) GetRuntimeEnvsInfo(ctx context.Context, req *GetRuntimeEnvsInfoRequest) (*GetRuntimeEnvsInfoReply, error) {
	done := c.idle.BeginRPC()
	defer done()
	return rpcwire.Call[GetRuntimeEnvsInfoRequest, GetRuntimeEnvsInfoReply](ctx, c.cc, "/"+serviceName+"/GetRuntimeEnvsInfo", req)
}

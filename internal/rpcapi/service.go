package rpcapi

import (
	"context"

	"github.com/ChuLiYu/raft-recovery/pkg/rpcwire"
	"google.golang.org/grpc"
)

// ServiceName replaces the generated FalconQueueService full name; it is
// the grpc method path prefix for every RPC below.
const ServiceName = "falconqueue.v1.FalconQueueService"

// FalconQueueServiceServer is the interface internal/server.Server
// implements. It stands in for the generated
// UnimplementedFalconQueueServiceServer + interface pair.
type FalconQueueServiceServer interface {
	RequestVote(ctx context.Context, req *RequestVoteRequest) (*RequestVoteResponse, error)
	AppendEntries(ctx context.Context, req *AppendEntriesRequest) (*AppendEntriesResponse, error)
	SubmitJob(ctx context.Context, req *SubmitJobRequest) (*SubmitJobResponse, error)
	RegisterWorker(ctx context.Context, req *RegisterWorkerRequest) (*RegisterWorkerResponse, error)
	SendHeartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error)
	PollJobs(ctx context.Context, req *PollJobsRequest) (*PollJobsResponse, error)
	AcknowledgeJob(ctx context.Context, req *AcknowledgeJobRequest) (*AcknowledgeJobResponse, error)
}

// RegisterFalconQueueServiceServer registers srv's methods on s, replacing
// the generated RegisterFalconQueueServiceServer function.
func RegisterFalconQueueServiceServer(s grpc.ServiceRegistrar, srv FalconQueueServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FalconQueueServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestVote", Handler: requestVoteHandler},
		{MethodName: "AppendEntries", Handler: appendEntriesHandler},
		{MethodName: "SubmitJob", Handler: submitJobHandler},
		{MethodName: "RegisterWorker", Handler: registerWorkerHandler},
		{MethodName: "SendHeartbeat", Handler: sendHeartbeatHandler},
		{MethodName: "PollJobs", Handler: pollJobsHandler},
		{MethodName: "AcknowledgeJob", Handler: acknowledgeJobHandler},
	},
}

func requestVoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return rpcwire.UnaryHandler(srv.(FalconQueueServiceServer).RequestVote)(srv, ctx, dec, interceptor)
}

func appendEntriesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return rpcwire.UnaryHandler(srv.(FalconQueueServiceServer).AppendEntries)(srv, ctx, dec, interceptor)
}

func submitJobHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return rpcwire.UnaryHandler(srv.(FalconQueueServiceServer).SubmitJob)(srv, ctx, dec, interceptor)
}

func registerWorkerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return rpcwire.UnaryHandler(srv.(FalconQueueServiceServer).RegisterWorker)(srv, ctx, dec, interceptor)
}

func sendHeartbeatHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return rpcwire.UnaryHandler(srv.(FalconQueueServiceServer).SendHeartbeat)(srv, ctx, dec, interceptor)
}

func pollJobsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return rpcwire.UnaryHandler(srv.(FalconQueueServiceServer).PollJobs)(srv, ctx, dec, interceptor)
}

func acknowledgeJobHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return rpcwire.UnaryHandler(srv.(FalconQueueServiceServer).AcknowledgeJob)(srv, ctx, dec, interceptor)
}

// Client is a thin typed wrapper over a *grpc.ClientConn, replacing the
// generated FalconQueueServiceClient.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) RequestVote(ctx context.Context, req *RequestVoteRequest) (*RequestVoteResponse, error) {
	return rpcwire.Call[RequestVoteRequest, RequestVoteResponse](ctx, c.cc, "/"+ServiceName+"/RequestVote", req)
}

func (c *Client) AppendEntries(ctx context.Context, req *AppendEntriesRequest) (*AppendEntriesResponse, error) {
	return rpcwire.Call[AppendEntriesRequest, AppendEntriesResponse](ctx, c.cc, "/"+ServiceName+"/AppendEntries", req)
}

func (c *Client) SubmitJob(ctx context.Context, req *SubmitJobRequest) (*SubmitJobResponse, error) {
	return rpcwire.Call[SubmitJobRequest, SubmitJobResponse](ctx, c.cc, "/"+ServiceName+"/SubmitJob", req)
}

func (c *Client) RegisterWorker(ctx context.Context, req *RegisterWorkerRequest) (*RegisterWorkerResponse, error) {
	return rpcwire.Call[RegisterWorkerRequest, RegisterWorkerResponse](ctx, c.cc, "/"+ServiceName+"/RegisterWorker", req)
}

func (c *Client) SendHeartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	return rpcwire.Call[HeartbeatRequest, HeartbeatResponse](ctx, c.cc, "/"+ServiceName+"/SendHeartbeat", req)
}

func (c *Client) PollJobs(ctx context.Context, req *PollJobsRequest) (*PollJobsResponse, error) {
	return rpcwire.Call[PollJobsRequest, PollJobsResponse](ctx, c.cc, "/"+ServiceName+"/PollJobs", req)
}

func (c *Client) AcknowledgeJob(ctx context.Context, req *AcknowledgeJobRequest) (*AcknowledgeJobResponse, error) {
	return rpcwire.Call[AcknowledgeJobRequest, AcknowledgeJobResponse](ctx, c.cc, "/"+ServiceName+"/AcknowledgeJob", req)
}

package rpcwire

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// Call invokes method on cc, marshaling req and unmarshaling into a freshly
// allocated *Resp via the rpcwire JSON codec. It is the client-side
// substitute for a protoc-generated method: every call site that would
// otherwise hold a generated client stub instead calls rpcwire.Call
// directly against a *grpc.ClientConn.
func Call[Req any, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req *Req) (*Resp, error) {
	resp := new(Resp)
	opts := []grpc.CallOption{grpc.CallContentSubtype(CodecName)}
	if err := cc.Invoke(ctx, method, req, resp, opts...); err != nil {
		return nil, fmt.Errorf("rpcwire: call %s: %w", method, err)
	}
	return resp, nil
}

// UnaryHandler adapts a typed (context, *Req) -> (*Resp, error) function into
// the grpc.MethodHandler shape a grpc.ServiceDesc requires, including the
// interceptor chain. It is the server-side substitute for a
// protoc-generated method handler.
func UnaryHandler[Req any, Resp any](fn func(ctx context.Context, req *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, fmt.Errorf("rpcwire: decode request: %w", err)
		}
		if interceptor == nil {
			return fn(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

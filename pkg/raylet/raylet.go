// Package raylet implements the node-manager-side liveness RPC that
// pkg/pool's unavailable-timeout callback consults: given a worker id,
// answer whether that worker is known dead on this node. Connections to a
// node's raylet are themselves cached through a pkg/pool.Pool, the same
// cache used for ordinary worker-to-worker RPC clients.
package raylet

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/ChuLiYu/raft-recovery/internal/rpcapi"
	"github.com/ChuLiYu/raft-recovery/pkg/pool"
	"github.com/ChuLiYu/raft-recovery/pkg/rpcwire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "raylet.v1.RayletService"

// client implements pool.RayletClient over a grpc connection, and also
// pool.Client so the same connection can live inside a pool.Pool.
type client struct {
	cc   *grpc.ClientConn
	idle *rpcwire.IdleTracker
}

func dial(host string, port uint16) (*client, error) {
	target := net.JoinHostPort(host, strconv.Itoa(int(port)))
	cc, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("raylet: dial %s: %w", target, err)
	}
	return &client{cc: cc, idle: rpcwire.NewIdleTracker()}, nil
}

// IsIdleAfterRPCs implements pool.Client.
func (c *client) IsIdleAfterRPCs() bool {
	return c.idle.IsIdleAfterRPCs()
}

// IsLocalWorkerDead implements pool.RayletClient. The RPC runs on its own
// goroutine so a slow raylet never blocks the caller that triggered the
// probe; cb is invoked exactly once.
func (c *client) IsLocalWorkerDead(workerID pool.WorkerId, cb func(err error, isDead bool)) {
	done := c.idle.BeginRPC()
	go func() {
		defer done()

		req := &rpcapi.IsLocalWorkerDeadRequest{WorkerID: workerID[:]}
		resp, err := rpcwire.Call[rpcapi.IsLocalWorkerDeadRequest, rpcapi.IsLocalWorkerDeadResponse](
			context.Background(), c.cc, "/"+serviceName+"/IsLocalWorkerDead", req)
		if err != nil {
			cb(err, false)
			return
		}
		cb(nil, resp.IsDead)
	}()
}

// NewClientFactory builds a pool.RayletClientFactory backed by p: repeated
// calls for the same (host, port) reuse the cached connection rather than
// dialing again, exactly as an ordinary worker RPC client would through the
// same pool type.
func NewClientFactory(p *pool.Pool) pool.RayletClientFactory {
	return func(host string, port uint16) (pool.RayletClient, error) {
		addr := pool.Address{
			WorkerID: rayletWorkerID(host, port),
			IP:       host,
			Port:     port,
		}
		c, err := p.GetOrConnect(addr)
		if err != nil {
			return nil, err
		}
		rc, ok := c.(*client)
		if !ok {
			return nil, fmt.Errorf("raylet: pool returned unexpected client type %T", c)
		}
		return rc, nil
	}
}

// NewPool builds the pool.Pool dedicated to raylet connections, wired with
// the raylet dial factory.
func NewPool(opts ...pool.Option) *pool.Pool {
	return pool.NewPool(func(addr pool.Address) (pool.Client, error) {
		return dial(addr.IP, addr.Port)
	}, opts...)
}

// rayletWorkerID derives a stable pool key for a raylet connection from its
// dial target, since raylets are addressed by (host, port) rather than by
// WorkerId. The pool only requires a non-nil, stable key per distinct peer.
func rayletWorkerID(host string, port uint16) pool.WorkerId {
	var id pool.WorkerId
	copy(id[:], host)
	id[14] = byte(port >> 8)
	id[15] = byte(port)
	return id
}

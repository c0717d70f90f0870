package pool

// Client is the narrow capability the pool requires of anything it caches:
// an oracle over the handle's own dispatch counters. Everything else a
// concrete client does (issuing RPCs) is opaque to the pool — see
// pkg/raylet and pkg/runtimeenv for two independent concrete Clients.
type Client interface {
	// IsIdleAfterRPCs reports whether no RPC has been dispatched through
	// this handle since it was last deemed idle, and none is presently in
	// flight. The pool treats this as authoritative; it never inspects a
	// client's internals directly.
	IsIdleAfterRPCs() bool
}

// ClientFactory builds a new Client for a peer the pool has not cached yet.
// Factories are expected to be non-blocking: they build a stub, they do not
// connect synchronously (spec.md §5).
type ClientFactory func(addr Address) (Client, error)

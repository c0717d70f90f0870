// Package rpcwire lets the runtime's internal RPC surfaces (worker<->master
// dispatch, raylet liveness probes, raft peer transport) run over real
// google.golang.org/grpc connections without protoc-generated stubs: a JSON
// codec stands in for protobuf wire encoding, and a small generic Call /
// UnaryHandler pair stand in for the client/server code a .proto file would
// otherwise generate.
package rpcwire

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype grpc negotiates for this codec, passed
// via grpc.CallContentSubtype on the client side and registered globally on
// the server side.
const CodecName = "rpcwire-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements grpc/encoding.Codec by marshaling messages as JSON.
// Every message type exchanged over rpcwire must be a plain exported struct
// — no protobuf-specific methods are required or used.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpcwire: marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpcwire: unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return CodecName
}

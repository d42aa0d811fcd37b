package reconcile

import (
	"context"
	"encoding/json"
)

// Kind classifies a server reply body.
type Kind string

const (
	KindJSON Kind = "json"
	KindText Kind = "text"
	KindRaw  Kind = "raw"
	KindNone Kind = "none"
)

// Reply is a classified server response. Only the field matching Kind is set.
type Reply struct {
	Kind Kind
	JSON json.RawMessage
	Text string
	Raw  []byte
}

// Connectivity sends one request to the remote authority. body is encoded
// as JSON. An error means the transport failed; any reply that arrives is
// returned for the caller to interpret.
type Connectivity interface {
	Send(ctx context.Context, method, path string, body any) (Reply, error)
}

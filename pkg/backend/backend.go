package backend

import (
	"context"
	"fmt"

	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// Client is the model backend contract. Submit issues one generation request
// and returns a channel of raw wire events; the channel is closed when the
// response stream ends. Continuations are expressed purely through
// Request.Messages (prior assistant output and tool results appended).
//
// Implementations must honor ctx cancellation while pumping events.
type Client interface {
	Submit(ctx context.Context, req *turns.Request) (<-chan RawEvent, error)
}

// FaultKind classifies a transport-level backend fault.
type FaultKind string

const (
	FaultRateLimited FaultKind = "rate_limited"
	FaultTimeout     FaultKind = "timeout"
	FaultConnection  FaultKind = "connection"
	FaultOverloaded  FaultKind = "overloaded"
	// FaultInvalidRequest marks a request the provider rejected (malformed,
	// oversized, bad auth, unknown model). Retrying the same payload cannot
	// succeed, but the turn still finalizes with a readable outcome.
	FaultInvalidRequest FaultKind = "invalid_request"
	// FaultProtocol marks malformed or out-of-contract backend behavior.
	// Unlike the other kinds it is structural, not transient.
	FaultProtocol FaultKind = "protocol"
)

// Fault is an error produced by the backend or its transport.
type Fault struct {
	Kind   FaultKind
	Detail string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("backend fault (%s): %s", f.Kind, f.Detail)
}

// Transient reports whether retrying the whole turn could succeed. Rejected
// requests and protocol faults are never transient.
func (f *Fault) Transient() bool {
	switch f.Kind {
	case FaultRateLimited, FaultTimeout, FaultConnection, FaultOverloaded:
		return true
	}
	return false
}

// Reportable reports whether the fault should finalize the turn as an
// annotated Result instead of propagating as a Go error. Everything except
// protocol violations qualifies: transient conditions may be retried,
// rejected requests need a user-facing explanation either way.
func (f *Fault) Reportable() bool {
	return f.Kind != FaultProtocol
}

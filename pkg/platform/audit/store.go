package audit

import "context"

// Store persists the chain. AppendLinked is the only serialization point: it
// must read the current tail and persist the event returned by build
// atomically, so two writers can never link to the same predecessor.
type Store interface {
	AppendLinked(ctx context.Context, build func(prev *Event) (*Event, error)) (*Event, error)
	// Last returns the chain tail, or sentinel.ErrNotFound on an empty chain.
	Last(ctx context.Context) (*Event, error)
	// GetBySequence returns sentinel.ErrNotFound when absent.
	GetBySequence(ctx context.Context, seq int64) (*Event, error)
	// List returns events in the range ordered by sequence.
	List(ctx context.Context, r Range) ([]Event, error)
}

// Forwarder receives committed events for downstream fan-out. Implementations
// must not block the append path.
type Forwarder interface {
	Forward(ctx context.Context, e Event)
}

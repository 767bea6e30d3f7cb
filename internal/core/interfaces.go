package core

// Frame is one serialized event envelope ready for the wire.
type Frame []byte

// ConnID identifies a live transport-level link. The coordinator only
// ever holds the identifier, never the transport object itself.
type ConnID string

// SignalConnection abstracts a client transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

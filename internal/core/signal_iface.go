package core

// Frame is an encoded realtime message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking; a full queue is an error.
	TrySend(Frame) error
	Close()
}

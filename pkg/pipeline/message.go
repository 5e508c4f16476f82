package pipeline

import "fmt"

// MessageKind tags the variant carried by a Message.
type MessageKind int

const (
	// KindBatch carries items.
	KindBatch MessageKind = iota
	// KindEndOfStream tells the receiver that no further batches follow.
	KindEndOfStream
)

func (k MessageKind) String() string {
	switch k {
	case KindBatch:
		return "batch"
	case KindEndOfStream:
		return "end-of-stream"
	}
	return fmt.Sprintf("MessageKind(%d)", int(k))
}

// Message is the unit exchanged between coordinator, workers and sinks.
// It is either a batch of items or the end-of-stream sentinel.
type Message[T any] struct {
	kind  MessageKind
	items []T
}

// Batch wraps items in a batch message.
func Batch[T any](items []T) Message[T] {
	return Message[T]{kind: KindBatch, items: items}
}

// EndOfStream returns the sentinel message.
func EndOfStream[T any]() Message[T] {
	return Message[T]{kind: KindEndOfStream}
}

// Kind returns the variant tag.
func (m Message[T]) Kind() MessageKind {
	return m.kind
}

// Items returns the batch contents. It is nil for the sentinel.
func (m Message[T]) Items() []T {
	return m.items
}

package events

import "sync"

// defaultBuffer absorbs bursts (formatting chunks) without blocking the
// producer on every emit.
const defaultBuffer = 64

// Stream is a single-producer, ordered, non-lossy event stream for one run.
// The engine emits; exactly one consumer ranges over Events() until close.
//
// Emit after Close is a no-op — this keeps producer shutdown races benign
// when a run is torn down mid-step.
type Stream struct {
	ch chan Event

	mu     sync.Mutex
	closed bool
}

// NewStream creates a Stream with the default buffer.
func NewStream() *Stream {
	return &Stream{ch: make(chan Event, defaultBuffer)}
}

// Events returns the consumer side. The channel is closed after the
// terminal event has been emitted.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Emit appends an event to the stream, blocking if the consumer is slow.
// Ordering is guaranteed by the single producer.
func (s *Stream) Emit(name string, data any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.ch <- Event{Name: name, Data: data}
}

// Close ends the stream. Safe to call multiple times.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

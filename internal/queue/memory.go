package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue[T] for tests and the router/dispatcher
// wiring tests that don't need batching semantics exercised directly.
type MemoryQueue[T any] struct {
	mu       sync.Mutex
	messages []Message[T]
}

// NewMemoryQueue returns an empty MemoryQueue.
func NewMemoryQueue[T any]() *MemoryQueue[T] { return &MemoryQueue[T]{} }

// Send implements Queue.
func (q *MemoryQueue[T]) Send(ctx context.Context, items []T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range items {
		q.messages = append(q.messages, Message[T]{Handle: uuid.NewString(), Payload: item})
	}
	return nil
}

// Receive implements Queue.
func (q *MemoryQueue[T]) Receive(ctx context.Context, max int) ([]Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 || max > len(q.messages) {
		max = len(q.messages)
	}
	out := append([]Message[T](nil), q.messages[:max]...)
	return out, nil
}

// Ack implements Queue.
func (q *MemoryQueue[T]) Ack(ctx context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.Handle == handle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// MemoryStream is an in-process Stream[T] for tests.
type MemoryStream[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewMemoryStream returns an empty MemoryStream.
func NewMemoryStream[T any]() *MemoryStream[T] { return &MemoryStream[T]{} }

// Publish implements Stream.
func (s *MemoryStream[T]) Publish(ctx context.Context, items []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	return nil
}

// Items returns every published item, for test assertions.
func (s *MemoryStream[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.items...)
}

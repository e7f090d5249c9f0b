// Package queue defines the Queue/Stream boundary the router, dispatcher
// and consolidator pass tasks through. The cloud SQS/Kinesis plumbing
// belongs to the deployment platform; a Postgres-backed reference
// implementation is provided so the pipeline is runnable without a cloud
// account.
package queue

import "context"

// SQSBatchSize and StreamBatchSize are the fixed batch sizes for the two
// queue shapes: small transactional batches for task queues, large batches
// for append-only output streams.
const (
	SQSBatchSize    = 10
	StreamBatchSize = 500

	// DefaultWorkers is the default fan-out parallelism for queue consumers
	// and batched writers.
	DefaultWorkers = 4
)

// Queue is a task queue: small messages consumed one batch at a time, each
// acknowledged individually so a single bad message doesn't block its
// batch-mates.
type Queue[T any] interface {
	// Send enqueues items in batches of at most SQSBatchSize. An entry that
	// fails is not retried. Returns the first error encountered after all
	// entries have been attempted, if any.
	Send(ctx context.Context, items []T) error

	// Receive returns up to max currently available messages without
	// waiting for new ones, each with an opaque handle used to Ack it.
	Receive(ctx context.Context, max int) ([]Message[T], error)

	// Ack removes a successfully processed message from the queue.
	Ack(ctx context.Context, handle string) error
}

// Message pairs a decoded payload with the handle needed to acknowledge it.
type Message[T any] struct {
	Handle  string
	Payload T
}

// Stream is an append-only output: large batches, no per-message ack.
type Stream[T any] interface {
	// Publish appends items in batches of at most StreamBatchSize. An entry
	// that fails is not retried; the first error is returned.
	Publish(ctx context.Context, items []T) error
}

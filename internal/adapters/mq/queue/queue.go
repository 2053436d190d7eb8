// Package queue holds admin write commands until the single writer takes
// them. Enqueue never blocks; a full queue is reported as backpressure.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/scoreboard/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 256
)

// Result is what the writer sends back for one command.
type Result struct {
	Value any
	Err   error
}

// Command is one mutating admin action waiting for the writer.
type Command struct {
	ID         string
	Kind       string
	Payload    any
	Reply      chan Result
	EnqueuedAt time.Time
	// Deadline is when the caller stops waiting. The writer skips a command
	// whose deadline has passed before it starts.
	Deadline time.Time
}

// NewCommand builds a command with a fresh id and a one-slot reply channel,
// so the writer never blocks on a caller that has gone away.
func NewCommand(kind string, payload any, deadline time.Time) Command {
	return Command{
		ID:       uuid.NewString(),
		Kind:     kind,
		Payload:  payload,
		Reply:    make(chan Result, 1),
		Deadline: deadline,
	}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a command. It returns ErrFull or ErrClosed instead of
	// waiting for room.
	Enqueue(ctx context.Context, c Command) error

	// Dequeue returns the channel the writer reads from. It is closed once
	// the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Command

	// Len returns the current number of queued commands.
	Len(ctx context.Context) int

	// Capacity returns the bound.
	Capacity() int

	// Close stops new enqueues. Commands already queued stay readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	commands chan Command
	capacity int
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.commands = make(chan Command, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a command to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, c Command) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return err
	}

	if c.EnqueuedAt.IsZero() {
		c.EnqueuedAt = q.now()
	}

	select {
	case q.commands <- c:
		metrics.UpdateQueueSize(len(q.commands))
		return nil
	default:
		metrics.RecordQueueRejected("full")
		return ErrFull
	}
}

// Dequeue returns the command channel.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Command {
	return q.commands
}

// Len returns the current number of queued commands.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.commands)
	metrics.UpdateQueueSize(size)
	return size
}

// Capacity returns the maximum number of queued commands.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.commands)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

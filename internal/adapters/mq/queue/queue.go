// Package queue holds deferred tasks until a worker picks them up.
//
// Tasks are split into two lanes so that work a user is waiting on is
// handed out before background refreshes.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/pitchrank/internal/domain/session"
	"github.com/okian/pitchrank/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Task is a unit of deferred work.
type Task struct {
	Run        func()
	Priority   session.Priority
	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a task. It returns ErrFull or ErrClosed when the task
	// was not accepted.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue returns a channel of tasks, user-visible ones first. The
	// channel is closed once the queue is closed and drained, or ctx ends.
	Dequeue(ctx context.Context) <-chan Task

	// Len returns the number of waiting tasks.
	Len(ctx context.Context) int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue with one buffered channel per priority.
type InMemoryQueue struct {
	interactive chan Task
	background  chan Task
	capacity    int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue; capacity applies to each lane.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.interactive = make(chan Task, q.capacity)
	q.background = make(chan Task, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity * 2)
	metrics.UpdateQueueSize(0, q.capacity*2)
	return q
}

// Enqueue adds a task to the lane matching its priority.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if t.Run == nil {
		return ErrNilTask
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}

	lane := q.interactive
	if t.Priority == session.PriorityBackground {
		lane = q.background
	}

	select {
	case lane <- t:
		metrics.RecordQueueEnqueue(t.Priority.String())
		q.updateSize()
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordQueueEnqueueError("full")
		return ErrFull
	}
}

// Dequeue merges both lanes into one channel, draining the interactive lane
// before taking background work.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Task {
	out := make(chan Task)
	go func() {
		defer close(out)
		interactive, background := q.interactive, q.background
		for interactive != nil || background != nil {
			var (
				t  Task
				ok bool
			)
			select {
			case t, ok = <-interactive:
				if !ok {
					interactive = nil
					continue
				}
			default:
				select {
				case t, ok = <-interactive:
					if !ok {
						interactive = nil
						continue
					}
				case t, ok = <-background:
					if !ok {
						background = nil
						continue
					}
				case <-ctx.Done():
					return
				}
			}

			select {
			case out <- t:
				metrics.RecordQueueDequeue(float64(time.Since(t.EnqueuedAt).Microseconds()) / 1000)
				q.updateSize()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the number of waiting tasks across both lanes.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.interactive) + len(q.background)
}

func (q *InMemoryQueue) updateSize() {
	metrics.UpdateQueueSize(len(q.interactive)+len(q.background), q.capacity*2)
}

// Close stops accepting tasks. Waiting tasks are still handed out.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.interactive)
	close(q.background)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

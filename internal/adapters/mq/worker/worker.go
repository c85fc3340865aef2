// Package worker runs deferred tasks off the queue and implements the
// session scheduler on top of it.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/pitchrank/internal/adapters/mq/queue"
	"github.com/okian/pitchrank/internal/domain/session"
	"github.com/okian/pitchrank/pkg/logger"
	"github.com/okian/pitchrank/pkg/metrics"
)

const (
	defaultWorkerCount  = 1
	poolShutdownTimeout = 5 * time.Second
)

// Queue is what workers and the pool need from a task queue.
type Queue interface {
	Enqueue(ctx context.Context, t queue.Task) error
	Dequeue(ctx context.Context) <-chan queue.Task
	Close() error
}

// Worker pulls tasks off a queue and runs them one at a time.
type Worker struct {
	queue  Queue
	name   string
	done   chan struct{}
	logger logger.Logger
}

// NewWorker creates a worker reading from q.
func NewWorker(q Queue, opts ...Option) *Worker {
	w := &Worker{
		queue:  q,
		name:   "worker",
		done:   make(chan struct{}),
		logger: logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run executes tasks until the queue is drained and closed or ctx ends.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for t := range w.queue.Dequeue(ctx) {
		w.execute(ctx, t)
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) execute(ctx context.Context, t queue.Task) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerTaskLatency(float64(time.Since(start).Microseconds()) / 1000)
		if r := recover(); r != nil {
			metrics.RecordWorkerPanic()
			w.logger.Error(ctx, "task panicked",
				logger.String("priority", t.Priority.String()),
				logger.Any("panic", r),
			)
		}
	}()
	t.Run()
}

// Pool runs tasks on a fixed set of workers. It satisfies session.Scheduler;
// a task the queue cannot take runs on the caller's goroutine instead.
type Pool struct {
	queue   Queue
	count   int
	workers []*Worker
	logger  logger.Logger

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
}

var _ session.Scheduler = (*Pool)(nil)

// NewPool creates a pool of count workers over q. Call Start before use;
// until then Schedule runs tasks inline.
func NewPool(q Queue, count int, opts ...PoolOption) *Pool {
	if count < 1 {
		count = defaultWorkerCount
	}
	p := &Pool{
		queue:  q,
		count:  count,
		logger: logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.workers = make([]*Worker, p.count)
	for i := range p.workers {
		p.workers[i] = NewWorker(p.queue, WithName("worker-"+strconv.Itoa(i)), WithLogger(p.logger))
		go p.workers[i].Run(ctx)
	}
	p.running = true
	metrics.UpdateWorkerActiveCount(p.count)
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", p.count))
}

// Schedule enqueues task, or runs it immediately when the pool is not
// running or the queue rejects it.
func (p *Pool) Schedule(task func(), priority session.Priority) {
	if task == nil {
		return
	}
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()

	if running {
		err := p.queue.Enqueue(context.Background(), queue.Task{Run: task, Priority: priority, EnqueuedAt: time.Now()})
		if err == nil {
			return
		}
		p.logger.Debug(context.Background(), "running task inline", logger.Error(err))
	}
	metrics.RecordSchedulerInline()
	task()
}

// Shutdown closes the queue, lets workers drain it, and waits for them
// until ctx or the shutdown timeout expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	workers := p.workers
	cancel := p.cancel
	p.mu.Unlock()

	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	shutdownCtx, stop := context.WithTimeout(ctx, poolShutdownTimeout)
	defer stop()
	defer cancel()

	for i, w := range workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			metrics.UpdateWorkerActiveCount(0)
			return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.count }

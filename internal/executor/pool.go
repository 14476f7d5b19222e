// Package executor runs route-table loading, interceptor chains and provider
// initialization off the caller's goroutine on a bounded worker pool.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Errors
var (
	ErrRejected = errors.New("executor queue full, task rejected")
	ErrClosed   = errors.New("executor closed")
)

// DefaultQueueSize is the number of tasks that may wait for a free worker.
const DefaultQueueSize = 64

// DefaultWorkers returns the number of available CPUs plus one.
func DefaultWorkers() int {
	return runtime.NumCPU() + 1
}

// Config holds pool settings. Zero values select the defaults.
type Config struct {
	Workers   int
	QueueSize int
}

// Stats contains pool counters.
type Stats struct {
	Workers   int
	Queued    int
	Submitted int64
	Completed int64
	Rejected  int64
	Panics    int64
}

type task struct {
	name string
	fn   func()
}

// Pool is a fixed set of workers draining a bounded queue. Submit never
// blocks: work that does not fit in the queue is rejected and logged.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	tasks  chan task
	closed bool

	startOnce sync.Once
	wg        sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// New creates a Pool. Workers run once Start is called; tasks submitted
// before that wait in the queue.
func New(cfg Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Pool{
		cfg:    cfg,
		logger: logger,
		tasks:  make(chan task, cfg.QueueSize),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
		p.logger.Info("executor started",
			"workers", p.cfg.Workers,
			"queue_size", p.cfg.QueueSize,
		)
	})
	return nil
}

// Stop closes the queue and waits for queued tasks to finish or ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	// A pool stopped before Start never launches workers.
	p.startOnce.Do(func() {})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("executor stopped", "completed", p.completed.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues fn under name without blocking.
func (p *Pool) Submit(name string, fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return fmt.Errorf("submit %s: %w", name, ErrClosed)
	}

	select {
	case p.tasks <- task{name: name, fn: fn}:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		p.logger.Warn("task rejected, executor queue full",
			"task", name,
			"queue_size", p.cfg.QueueSize,
		)
		return fmt.Errorf("submit %s: %w", name, ErrRejected)
	}
}

// Stats returns pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.cfg.Workers,
		Queued:    len(p.tasks),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(id, t)
	}
}

// run executes one task; a panic is logged and does not kill the worker.
func (p *Pool) run(id int, t task) {
	defer func() {
		p.completed.Add(1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("task panicked",
				"task", t.name,
				"worker", id,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	t.fn()
}

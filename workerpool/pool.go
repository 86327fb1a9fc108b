// Package workerpool runs request handlers on a fixed set of goroutines fed
// by a bounded queue, keeping blocking backend work off the HTTP goroutines.
package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/ruteri/account-generator/common"
	"github.com/ruteri/account-generator/metrics"
	"go.uber.org/atomic"
)

var ErrPoolClosed = errors.New("worker pool is closed")

type Pool struct {
	tasks chan func()
	log   *slog.Logger

	// mu guards closing tasks against concurrent Submit calls.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	queued  atomic.Int64
	running atomic.Int64
}

// New starts size workers sharing a queue of queueSize pending tasks.
// Non-positive values fall back to one worker and an unbuffered queue.
func New(size, queueSize int, log *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = common.DiscardLogger()
	}

	p := &Pool{
		tasks: make(chan func(), queueSize),
		log:   log,
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Submit hands task to a worker, blocking while the queue is full. It fails
// if the pool is closed or ctx ends before the task is queued.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		metrics.WorkerPoolRejected.Inc()
		return ErrPoolClosed
	}

	metrics.WorkerPoolQueued.Set(float64(p.queued.Inc()))
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		metrics.WorkerPoolQueued.Set(float64(p.queued.Dec()))
		metrics.WorkerPoolRejected.Inc()
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		metrics.WorkerPoolQueued.Set(float64(p.queued.Dec()))
		metrics.WorkerPoolRunning.Set(float64(p.running.Inc()))
		p.run(task)
		metrics.WorkerPoolRunning.Set(float64(p.running.Dec()))
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Worker task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}

// Close stops accepting tasks and waits for queued and running tasks to
// finish. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) Queued() int64 {
	return p.queued.Load()
}

func (p *Pool) Running() int64 {
	return p.running.Load()
}

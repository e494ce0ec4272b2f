// Package dispatch runs units of work on a fixed set of worker goroutines
// fed from one shared FIFO queue.
package dispatch

import (
	"container/list"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cryguy/evaljs/internal/core"
)

// Worker identifies the goroutine running a task. A worker is pinned to one
// OS thread for its whole life, so per-worker engine state never migrates.
type Worker struct {
	ID int
}

// Task is one unit of work. It runs to completion before its worker
// dequeues the next one.
type Task func(w Worker)

// Pool is a fixed-size worker pool.
type Pool struct {
	size   int
	limit  int
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  *list.List
	closed bool

	wg       sync.WaitGroup
	busy     atomic.Int64
	done     atomic.Uint64
	panicked atomic.Uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithQueueLimit rejects Submit with core.ErrQueueFull once n tasks are
// waiting. Zero keeps the queue unbounded.
func WithQueueLimit(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.limit = n
		}
	}
}

// WithLogger sets the logger for worker panics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// New starts a pool of size workers. A size of zero or less uses
// runtime.NumCPU().
func New(size int, opts ...Option) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		size:   size,
		logger: slog.Default(),
		queue:  list.New(),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.work(Worker{ID: i})
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Submit enqueues t. It never blocks on running work.
func (p *Pool) Submit(t Task) error {
	if t == nil {
		return fmt.Errorf("dispatch: nil task")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return core.ErrClosed
	}
	if p.limit > 0 && p.queue.Len() >= p.limit {
		return core.ErrQueueFull
	}
	p.queue.PushBack(t)
	p.cond.Signal()
	return nil
}

// Len returns the number of queued tasks not yet picked up.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Busy returns the number of workers currently running a task.
func (p *Pool) Busy() int64 { return p.busy.Load() }

// Completed returns the number of tasks that have finished, including
// those that panicked.
func (p *Pool) Completed() uint64 { return p.done.Load() }

// Close stops accepting work, lets the workers drain the queue and waits
// for them to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) work(w Worker) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		t, ok := p.next()
		if !ok {
			return
		}
		p.run(w, t)
	}
}

// next blocks until a task is available. It reports false once the pool is
// closed and the queue is empty.
func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.queue.Len() == 0 {
		if p.closed {
			return nil, false
		}
		p.cond.Wait()
	}
	return p.queue.Remove(p.queue.Front()).(Task), true
}

func (p *Pool) run(w Worker, t Task) {
	p.busy.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.logger.Error("dispatch task panicked", "worker", w.ID, "panic", r)
		}
		p.busy.Add(-1)
		p.done.Add(1)
	}()
	t(w)
}

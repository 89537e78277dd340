package domain

import (
	"runtime/debug"
	"sync"

	"github.com/gammazero/deque"
)

// Executor schedules independent work. Transport duties, handlers and
// maintainers are started through one so callers control where they run.
type Executor interface {
	Go(fn func())
}

// GoroutineExecutor runs every task on its own goroutine.
type GoroutineExecutor struct{}

func (GoroutineExecutor) Go(fn func()) {
	go fn()
}

// WorkerPool runs tasks on a fixed number of workers. Submission never
// blocks: tasks wait in an unbounded backlog.
type WorkerPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	backlog deque.Deque[func()]
	closed  bool
	wg      sync.WaitGroup
}

func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	p := &WorkerPool{}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Go queues fn. Tasks submitted after Close are dropped.
func (p *WorkerPool) Go(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		logger.Warn("worker pool closed, task dropped")
		return
	}
	p.backlog.PushBack(fn)
	p.cond.Signal()
}

func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backlog.Len()
}

// Close stops accepting tasks, lets workers drain the backlog and waits for them.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.backlog.Len() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.backlog.Len() == 0 {
			p.mu.Unlock()
			return
		}
		fn := p.backlog.PopFront()
		p.mu.Unlock()

		runSafely(fn)
	}
}

func runSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).WithField("stack", string(debug.Stack())).Error("task panicked")
		}
	}()
	fn()
}

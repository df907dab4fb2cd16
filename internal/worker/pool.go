// Package worker provides background execution for post-ingest work such as
// symbolication, alert evaluation, and analytics hand-off.
package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Submitter accepts tasks to run after the ingest response is sent.
type Submitter interface {
	Submit(task func(ctx context.Context))
}

// Pool runs submitted tasks on a fixed set of goroutines.
type Pool struct {
	tasks chan func(ctx context.Context)
	wg    sync.WaitGroup
	log   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool starts size goroutines draining a buffered task queue.
func NewPool(size int, log *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		tasks: make(chan func(ctx context.Context), size*16),
		log:   log,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.safeRun(task)
	}
}

func (p *Pool) safeRun(task func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked", "panic", r)
		}
	}()
	task(context.Background())
}

// Submit enqueues a task. A full queue runs the task inline so work is
// never silently dropped. Submitting after Close is a no-op.
func (p *Pool) Submit(task func(ctx context.Context)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	select {
	case p.tasks <- task:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		p.safeRun(task)
	}
}

// Close stops accepting tasks and waits for in-flight ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Direct runs every task inline on the calling goroutine. Used when
// background workers are disabled and in tests that need determinism.
type Direct struct{}

func (Direct) Submit(task func(ctx context.Context)) {
	task(context.Background())
}

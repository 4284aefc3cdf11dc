package utils

import (
	"context"
	"sync"
	"time"
)

// WorkerPool runs submitted jobs on a bounded set of goroutines, retrying
// failed jobs with linear backoff.
type WorkerPool struct {
	workers  int
	jobQueue chan func() error
	wg       sync.WaitGroup
	delay    time.Duration
	retries  int

	mu         sync.Mutex
	errorCount int

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewWorkerPool(ctx context.Context, workers, retries int, delay time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	poolCtx, cancel := context.WithCancel(ctx)
	pool := &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func() error, workers*2),
		delay:    delay,
		retries:  retries,
		ctx:      poolCtx,
		cancel:   cancel,
	}
	pool.start()
	return pool
}

func (p *WorkerPool) start() {
	for i := 0; i < p.workers; i++ {
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	for job := range p.jobQueue {
		p.run(job)
		p.wg.Done()
	}
}

func (p *WorkerPool) run(job func() error) {
	var err error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if p.ctx.Err() != nil {
			return
		}
		if err = job(); err == nil {
			return
		}
		if attempt < p.retries {
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(time.Duration(attempt+1) * p.delay):
			}
		}
	}
	p.mu.Lock()
	p.errorCount++
	p.mu.Unlock()
}

// Submit queues a job. Blocks if the queue is full.
func (p *WorkerPool) Submit(job func() error) {
	p.wg.Add(1)
	select {
	case p.jobQueue <- job:
	case <-p.ctx.Done():
		p.wg.Done()
	}
}

// Wait closes the queue and blocks until all submitted jobs finish.
// The pool cannot be reused afterwards.
func (p *WorkerPool) Wait() {
	p.once.Do(func() { close(p.jobQueue) })
	p.wg.Wait()
	p.cancel()
}

func (p *WorkerPool) ErrorCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errorCount
}

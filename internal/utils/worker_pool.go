package utils

import (
	"sync"
)

// WorkerPool distributes work across a fixed number of goroutines. The
// job runner uses it to bound the number of concurrent ffmpeg and curl
// subprocesses.
type WorkerPool struct {
	workers   int
	workQueue chan func()
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	mu        sync.RWMutex
}

// NewWorkerPool creates a pool with the given worker count. The queue is
// buffered at 2x the worker count so submitters rarely block.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers:   workers,
		workQueue: make(chan func(), workers*2),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the workers. Idempotent.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return
	}
	wp.running = true

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop stops the pool and waits for in-flight work to finish.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return
	}
	wp.running = false
	close(wp.stopCh)
	wp.mu.Unlock()

	wp.wg.Wait()
}

// Submit queues a work item. Returns false if the pool is stopped or the
// queue is full.
func (wp *WorkerPool) Submit(work func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return false
	}

	select {
	case wp.workQueue <- work:
		return true
	default:
		return false
	}
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for {
		select {
		case <-wp.stopCh:
			return
		case work := <-wp.workQueue:
			work()
		}
	}
}

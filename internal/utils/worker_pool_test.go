package utils

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsSubmittedWork(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Stop()

	var counter int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		ok := pool.Submit(func() {
			atomic.AddInt32(&counter, 1)
			wg.Done()
		})
		if !ok {
			// Queue full; a bounded pool is allowed to refuse.
			wg.Done()
		}
	}
	wg.Wait()
	assert.Greater(t, atomic.LoadInt32(&counter), int32(0))
}

func TestWorkerPoolRejectsWhenStopped(t *testing.T) {
	pool := NewWorkerPool(1)
	assert.False(t, pool.Submit(func() {}), "submit before Start should be refused")

	pool.Start()
	pool.Stop()
	assert.False(t, pool.Submit(func() {}), "submit after Stop should be refused")
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Stop()

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		ok := pool.Submit(func() {
			defer wg.Done()
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		})
		require.True(t, ok)
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestWorkerPoolStartIdempotent(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	pool.Start()
	assert.True(t, pool.Submit(func() {}))
	pool.Stop()
	pool.Stop()
}

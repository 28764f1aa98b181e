package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewWorkerPool(n)
		if got, want := pool.Workers(), runtime.GOMAXPROCS(0); got != want {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d", n, got, want)
		}
		pool.Close()
	}
}

// =============================================================================
// ExecuteAll / ForEach Tests
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}

	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAll_Empty(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	pool.ExecuteAll(nil)
	pool.ExecuteAll([]func(){})
}

func TestWorkerPool_ForEach(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		n       int
	}{
		{"single worker", 1, 37},
		{"fewer items than workers", 8, 3},
		{"dispatch rows", 4, 75},
		{"many items", 4, 150 * 75},
		{"zero", 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			defer pool.Close()

			hits := make([]atomic.Int32, tt.n)
			pool.ForEach(tt.n, func(i int) {
				hits[i].Add(1)
			})

			for i := range hits {
				if got := hits[i].Load(); got != 1 {
					t.Fatalf("index %d visited %d times, want 1", i, got)
				}
			}
		})
	}
}

func TestWorkerPool_ClosedRunsInline(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	var counter atomic.Int64
	pool.ForEach(10, func(int) { counter.Add(1) })

	if counter.Load() != 10 {
		t.Errorf("counter = %d after Close, want 10", counter.Load())
	}
}

// =============================================================================
// Submit Tests
// =============================================================================

func TestWorkerPool_Submit(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var wg sync.WaitGroup
	var counter atomic.Int64

	for range 50 {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		})
	}

	wg.Wait()
	if counter.Load() != 50 {
		t.Errorf("counter = %d, want 50", counter.Load())
	}
}

func TestWorkerPool_Submit_Nil(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	pool.Submit(nil)
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	done := make(chan struct{})
	pool.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("work submitted after Close never ran")
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("pool should not be running after Close")
	}
}

func TestWorkerPool_CloseWithPendingWork(t *testing.T) {
	pool := NewWorkerPool(2)

	var counter atomic.Int64
	for range 20 {
		pool.Submit(func() {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		})
	}
	pool.Close()

	if counter.Load() != 20 {
		t.Errorf("counter = %d, want 20 (queued work must drain)", counter.Load())
	}
}

func TestWorkerPool_Concurrent(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var wg sync.WaitGroup
	var counter atomic.Int64

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.ForEach(100, func(int) { counter.Add(1) })
		}()
	}
	wg.Wait()

	if counter.Load() != 800 {
		t.Errorf("counter = %d, want 800", counter.Load())
	}
}

func TestWorkerPool_QueuedWork(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	if q := pool.QueuedWork(); q < 0 {
		t.Errorf("QueuedWork() = %d, want >= 0", q)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkWorkerPool_ForEach(b *testing.B) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	var sink atomic.Int64
	b.ResetTimer()
	for range b.N {
		pool.ForEach(150*75, func(i int) { sink.Add(int64(i & 1)) })
	}
}

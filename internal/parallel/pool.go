// Package parallel runs CPU work across a fixed set of goroutines.
//
// The CPU compute backend uses it to execute workgroups of a dispatch in
// parallel, and the render world uses it as its task pool for shader loads
// and pipeline compilation.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines with per-worker queues.
//
// Workers pull from their own queue and steal from others when it is empty,
// which keeps rows of uneven cost balanced.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately and workers begin waiting for work.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}

	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(own)
			return
		case work := <-own:
			run(work)
		default:
			if stolen := p.steal(id); stolen != nil {
				run(stolen)
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(own)
				return
			case work := <-own:
				run(work)
			}
		}
	}
}

func run(work func()) {
	if work != nil {
		work()
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			run(work)
		default:
			return
		}
	}
}

// steal takes one item from another worker's queue, or returns nil.
func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll distributes work across workers and waits for all to complete.
// If the pool is closed, the work runs on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			run(fn)
		}
		return
	}

	var completion sync.WaitGroup
	completion.Add(len(work))

	for i, fn := range work {
		wrapped := func() {
			defer completion.Done()
			run(fn)
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}

	completion.Wait()
}

// ForEach calls fn(i) for every i in [0, n), splitting the range into
// contiguous chunks so each worker handles a few large pieces. It returns
// once every call has completed.
func (p *WorkerPool) ForEach(n int, fn func(i int)) {
	if n <= 0 {
		return
	}

	chunks := min(n, p.workers*4)
	size := (n + chunks - 1) / chunks

	work := make([]func(), 0, chunks)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		work = append(work, func() {
			for i := start; i < end; i++ {
				fn(i)
			}
		})
	}
	p.ExecuteAll(work)
}

// Submit sends a single work item to the worker with the shortest queue.
// If the pool is closed, fn runs on a fresh goroutine so callers waiting on
// its result are not stranded.
func (p *WorkerPool) Submit(fn func()) {
	if fn == nil {
		return
	}
	if !p.running.Load() {
		go fn()
		return
	}

	minIdx := 0
	minLen := len(p.workQueues[0])
	for i := 1; i < p.workers; i++ {
		if l := len(p.workQueues[i]); l < minLen {
			minLen = l
			minIdx = i
		}
	}

	select {
	case p.workQueues[minIdx] <- fn:
	case <-p.done:
		go fn()
	}
}

// Close gracefully shuts down the pool.
// It stops accepting new work, waits for all queued work to complete,
// and then stops all workers.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns the total number of work items currently queued.
// This is an approximation as queues can change while iterating.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.workQueues {
		total += len(q)
	}
	return total
}

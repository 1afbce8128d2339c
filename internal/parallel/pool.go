// Package parallel provides the worker pool used by the software renderer.
package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when work is submitted to a closed pool, or the pool
// closes before all work was queued.
var ErrClosed = errors.New("parallel: worker pool closed")

// WorkerPool is a fixed set of goroutines executing work items.
//
// Each worker has its own queue and steals from the others when its queue
// is empty, which balances rows whose escape times differ widely.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
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
			p.drain(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
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

// ExecuteAll distributes work across workers and waits for all of it.
//
// Items not yet started when ctx is cancelled are skipped, and ctx.Err()
// is returned. If the pool is closed, or closes before every item was
// queued, the remaining items are dropped and ErrClosed is returned.
func (p *WorkerPool) ExecuteAll(ctx context.Context, work []func()) error {
	if len(work) == 0 {
		return nil
	}
	if !p.running.Load() {
		return ErrClosed
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	closed := false

	for i, fn := range work {
		wrapped := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			fn()
		}

		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			closed = true
			wg.Done()
		case <-ctx.Done():
			wg.Done()
		}
	}

	wg.Wait()
	if closed {
		return ErrClosed
	}
	return ctx.Err()
}

// Range calls fn(i) for every i in [0, n), split into contiguous bands of
// at least minBand items, and waits for completion.
func (p *WorkerPool) Range(ctx context.Context, n, minBand int, fn func(i int)) error {
	if n <= 0 {
		return nil
	}
	band := max(minBand, 1, n/(p.workers*4))

	work := make([]func(), 0, (n+band-1)/band)
	for start := 0; start < n; start += band {
		end := min(start+band, n)
		work = append(work, func() {
			for i := start; i < end; i++ {
				fn(i)
			}
		})
	}
	return p.ExecuteAll(ctx, work)
}

// Close stops the workers after queued work completes.
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

// IsRunning reports whether the pool still accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

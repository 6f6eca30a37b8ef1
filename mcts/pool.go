package mcts

import (
	"context"
	"log"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// WorkerPool is the minimal capability set shared by an externally supplied
// thread pool and the internal default one (Design Notes §9, "thread-pool
// abstraction"). Implementations that cannot report completion synchronously
// set SupportsWaitDone to false; the selector then falls back to its own
// countdown-latch barrier instead of calling WaitDone.
type WorkerPool interface {
	Queue(task func())
	WaitDone()
	Shutdown()
	SupportsWaitDone() bool
}

// defaultPool is the internal worker pool used when the caller supplies
// none. It bounds concurrency with a semaphore (grounded in the wider
// example pack's use of golang.org/x/sync for exactly this) rather than a
// fixed-size long-lived goroutine pool, because dispatch is driven by a
// per-call SelectParallelThreshold rather than a steady-state worker count.
type defaultPool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
	ctx context.Context

	mu       sync.Mutex
	shutdown bool
}

func newDefaultPool(n int) *defaultPool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &defaultPool{
		sem: semaphore.NewWeighted(int64(n)),
		ctx: context.Background(),
	}
}

func (p *defaultPool) Queue(task func()) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			// Worker fault: logged, never propagated (spec.md §4.5.5).
			log.Printf("mcts: worker pool failed to acquire slot: %v", err)
			return
		}
		defer p.sem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				log.Printf("mcts: worker fault: %v", r)
			}
		}()
		task()
	}()
}

func (p *defaultPool) WaitDone() { p.wg.Wait() }

func (p *defaultPool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *defaultPool) SupportsWaitDone() bool { return true }

// countdownLatch is the barrier described in spec.md §5: "seeded to 1,
// incremented by the count of leaves each dispatched worker is expected to
// produce, and decremented by 1 per leaf finalized." Used as the
// wait_done fallback when the supplied pool reports !SupportsWaitDone.
type countdownLatch struct {
	wg sync.WaitGroup
}

func newCountdownLatch() *countdownLatch {
	l := &countdownLatch{}
	l.wg.Add(1) // seeded to 1
	return l
}

// add increments the latch by n expected leaves.
func (l *countdownLatch) add(n int32) {
	if n > 0 {
		l.wg.Add(int(n))
	}
}

// done decrements the latch by n finalized leaves.
func (l *countdownLatch) done(n int32) {
	if n > 0 {
		l.wg.Add(-int(n))
	}
}

// release removes the initial seed-of-1 once all dispatch has been issued
// from the root call.
func (l *countdownLatch) release() { l.wg.Done() }

func (l *countdownLatch) wait() { l.wg.Wait() }

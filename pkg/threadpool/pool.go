package threadpool

import (
	"runtime"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool is a bounded fork-join pool. Callers submit closures and block until
// all of them complete. When every worker slot is taken a task runs on the
// calling goroutine instead, so nested use never deadlocks.
type Pool struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

var (
	poolMu sync.RWMutex
	pool   = NewPool(runtime.NumCPU())
)

// POOL returns the process-wide pool.
func POOL() *Pool {
	poolMu.RLock()
	defer poolMu.RUnlock()
	return pool
}

// SetPoolSize replaces the process-wide pool.
func SetPoolSize(n int) {
	poolMu.Lock()
	defer poolMu.Unlock()
	pool = NewPool(n)
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (p *Pool) Size() int {
	return p.size
}

// Busy reports whether every worker slot is in use.
func (p *Pool) Busy() bool {
	return p.inFlight.Load() >= int64(p.size)
}

func (p *Pool) spawn(g *errgroup.Group, fn func() error) {
	if !p.sem.TryAcquire(1) {
		_ = fn()
		return
	}
	p.inFlight.Inc()
	g.Go(func() error {
		defer func() {
			p.inFlight.Dec()
			p.sem.Release(1)
		}()
		return fn()
	})
}

// ParMap runs fn for every i in [0, n) and collects the results in index
// order. The first error wins.
func ParMap[T any](p *Pool, n int, fn func(i int) (T, error)) ([]T, error) {
	out := make([]T, n)
	if n == 1 {
		v, err := fn(0)
		if err != nil {
			return nil, err
		}
		out[0] = v
		return out, nil
	}
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		task := func() error {
			v, err := fn(i)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		}
		if !p.sem.TryAcquire(1) {
			if err := task(); err != nil {
				_ = g.Wait()
				return nil, err
			}
			continue
		}
		p.inFlight.Inc()
		g.Go(func() error {
			defer func() {
				p.inFlight.Dec()
				p.sem.Release(1)
			}()
			return task()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Join runs a and b concurrently and waits for both.
func (p *Pool) Join(a, b func() error) (errA, errB error) {
	var g errgroup.Group
	p.spawn(&g, func() error {
		errA = a()
		return nil
	})
	errB = b()
	_ = g.Wait()
	return errA, errB
}

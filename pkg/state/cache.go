package state

import (
	"sync"

	"github.com/pg-sharding/colexec/pkg/frame"
	"go.uber.org/atomic"
)

// CachedFrame is one entry of the global frame cache. The first reader
// computes the frame; later readers wait for it.
type CachedFrame struct {
	once sync.Once
	df   *frame.DataFrame
	err  error
	hits atomic.Uint32
}

// Get computes the frame on first use.
func (c *CachedFrame) Get(compute func() (*frame.DataFrame, error)) (*frame.DataFrame, error) {
	c.once.Do(func() {
		c.df, c.err = compute()
	})
	return c.df, c.err
}

// Hit counts one reader and returns the count so far.
func (c *CachedFrame) Hit() uint32 {
	return c.hits.Inc()
}

type frameCache struct {
	mu      sync.Mutex
	entries map[string]*CachedFrame
}

func newFrameCache() *frameCache {
	return &frameCache{entries: make(map[string]*CachedFrame)}
}

func (c *frameCache) get(key string) *CachedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &CachedFrame{}
		c.entries[key] = e
	}
	return e
}

func (c *frameCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *frameCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TupleCache holds branch-local derived tuples keyed by expression.
type TupleCache[T any] struct {
	mu      sync.Mutex
	entries map[string]T
}

func newTupleCache[T any]() *TupleCache[T] {
	return &TupleCache[T]{entries: make(map[string]T)}
}

func (c *TupleCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *TupleCache[T]) Put(key string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
}

func (c *TupleCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]T)
}

func (c *TupleCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

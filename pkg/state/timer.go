package state

import (
	"sync"
	"time"

	"github.com/caio/go-tdigest"
	"github.com/pg-sharding/colexec/pkg/frame"
)

type timing struct {
	name       string
	start, end time.Time
}

// NodeTimer collects operator timings for profiling. One timer is shared
// by every branch of an execution.
type NodeTimer struct {
	mu      sync.Mutex
	origin  time.Time
	timings []timing
	digests map[string]*tdigest.TDigest
}

func NewNodeTimer(origin time.Time) *NodeTimer {
	return &NodeTimer{
		origin:  origin,
		digests: make(map[string]*tdigest.TDigest),
	}
}

func (t *NodeTimer) Store(start, end time.Time, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timings = append(t.timings, timing{name: name, start: start, end: end})
	if t.digests[name] == nil {
		t.digests[name], _ = tdigest.New()
	}
	_ = t.digests[name].Add(float64(end.Sub(start).Microseconds()) / 1000)
}

// Quantile returns the q-th quantile of the durations stored under name.
func (t *NodeTimer) Quantile(name string, q float64) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	td, ok := t.digests[name]
	if !ok {
		return 0, false
	}
	return time.Duration(td.Quantile(q) * float64(time.Millisecond)), true
}

func (t *NodeTimer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timings)
}

// Frame renders the timings as {node, start, end} in microseconds since
// the timer origin.
func (t *NodeTimer) Frame() (*frame.DataFrame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, len(t.timings))
	starts := make([]uint64, len(t.timings))
	ends := make([]uint64, len(t.timings))
	for i, tm := range t.timings {
		names[i] = tm.name
		starts[i] = uint64(tm.start.Sub(t.origin).Microseconds())
		ends[i] = uint64(tm.end.Sub(t.origin).Microseconds())
	}
	return frame.New(
		frame.NewString("node", names),
		frame.NewUInt64("start", starts),
		frame.NewUInt64("end", ends),
	)
}

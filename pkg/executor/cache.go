package executor

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/state"
)

// CacheExec shares the output of its input between cacheHits readers.
// The first reader executes the input, the last one drops the entry.
type CacheExec struct {
	input     Executor
	id        string
	cacheHits uint32
}

func NewCacheExec(input Executor, id string, cacheHits uint32) *CacheExec {
	return &CacheExec{input: input, id: id, cacheHits: cacheHits}
}

func (e *CacheExec) PlanID() uuid.UUID {
	return e.input.PlanID()
}

func (e *CacheExec) Execute(st *state.ExecutionState) (*frame.DataFrame, error) {
	if err := st.ShouldStop(); err != nil {
		return nil, err
	}
	entry, hit := st.GetDFCache(e.id)
	df, err := entry.Get(func() (*frame.DataFrame, error) {
		execlog.Zero.Debug().Str("key", e.id).Msg("cache miss")
		return e.input.Execute(st)
	})
	if hit >= e.cacheHits {
		execlog.Zero.Debug().Str("key", e.id).Msg("cache dropped")
		st.RemoveDFCache(e.id)
	} else {
		execlog.Zero.Debug().Str("key", e.id).Uint32("hit", hit).Msg("cache hit")
	}
	return df, err
}

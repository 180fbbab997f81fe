package state

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/config"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/threadpool"
	"github.com/pg-sharding/colexec/pkg/tracing"
	"go.uber.org/atomic"
)

type StateFlags uint8

const (
	VERBOSE StateFlags = 1 << iota
	CACHE_WINDOW_EXPR
	HAS_WINDOW
	IN_STREAMING
)

func (f StateFlags) Has(o StateFlags) bool {
	return f&o != 0
}

type schemaSlot struct {
	mu     sync.Mutex
	schema *frame.Schema
}

// ExecutionState is threaded through every operator of one plan execution.
//
// The frame cache, the cancel flag and the node timer are shared by every
// copy. Fork gives a branch empty schema, window and join caches; Clone
// keeps them.
type ExecutionState struct {
	dfCache   *frameCache
	stop      *atomic.Bool
	nodeTimer *NodeTimer

	schemaCache *schemaSlot
	groupTuples *TupleCache[*frame.GroupsProxy]
	joinTuples  *TupleCache[[]int64]

	branchIdx   int
	flags       StateFlags
	extContexts []*frame.DataFrame

	ctx     context.Context
	session *provenance.Session
	pool    *threadpool.Pool

	allowThreading          bool
	parallelReduceThreshold int

	activeDF        uuid.UUID
	pending         *provenance.TransformInfo
	lastUsedGroupBy *provenance.GroupsSnapshot
}

func New(ctx context.Context) *ExecutionState {
	return &ExecutionState{
		dfCache:                 newFrameCache(),
		stop:                    atomic.NewBool(false),
		schemaCache:             &schemaSlot{},
		groupTuples:             newTupleCache[*frame.GroupsProxy](),
		joinTuples:              newTupleCache[[]int64](),
		flags:                   CACHE_WINDOW_EXPR,
		ctx:                     ctx,
		pool:                    threadpool.POOL(),
		allowThreading:          true,
		parallelReduceThreshold: config.DefaultEngine().ParallelReduceThreshold,
	}
}

// NewFromConfig builds a state honoring the engine configuration.
func NewFromConfig(ctx context.Context, cfg *config.Engine, session *provenance.Session) *ExecutionState {
	st := New(ctx)
	st.flags = 0
	if cfg.Verbose {
		st.flags |= VERBOSE
	}
	if cfg.CacheWindowExprs {
		st.flags |= CACHE_WINDOW_EXPR
	}
	if cfg.Streaming {
		st.flags |= IN_STREAMING
	}
	st.allowThreading = cfg.AllowThreading
	st.parallelReduceThreshold = cfg.ParallelReduceThreshold
	if cfg.ThreadPoolSize > 0 && cfg.ThreadPoolSize != threadpool.POOL().Size() {
		st.pool = threadpool.NewPool(cfg.ThreadPoolSize)
	}
	st.session = session
	return st
}

func (st *ExecutionState) copyState() *ExecutionState {
	cp := *st
	cp.extContexts = append([]*frame.DataFrame(nil), st.extContexts...)
	return &cp
}

// Fork prepares a state for an independent sub-plan running concurrently.
// The branch starts with empty local caches.
func (st *ExecutionState) Fork() *ExecutionState {
	cp := st.copyState()
	cp.schemaCache = &schemaSlot{}
	cp.groupTuples = newTupleCache[*frame.GroupsProxy]()
	cp.joinTuples = newTupleCache[[]int64]()
	cp.pending = nil
	cp.lastUsedGroupBy = nil
	return cp
}

// Clone copies the state for re-entrant use within the same branch. Local
// caches are kept.
func (st *ExecutionState) Clone() *ExecutionState {
	cp := st.copyState()
	st.schemaCache.mu.Lock()
	cp.schemaCache = &schemaSlot{schema: st.schemaCache.schema}
	st.schemaCache.mu.Unlock()
	return cp
}

func (st *ExecutionState) Context() context.Context {
	if st.ctx == nil {
		return context.Background()
	}
	return st.ctx
}

func (st *ExecutionState) WithContext(ctx context.Context) *ExecutionState {
	cp := st.copyState()
	cp.ctx = ctx
	return cp
}

func (st *ExecutionState) Session() *provenance.Session {
	return st.session
}

func (st *ExecutionState) SetSession(s *provenance.Session) {
	st.session = s
}

// PolicyCheck reports whether the provenance protocol runs.
func (st *ExecutionState) PolicyCheck() bool {
	return st.session.Enabled()
}

func (st *ExecutionState) Pool() *threadpool.Pool {
	return st.pool
}

func (st *ExecutionState) AllowThreading() bool {
	return st.allowThreading
}

func (st *ExecutionState) SetAllowThreading(v bool) {
	st.allowThreading = v
}

func (st *ExecutionState) ParallelReduceThreshold() int {
	return st.parallelReduceThreshold
}

func (st *ExecutionState) SetParallelReduceThreshold(n int) {
	st.parallelReduceThreshold = n
}

func (st *ExecutionState) BranchIdx() int {
	return st.branchIdx
}

func (st *ExecutionState) SetBranchIdx(i int) {
	st.branchIdx = i
}

func (st *ExecutionState) Flags() StateFlags {
	return st.flags
}

func (st *ExecutionState) SetFlags(fn func(StateFlags) StateFlags) {
	st.flags = fn(st.flags)
}

func (st *ExecutionState) Verbose() bool {
	return st.flags.Has(VERBOSE)
}

func (st *ExecutionState) CacheWindow() bool {
	return st.flags.Has(CACHE_WINDOW_EXPR)
}

func (st *ExecutionState) HasWindow() bool {
	return st.flags.Has(HAS_WINDOW)
}

func (st *ExecutionState) InStreaming() bool {
	return st.flags.Has(IN_STREAMING)
}

// ShouldStop fails with the interrupted error once Cancel was called on
// any copy of the state.
func (st *ExecutionState) ShouldStop() error {
	if st.stop.Load() {
		return execerror.Interrupted()
	}
	return nil
}

func (st *ExecutionState) Cancel() {
	st.stop.Store(true)
}

func (st *ExecutionState) ExtContexts() []*frame.DataFrame {
	return st.extContexts
}

func (st *ExecutionState) SetExtContexts(dfs []*frame.DataFrame) {
	st.extContexts = dfs
}

func (st *ExecutionState) Schema() *frame.Schema {
	st.schemaCache.mu.Lock()
	defer st.schemaCache.mu.Unlock()
	return st.schemaCache.schema
}

func (st *ExecutionState) SetSchema(s *frame.Schema) {
	st.schemaCache.mu.Lock()
	defer st.schemaCache.mu.Unlock()
	st.schemaCache.schema = s
}

func (st *ExecutionState) ClearSchemaCache() {
	st.SetSchema(nil)
}

func (st *ExecutionState) GroupTuples() *TupleCache[*frame.GroupsProxy] {
	return st.groupTuples
}

func (st *ExecutionState) JoinTuples() *TupleCache[[]int64] {
	return st.joinTuples
}

// ClearWindowExprCache drops the window group and join tuples.
func (st *ExecutionState) ClearWindowExprCache() {
	st.groupTuples.Clear()
	st.joinTuples.Clear()
}

// GetDFCache returns the shared cache entry for key, counting one hit.
func (st *ExecutionState) GetDFCache(key string) (*CachedFrame, uint32) {
	e := st.dfCache.get(key)
	return e, e.Hit()
}

func (st *ExecutionState) RemoveDFCache(key string) {
	st.dfCache.remove(key)
}

func (st *ExecutionState) DFCacheLen() int {
	return st.dfCache.len()
}

func (st *ExecutionState) NodeTimer() *NodeTimer {
	return st.nodeTimer
}

func (st *ExecutionState) TimeNodes(origin time.Time) {
	st.nodeTimer = NewNodeTimer(origin)
}

// Record runs fn as the operator called name. With a node timer the call
// is timed; every call gets a tracing span.
func (st *ExecutionState) Record(fn func() (*frame.DataFrame, error), name string) (*frame.DataFrame, error) {
	span, ctx := tracing.StartSpan(st.Context(), name)
	defer span.Finish()
	prev := st.ctx
	st.ctx = ctx
	defer func() { st.ctx = prev }()

	if st.nodeTimer == nil && !st.Verbose() {
		df, err := fn()
		tracing.Fail(span, err)
		return df, err
	}
	start := time.Now()
	df, err := fn()
	end := time.Now()
	tracing.Fail(span, err)
	if st.nodeTimer != nil {
		st.nodeTimer.Store(start, end, name)
	}
	if st.Verbose() && err == nil && df != nil {
		execlog.Zero.Info().
			Str("node", name).
			Str("elapsed", end.Sub(start).String()).
			Str("rows", humanize.Comma(int64(df.Height()))).
			Msg("operator finished")
	}
	return df, err
}

func (st *ExecutionState) ActiveDF() uuid.UUID {
	return st.activeDF
}

func (st *ExecutionState) SetActiveDF(id uuid.UUID) {
	st.activeDF = id
}

// SetTransform stages the row-level effect of the running operator for the
// next epilogue.
func (st *ExecutionState) SetTransform(t *provenance.TransformInfo) {
	st.pending = t
}

func (st *ExecutionState) PendingTransform() *provenance.TransformInfo {
	return st.pending
}

// SetLastUsedGroupBy hands a grouping snapshot over to the state.
func (st *ExecutionState) SetLastUsedGroupBy(s *provenance.GroupsSnapshot) {
	st.lastUsedGroupBy = s
}

// TakeLastUsedGroupBy moves the grouping snapshot out of the state.
func (st *ExecutionState) TakeLastUsedGroupBy() *provenance.GroupsSnapshot {
	s := st.lastUsedGroupBy
	st.lastUsedGroupBy = nil
	return s
}

// ExecutePrologue announces the operator planID to the validator and makes
// the returned snapshot active.
func (st *ExecutionState) ExecutePrologue(planID uuid.UUID) error {
	if !st.PolicyCheck() || planID == uuid.Nil {
		return nil
	}
	id, err := st.session.Validator.ExecutePrologue(st.Context(), st.session.CtxID, planID, st.activeDF)
	if err != nil {
		return execerror.FailedHere(err, "prologue")
	}
	st.activeDF = id
	return nil
}

// ExecuteEpilogue sends the operator record together with the pending
// transform. The returned snapshot becomes active and the pending
// transform is cleared.
func (st *ExecutionState) ExecuteEpilogue(arg provenance.PlanArgument) error {
	if !st.PolicyCheck() {
		st.pending = nil
		return nil
	}
	payload := &provenance.Epilogue{Arg: arg, Transform: st.pending}
	id, err := st.session.Validator.ExecuteEpilogue(st.Context(), st.session.CtxID, st.activeDF, payload)
	if err != nil {
		return execerror.FailedHere(err, "epilogue")
	}
	st.activeDF = id
	st.pending = nil
	return nil
}

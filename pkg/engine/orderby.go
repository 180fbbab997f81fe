package engine

import (
	"sort"

	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

type SortOptions struct {
	Descending    bool
	NullsLast     bool
	Multithreaded bool
	MaintainOrder bool
}

type SortMultipleOptions struct {
	Descending    []bool
	NullsLast     bool
	Multithreaded bool
	MaintainOrder bool
}

// SliceArg is an optional (offset, length) pair applied after sorting.
type SliceArg struct {
	Offset int64
	Len    int
}

// ArgSort returns the stable permutation that orders the rows by keys.
func ArgSort(keys []*frame.Series, opts SortMultipleOptions) ([]frame.Idx, error) {
	if len(keys) == 0 {
		return nil, execerror.New(execerror.EXEC_INVALID_OPERATION, "'sort_by' got an empty set")
	}
	for _, k := range keys[1:] {
		if k.Len() != keys[0].Len() {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE,
				"sort keys have different lengths: %d and %d", keys[0].Len(), k.Len())
		}
	}
	if len(opts.Descending) > 1 && len(opts.Descending) != len(keys) {
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION,
			"the length of `descending` (%d) does not match the number of sort keys (%d)", len(opts.Descending), len(keys))
	}
	sortable := NewSortable(keys, opts.Descending, opts.NullsLast)
	sort.Stable(sortable)
	return sortable.Data, nil
}

// SortSeries sorts a single column.
func SortSeries(s *frame.Series, opts SortOptions) (*frame.Series, error) {
	perm, err := ArgSort([]*frame.Series{s}, SortMultipleOptions{
		Descending: []bool{opts.Descending},
		NullsLast:  opts.NullsLast,
	})
	if err != nil {
		return nil, err
	}
	return s.Gather(perm), nil
}

// SortFrame orders df by the key columns and applies slice afterward. It
// returns the output together with the forward permutation, so that
// gathering the input by perm reproduces the output.
func SortFrame(df *frame.DataFrame, by []*frame.Series, opts SortMultipleOptions, slice *SliceArg) (*frame.DataFrame, []frame.Idx, error) {
	perm, err := ArgSort(by, opts)
	if err != nil {
		return nil, nil, err
	}
	if slice != nil {
		lo, hi := frame.SliceBounds(slice.Offset, slice.Len, len(perm))
		perm = perm[lo:hi]
	}
	return df.Gather(perm), perm, nil
}

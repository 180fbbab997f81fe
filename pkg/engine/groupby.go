package engine

import (
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

// GroupBy partitions the rows by the values of keys. Groups come out in
// order of first occurrence when maintainOrder is set and sorted by key
// otherwise. Members of every group are in ascending row order.
func GroupBy(keys []*frame.Series, maintainOrder bool) (*frame.GroupsProxy, error) {
	if len(keys) == 0 {
		return nil, execerror.New(execerror.EXEC_INVALID_OPERATION, "group_by requires at least one key")
	}
	n := keys[0].Len()
	for _, k := range keys[1:] {
		if k.Len() != n {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE,
				"group_by keys have different lengths: %d and %d", n, k.Len())
		}
	}
	hashes, encoded, err := HashRows(keys, HashFunctionCity)
	if err != nil {
		return nil, err
	}

	table := newRowTable(n / 4)
	var first []frame.Idx
	var all [][]frame.Idx
	for i := 0; i < n; i++ {
		id, fresh := table.insert(hashes[i], encoded[i])
		if fresh {
			first = append(first, frame.Idx(i))
			all = append(all, nil)
		}
		all[id] = append(all[id], frame.Idx(i))
	}
	groups := frame.NewIdxGroups(first, all, true)
	if maintainOrder || len(first) < 2 {
		return groups, nil
	}
	return sortGroupsByKey(groups, keys)
}

func sortGroupsByKey(groups *frame.GroupsProxy, keys []*frame.Series) (*frame.GroupsProxy, error) {
	firsts := groups.Firsts()
	keyRows := make([]*frame.Series, len(keys))
	for i, k := range keys {
		keyRows[i] = k.Gather(firsts)
	}
	order, err := ArgSort(keyRows, SortMultipleOptions{})
	if err != nil {
		return nil, err
	}
	idx := groups.Idx()
	first := make([]frame.Idx, len(order))
	all := make([][]frame.Idx, len(order))
	for i, o := range order {
		first[i] = idx.First[o]
		all[i] = idx.All[o]
	}
	return frame.NewIdxGroups(first, all, false), nil
}

// GroupByDataFrame groups df by the named key columns.
func GroupByDataFrame(df *frame.DataFrame, by []string, maintainOrder bool) (*frame.GroupsProxy, []*frame.Series, error) {
	keys := make([]*frame.Series, len(by))
	for i, name := range by {
		s, err := df.Column(name)
		if err != nil {
			return nil, nil, err
		}
		keys[i] = s
	}
	groups, err := GroupBy(keys, maintainOrder)
	if err != nil {
		return nil, nil, err
	}
	return groups, keys, nil
}

// GroupKeys gathers the key value of every group.
func GroupKeys(keys []*frame.Series, groups *frame.GroupsProxy) []*frame.Series {
	firsts := groups.Firsts()
	out := make([]*frame.Series, len(keys))
	for i, k := range keys {
		out[i] = k.Gather(firsts)
	}
	return out
}

package engine

import (
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinOuter
	JoinCross
	JoinAsOf
)

var joinNames = map[JoinType]string{
	JoinInner: "inner",
	JoinLeft:  "left",
	JoinOuter: "outer",
	JoinCross: "cross",
	JoinAsOf:  "asof",
}

func (j JoinType) String() string {
	return joinNames[j]
}

const DefaultJoinSuffix = "_right"

type JoinArgs struct {
	How    JoinType
	Suffix string
	Slice  *SliceArg
}

func (a JoinArgs) suffix() string {
	if a.Suffix == "" {
		return DefaultJoinSuffix
	}
	return a.Suffix
}

// JoinIds pairs the matched row of the left and right input; -1 marks a
// row missing on that side.
type JoinIds struct {
	Left  []int64
	Right []int64
}

func (j *JoinIds) push(l, r int64) {
	j.Left = append(j.Left, l)
	j.Right = append(j.Right, r)
}

func (j *JoinIds) slice(s *SliceArg) {
	if s == nil {
		return
	}
	lo, hi := frame.SliceBounds(s.Offset, s.Len, len(j.Left))
	j.Left, j.Right = j.Left[lo:hi], j.Right[lo:hi]
}

func hasNullKey(keys []*frame.Series, i int) bool {
	for _, k := range keys {
		if !k.IsValid(i) {
			return true
		}
	}
	return false
}

// HashJoin matches rows whose key tuples are equal. Null keys never match.
func HashJoin(leftOn, rightOn []*frame.Series, how JoinType) (*JoinIds, error) {
	if len(leftOn) != len(rightOn) || len(leftOn) == 0 {
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION,
			"the number of columns given as join key (left: %d, right: %d) should be equal and non zero", len(leftOn), len(rightOn))
	}
	for i := range leftOn {
		if _, ok := frame.Supertype(leftOn[i].Dtype(), rightOn[i].Dtype()); !ok {
			return nil, execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH,
				"datatypes of join keys don't match - `%s`: %s on left does not match `%s`: %s on right",
				leftOn[i].Name(), leftOn[i].Dtype(), rightOn[i].Name(), rightOn[i].Dtype())
		}
	}
	leftOn, rightOn, err := castKeys(leftOn, rightOn)
	if err != nil {
		return nil, err
	}

	rh, renc, err := HashRows(rightOn, HashFunctionMurmur)
	if err != nil {
		return nil, err
	}
	table := newRowTable(len(rh))
	var rows [][]int64
	for i := range rh {
		if hasNullKey(rightOn, i) {
			continue
		}
		id, fresh := table.insert(rh[i], renc[i])
		if fresh {
			rows = append(rows, nil)
		}
		rows[id] = append(rows[id], int64(i))
	}

	lh, lenc, err := HashRows(leftOn, HashFunctionMurmur)
	if err != nil {
		return nil, err
	}
	ids := &JoinIds{}
	matched := make([]bool, len(rows))
	for i := range lh {
		id, ok := -1, false
		if !hasNullKey(leftOn, i) {
			id, ok = table.lookup(lh[i], lenc[i])
		}
		if !ok {
			if how != JoinInner {
				ids.push(int64(i), -1)
			}
			continue
		}
		matched[id] = true
		for _, r := range rows[id] {
			ids.push(int64(i), r)
		}
	}
	if how == JoinOuter {
		for i := range rh {
			if hasNullKey(rightOn, i) {
				ids.push(-1, int64(i))
				continue
			}
			id, _ := table.lookup(rh[i], renc[i])
			if !matched[id] {
				ids.push(-1, int64(i))
			}
		}
	}
	return ids, nil
}

func castKeys(l, r []*frame.Series) ([]*frame.Series, []*frame.Series, error) {
	lo := make([]*frame.Series, len(l))
	ro := make([]*frame.Series, len(r))
	for i := range l {
		st, _ := frame.Supertype(l[i].Dtype(), r[i].Dtype())
		var err error
		if lo[i], err = l[i].Cast(st, true); err != nil {
			return nil, nil, err
		}
		if ro[i], err = r[i].Cast(st, true); err != nil {
			return nil, nil, err
		}
	}
	return lo, ro, nil
}

// AsOfJoin matches every left row with the last right row whose key is
// less than or equal to it. The right keys must be sorted ascending.
func AsOfJoin(leftOn, rightOn *frame.Series) (*JoinIds, error) {
	l, r, err := castKeys([]*frame.Series{leftOn}, []*frame.Series{rightOn})
	if err != nil {
		return nil, err
	}
	lk, rk := l[0], r[0]
	if !lk.Dtype().IsNumeric() {
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "asof join requires numeric keys, got `%s`", lk.Dtype())
	}
	lv, _ := lk.AsFloat64()
	rv, _ := rk.AsFloat64()
	for i := 1; i < len(rv); i++ {
		if rk.IsValid(i) && rk.IsValid(i-1) && rv[i] < rv[i-1] {
			return nil, execerror.New(execerror.EXEC_INVALID_OPERATION, "asof join right keys must be sorted")
		}
	}
	ids := &JoinIds{}
	for i := range lv {
		best := int64(-1)
		if lk.IsValid(i) {
			for j := range rv {
				if !rk.IsValid(j) {
					continue
				}
				if rv[j] > lv[i] {
					break
				}
				best = int64(j)
			}
		}
		ids.push(int64(i), best)
	}
	return ids, nil
}

// CrossJoin pairs every left row with every right row.
func CrossJoin(nLeft, nRight int) *JoinIds {
	ids := &JoinIds{
		Left:  make([]int64, 0, nLeft*nRight),
		Right: make([]int64, 0, nLeft*nRight),
	}
	for i := 0; i < nLeft; i++ {
		for j := 0; j < nRight; j++ {
			ids.push(int64(i), int64(j))
		}
	}
	return ids
}

// JoinFrames joins left and right on the named key columns and
// materializes the output. Right key columns are dropped except for outer
// joins, where keys are coalesced into the left key column. Name clashes
// on the right get the suffix.
func JoinFrames(left, right *frame.DataFrame, leftOn, rightOn []string, args JoinArgs) (*frame.DataFrame, *JoinIds, error) {
	lk, err := columns(left, leftOn)
	if err != nil {
		return nil, nil, err
	}
	rk, err := columns(right, rightOn)
	if err != nil {
		return nil, nil, err
	}

	var ids *JoinIds
	switch args.How {
	case JoinCross:
		ids = CrossJoin(left.Height(), right.Height())
	case JoinAsOf:
		if len(lk) != 1 || len(rk) != 1 {
			return nil, nil, execerror.New(execerror.EXEC_INVALID_OPERATION, "asof join supports a single key column")
		}
		ids, err = AsOfJoin(lk[0], rk[0])
	default:
		ids, err = HashJoin(lk, rk, args.How)
	}
	if err != nil {
		return nil, nil, err
	}
	ids.slice(args.Slice)

	dropRight := map[string]bool{}
	if args.How != JoinCross {
		for _, name := range rightOn {
			dropRight[name] = true
		}
	}

	cols := make([]*frame.Series, 0, left.Width()+right.Width())
	for _, c := range left.Columns() {
		out := c.GatherNullable(ids.Left)
		if args.How == JoinOuter {
			for k, name := range leftOn {
				if name == c.Name() {
					out, err = coalesce(out, rk[k].GatherNullable(ids.Right))
					if err != nil {
						return nil, nil, err
					}
				}
			}
		}
		cols = append(cols, out)
	}
	leftNames := map[string]bool{}
	for _, n := range left.Names() {
		leftNames[n] = true
	}
	for _, c := range right.Columns() {
		if dropRight[c.Name()] {
			continue
		}
		out := c.GatherNullable(ids.Right)
		if leftNames[c.Name()] {
			out = out.Rename(c.Name() + args.suffix())
		}
		cols = append(cols, out)
	}
	df, err := frame.New(cols...)
	if err != nil {
		return nil, nil, err
	}
	return df, ids, nil
}

func columns(df *frame.DataFrame, names []string) ([]*frame.Series, error) {
	out := make([]*frame.Series, len(names))
	for i, n := range names {
		s, err := df.Column(n)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// coalesce takes a where a is valid and b otherwise.
func coalesce(a, b *frame.Series) (*frame.Series, error) {
	mask := a.IsNotNull()
	bc, err := b.Cast(a.Dtype(), false)
	if err != nil {
		return nil, err
	}
	return ZipWith(mask, a, bc)
}

package engine

import (
	"math"
	"strings"

	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"golang.org/x/exp/constraints"
)

// Operator is a binary operator between two columns.
type Operator int

const (
	Eq Operator = iota
	NotEq
	Lt
	LtEq
	Gt
	GtEq
	Plus
	Minus
	Multiply
	TrueDivide
	FloorDivide
	Modulus
	And
	Or
	Xor
)

var operatorNames = map[Operator]string{
	Eq:          "==",
	NotEq:       "!=",
	Lt:          "<",
	LtEq:        "<=",
	Gt:          ">",
	GtEq:        ">=",
	Plus:        "+",
	Minus:       "-",
	Multiply:    "*",
	TrueDivide:  "/",
	FloorDivide: "//",
	Modulus:     "%",
	And:         "&",
	Or:          "|",
	Xor:         "^",
}

func (o Operator) String() string {
	return operatorNames[o]
}

func (o Operator) IsComparison() bool {
	return o <= GtEq
}

func (o Operator) IsArithmetic() bool {
	return o >= Plus && o <= Modulus
}

func (o Operator) IsLogical() bool {
	return o >= And
}

// OutputDtype is the result type of applying o to operands of the given
// types.
func (o Operator) OutputDtype(l, r frame.DataType) (frame.DataType, error) {
	switch {
	case o.IsComparison():
		return frame.Boolean, nil
	case o.IsLogical():
		return frame.Boolean, nil
	case o == TrueDivide:
		return frame.Float64, nil
	}
	st, ok := frame.Supertype(l, r)
	if !ok {
		return frame.Null, execerror.Newf(execerror.EXEC_INVALID_OPERATION,
			"arithmetic on `%s` and `%s` is not supported", l, r)
	}
	if st == frame.Boolean {
		return frame.Int64, nil
	}
	return st, nil
}

type broadcast struct {
	l, r bool
	n    int
}

func newBroadcast(l, r *frame.Series) (broadcast, error) {
	switch {
	case l.Len() == r.Len():
		return broadcast{n: l.Len()}, nil
	case l.Len() == 1:
		return broadcast{l: true, n: r.Len()}, nil
	case r.Len() == 1:
		return broadcast{r: true, n: l.Len()}, nil
	}
	return broadcast{}, execerror.Newf(execerror.EXEC_COMPUTE,
		"cannot evaluate two Series of different lengths (%d and %d)", l.Len(), r.Len())
}

func (b broadcast) li(i int) int {
	if b.l {
		return 0
	}
	return i
}

func (b broadcast) ri(i int) int {
	if b.r {
		return 0
	}
	return i
}

func (b broadcast) validity(l, r *frame.Series) []bool {
	if !l.HasNulls() && !r.HasNulls() {
		return nil
	}
	out := make([]bool, b.n)
	for i := range out {
		out[i] = l.IsValid(b.li(i)) && r.IsValid(b.ri(i))
	}
	return out
}

// Binary applies op between l and r, broadcasting unit length operands.
// The result carries the name of l.
func Binary(l, r *frame.Series, op Operator) (*frame.Series, error) {
	bc, err := newBroadcast(l, r)
	if err != nil {
		return nil, err
	}
	switch {
	case op.IsLogical():
		return logical(l, r, op, bc)
	case op.IsComparison():
		return compare(l, r, op, bc)
	}
	return arithmetic(l, r, op, bc)
}

func compare(l, r *frame.Series, op Operator, bc broadcast) (*frame.Series, error) {
	st, ok := frame.Supertype(l.Dtype(), r.Dtype())
	if !ok {
		return nil, execerror.Newf(execerror.EXEC_COMPUTE,
			"cannot compare `%s` with `%s`", l.Dtype(), r.Dtype())
	}
	if st == frame.Null {
		return frame.FullNull(l.Name(), frame.Boolean, bc.n), nil
	}
	lc, err := l.Cast(st, true)
	if err != nil {
		return nil, err
	}
	rc, err := r.Cast(st, true)
	if err != nil {
		return nil, err
	}

	out := make([]bool, bc.n)
	switch st {
	case frame.Boolean:
		a, _ := lc.Bool()
		b, _ := rc.Bool()
		ai, bi := boolsToInts(a), boolsToInts(b)
		compareSlices(ai, bi, op, bc, out)
	case frame.Int32, frame.Int64:
		a, _ := lc.Int64()
		b, _ := rc.Int64()
		compareSlices(a, b, op, bc, out)
	case frame.UInt32, frame.UInt64:
		a, _ := lc.UInt64()
		b, _ := rc.UInt64()
		compareSlices(a, b, op, bc, out)
	case frame.Float64:
		a, _ := lc.Float64()
		b, _ := rc.Float64()
		compareSlices(a, b, op, bc, out)
	case frame.String:
		a, _ := lc.Str()
		b, _ := rc.Str()
		compareSlices(a, b, op, bc, out)
	default:
		return nil, execerror.Newf(execerror.EXEC_COMPUTE, "cannot compare `%s` values", st)
	}
	return frame.NewBool(l.Name(), out).WithValidity(bc.validity(l, r)), nil
}

func boolsToInts(v []bool) []int64 {
	out := make([]int64, len(v))
	for i, b := range v {
		if b {
			out[i] = 1
		}
	}
	return out
}

func compareSlices[T constraints.Ordered](a, b []T, op Operator, bc broadcast, out []bool) {
	for i := range out {
		x, y := a[bc.li(i)], b[bc.ri(i)]
		switch op {
		case Eq:
			out[i] = x == y
		case NotEq:
			out[i] = x != y
		case Lt:
			out[i] = x < y
		case LtEq:
			out[i] = x <= y
		case Gt:
			out[i] = x > y
		case GtEq:
			out[i] = x >= y
		}
	}
}

func arithmetic(l, r *frame.Series, op Operator, bc broadcast) (*frame.Series, error) {
	if l.Dtype() == frame.String && r.Dtype() == frame.String {
		if op != Plus {
			return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "operator %s is not supported for `str`", op)
		}
		a, _ := l.Str()
		b, _ := r.Str()
		out := make([]string, bc.n)
		for i := range out {
			out[i] = a[bc.li(i)] + b[bc.ri(i)]
		}
		return frame.NewString(l.Name(), out).WithValidity(bc.validity(l, r)), nil
	}
	outType, err := op.OutputDtype(l.Dtype(), r.Dtype())
	if err != nil {
		return nil, err
	}
	if !outType.IsNumeric() {
		if outType == frame.Null {
			return frame.FullNull(l.Name(), frame.Null, bc.n), nil
		}
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION,
			"arithmetic on `%s` and `%s` is not supported", l.Dtype(), r.Dtype())
	}
	lc, err := l.Cast(outType, true)
	if err != nil {
		return nil, err
	}
	rc, err := r.Cast(outType, true)
	if err != nil {
		return nil, err
	}
	validity := bc.validity(l, r)
	if validity == nil {
		validity = make([]bool, bc.n)
		for i := range validity {
			validity[i] = true
		}
	}

	var out *frame.Series
	switch outType {
	case frame.Float64:
		a, _ := lc.Float64()
		b, _ := rc.Float64()
		res := make([]float64, bc.n)
		for i := range res {
			x, y := a[bc.li(i)], b[bc.ri(i)]
			switch op {
			case Plus:
				res[i] = x + y
			case Minus:
				res[i] = x - y
			case Multiply:
				res[i] = x * y
			case TrueDivide:
				res[i] = x / y
			case FloorDivide:
				res[i] = math.Floor(x / y)
			case Modulus:
				res[i] = x - y*math.Floor(x/y)
			}
		}
		out = frame.NewFloat64(l.Name(), res)
	case frame.Int32, frame.Int64:
		a, _ := lc.Int64()
		b, _ := rc.Int64()
		res := make([]int64, bc.n)
		intArith(a, b, op, bc, res, validity)
		out = frame.NewInt64(l.Name(), res)
		if outType == frame.Int32 {
			if out, err = out.Cast(frame.Int32, false); err != nil {
				return nil, err
			}
		}
	case frame.UInt32, frame.UInt64:
		a, _ := lc.UInt64()
		b, _ := rc.UInt64()
		res := make([]uint64, bc.n)
		intArith(a, b, op, bc, res, validity)
		out = frame.NewUInt64(l.Name(), res)
		if outType == frame.UInt32 {
			if out, err = out.Cast(frame.UInt32, false); err != nil {
				return nil, err
			}
		}
	}
	return out.WithValidity(andMasks(out.Validity(), validity)), nil
}

// intArith turns division by zero into null.
func intArith[T constraints.Integer](a, b []T, op Operator, bc broadcast, res []T, validity []bool) {
	for i := range res {
		x, y := a[bc.li(i)], b[bc.ri(i)]
		switch op {
		case Plus:
			res[i] = x + y
		case Minus:
			res[i] = x - y
		case Multiply:
			res[i] = x * y
		case FloorDivide:
			if y == 0 {
				validity[i] = false
				continue
			}
			q := x / y
			if (x%y != 0) && ((x < 0) != (y < 0)) {
				q--
			}
			res[i] = q
		case Modulus:
			if y == 0 {
				validity[i] = false
				continue
			}
			m := x % y
			if m != 0 && ((m < 0) != (y < 0)) {
				m += y
			}
			res[i] = m
		}
	}
}

func andMasks(a, b []bool) []bool {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := make([]bool, len(a))
	for i := range a {
		out[i] = a[i] && b[i]
	}
	return out
}

// logical implements Kleene logic: false & null is false, true | null is true.
func logical(l, r *frame.Series, op Operator, bc broadcast) (*frame.Series, error) {
	a, err := l.Bool()
	if err != nil {
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "logical %s expects `bool` operands, got `%s`", op, l.Dtype())
	}
	b, err := r.Bool()
	if err != nil {
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "logical %s expects `bool` operands, got `%s`", op, r.Dtype())
	}
	out := make([]bool, bc.n)
	validity := make([]bool, bc.n)
	for i := range out {
		lv, rv := l.IsValid(bc.li(i)), r.IsValid(bc.ri(i))
		x, y := a[bc.li(i)], b[bc.ri(i)]
		switch op {
		case And:
			switch {
			case lv && rv:
				out[i], validity[i] = x && y, true
			case lv && !x, rv && !y:
				out[i], validity[i] = false, true
			}
		case Or:
			switch {
			case lv && rv:
				out[i], validity[i] = x || y, true
			case lv && x, rv && y:
				out[i], validity[i] = true, true
			}
		case Xor:
			if lv && rv {
				out[i], validity[i] = x != y, true
			}
		}
	}
	return frame.NewBool(l.Name(), out).WithValidity(validity), nil
}

// Not negates a boolean column.
func Not(s *frame.Series) (*frame.Series, error) {
	v, err := s.Bool()
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(v))
	for i, b := range v {
		out[i] = !b
	}
	return frame.NewBool(s.Name(), out).WithValidity(s.Validity()), nil
}

// ParseOperator maps the textual form of an operator back onto it.
func ParseOperator(op string) (Operator, error) {
	for o, name := range operatorNames {
		if name == strings.TrimSpace(op) {
			return o, nil
		}
	}
	return 0, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "not supported operator: %s", op)
}

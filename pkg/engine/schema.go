package engine

import "github.com/pg-sharding/colexec/pkg/frame"

// AggOutputDtype is the dtype an aggregation of in produces.
func AggOutputDtype(m GroupByMethod, in frame.DataType) frame.DataType {
	switch m {
	case MethodCount, MethodNUnique:
		return frame.IdxType
	case MethodMean, MethodMedian, MethodStd, MethodVar, MethodQuantile:
		return frame.Float64
	case MethodImplode:
		return frame.List
	case MethodSum:
		return SumDtype(in)
	}
	return in
}

// SumDtype widens small and boolean types the way AggSum does.
func SumDtype(in frame.DataType) frame.DataType {
	switch {
	case in == frame.Boolean || in.IsUnsigned():
		return frame.UInt64
	case in.IsSigned():
		return frame.Int64
	}
	return in
}

package engine

import (
	"encoding/binary"
	"math"

	"github.com/go-faster/city"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/spaolacci/murmur3"
)

type HashFunctionType int

const (
	HashFunctionCity   = HashFunctionType(0)
	HashFunctionMurmur = HashFunctionType(1)
)

const (
	tagNull byte = iota
	tagValue
)

// EncodeRow appends a self-delimiting encoding of row i of every key
// column to buf. Equal encodings mean equal keys, nulls included.
func EncodeRow(buf []byte, keys []*frame.Series, i int) ([]byte, error) {
	for _, k := range keys {
		if !k.IsValid(i) {
			buf = append(buf, tagNull)
			continue
		}
		buf = append(buf, tagValue)
		switch v := k.Get(i).(type) {
		case bool:
			if v {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case int64:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(v))
		case uint64:
			buf = binary.LittleEndian.AppendUint64(buf, v)
		case float64:
			// -0.0 and 0.0 group together
			if v == 0 {
				v = 0
			}
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		case string:
			buf = binary.AppendUvarint(buf, uint64(len(v)))
			buf = append(buf, v...)
		case *frame.Series:
			buf = binary.AppendUvarint(buf, uint64(v.Len()))
			var err error
			for j := 0; j < v.Len(); j++ {
				if buf, err = EncodeRow(buf, []*frame.Series{v}, j); err != nil {
					return nil, err
				}
			}
		case []any:
			fields, err := k.StructFields()
			if err != nil {
				return nil, err
			}
			if buf, err = EncodeRow(buf, fields, i); err != nil {
				return nil, err
			}
		default:
			return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "cannot hash values of type `%s`", k.Dtype())
		}
	}
	return buf, nil
}

func hashBytes(b []byte, hf HashFunctionType) uint64 {
	if hf == HashFunctionMurmur {
		return murmur3.Sum64(b)
	}
	return city.Hash64(b)
}

// HashRows encodes and hashes every row of keys.
func HashRows(keys []*frame.Series, hf HashFunctionType) ([]uint64, [][]byte, error) {
	if len(keys) == 0 {
		return nil, nil, nil
	}
	n := keys[0].Len()
	hashes := make([]uint64, n)
	encoded := make([][]byte, n)
	for i := 0; i < n; i++ {
		b, err := EncodeRow(nil, keys, i)
		if err != nil {
			return nil, nil, err
		}
		encoded[i] = b
		hashes[i] = hashBytes(b, hf)
	}
	return hashes, encoded, nil
}

// rowTable maps encoded keys onto dense ids, resolving hash collisions by
// comparing the encodings.
type rowTable struct {
	buckets map[uint64][]int
	keys    [][]byte
}

func newRowTable(capacity int) *rowTable {
	return &rowTable{buckets: make(map[uint64][]int, capacity)}
}

func (t *rowTable) lookup(h uint64, key []byte) (int, bool) {
	for _, id := range t.buckets[h] {
		if string(t.keys[id]) == string(key) {
			return id, true
		}
	}
	return 0, false
}

func (t *rowTable) insert(h uint64, key []byte) (int, bool) {
	if id, ok := t.lookup(h, key); ok {
		return id, false
	}
	id := len(t.keys)
	t.keys = append(t.keys, key)
	t.buckets[h] = append(t.buckets[h], id)
	return id, true
}

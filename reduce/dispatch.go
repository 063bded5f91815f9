package reduce

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/unixpickle/dda-allreduce/fabric"
	"github.com/x448/float16"
)

// ErrUnsupported is returned by Lookup for a type and
// operator pair that has no compiled routine.
var ErrUnsupported = errors.New("unsupported data type and operator combination")

// A Key identifies one specialization in the dispatch
// table.
type Key struct {
	Type DataType
	Op   Op
}

// A Kernel is the element-wise combine step of a
// reduction, specialized for one type and operator.
type Kernel interface {
	Type() DataType
	Op() Op

	// Accumulate sets dst[i] = op(dst[i], src[i]) for n
	// consecutive elements.
	// The ranges may live in different participants'
	// memory but must not overlap.
	Accumulate(dst, src fabric.Ptr, n int)
}

var table = map[Key]Kernel{}

func init() {
	registerArith[int8](Int8)
	registerArith[uint8](Uint8)
	registerArith[int32](Int32)
	registerArith[uint32](Uint32)
	registerArith[int64](Int64)
	registerArith[uint64](Uint64)
	registerArith[float32](Float32)
	registerArith[float64](Float64)

	register(Float16, Sum, halfApply(func(a, b float32) float32 { return a + b }))
	register(Float16, Prod, halfApply(func(a, b float32) float32 { return a * b }))
	register(Float16, Max, halfApply(func(a, b float32) float32 { return max(a, b) }))
	register(Float16, Min, halfApply(func(a, b float32) float32 { return min(a, b) }))
}

// Lookup finds the routine for a type and operator.
func Lookup(dt DataType, op Op) (Kernel, error) {
	k, ok := table[Key{Type: dt, Op: op}]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupported, "%s/%s", dt, op)
	}
	return k, nil
}

// Supported lists every pair in the dispatch table.
func Supported() []Key {
	res := make([]Key, 0, len(table))
	for k := range table {
		res = append(res, k)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Type != res[j].Type {
			return res[i].Type < res[j].Type
		}
		return res[i].Op < res[j].Op
	})
	return res
}

type number interface {
	~int8 | ~uint8 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

type vecKernel[T any] struct {
	key   Key
	apply func(dst, src []T)
}

func (v *vecKernel[T]) Type() DataType {
	return v.key.Type
}

func (v *vecKernel[T]) Op() Op {
	return v.key.Op
}

func (v *vecKernel[T]) Accumulate(dst, src fabric.Ptr, n int) {
	v.apply(fabric.View[T](dst, n), fabric.View[T](src, n))
}

func register[T any](dt DataType, op Op, apply func(dst, src []T)) {
	key := Key{Type: dt, Op: op}
	if _, ok := table[key]; ok {
		panic("duplicate kernel registration: " + dt.String() + "/" + op.String())
	}
	table[key] = &vecKernel[T]{key: key, apply: apply}
}

func registerArith[T number](dt DataType) {
	register(dt, Sum, sumInto[T])
	register(dt, Prod, prodInto[T])
	register(dt, Max, maxInto[T])
	register(dt, Min, minInto[T])
}

func sumInto[T number](dst, src []T) {
	for i, x := range src {
		dst[i] += x
	}
}

func prodInto[T number](dst, src []T) {
	for i, x := range src {
		dst[i] *= x
	}
}

// maxInto and minInto propagate NaN from either side, so
// the result does not depend on combine order.
func maxInto[T number](dst, src []T) {
	for i, x := range src {
		dst[i] = max(dst[i], x)
	}
}

func minInto[T number](dst, src []T) {
	for i, x := range src {
		dst[i] = min(dst[i], x)
	}
}

// halfApply combines half-precision values in single
// precision and rounds each result back to half precision.
func halfApply(fn func(a, b float32) float32) func(dst, src []float16.Float16) {
	return func(dst, src []float16.Float16) {
		for i, x := range src {
			dst[i] = float16.Fromfloat32(fn(dst[i].Float32(), x.Float32()))
		}
	}
}

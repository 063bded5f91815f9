// Package reduce defines the element types and operators a
// collective can combine, along with the per-type routines
// that combine them.
package reduce

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// A DataType tags the representation of buffer elements.
type DataType int

const (
	Int8 DataType = iota
	Uint8
	Int32
	Uint32
	Int64
	Uint64
	Float16
	Float32
	Float64
	BFloat16
)

var dataTypeNames = map[DataType]string{
	Int8:     "int8",
	Uint8:    "uint8",
	Int32:    "int32",
	Uint32:   "uint32",
	Int64:    "int64",
	Uint64:   "uint64",
	Float16:  "float16",
	Float32:  "float32",
	Float64:  "float64",
	BFloat16: "bfloat16",
}

var dataTypeSizes = map[DataType]int{
	Int8:     1,
	Uint8:    1,
	Int32:    4,
	Uint32:   4,
	Int64:    8,
	Uint64:   8,
	Float16:  2,
	Float32:  4,
	Float64:  8,
	BFloat16: 2,
}

// Size returns the number of bytes per element, or 0 for
// an unknown type.
func (d DataType) Size() int {
	return dataTypeSizes[d]
}

// Valid checks if d is a known type.
func (d DataType) Valid() bool {
	_, ok := dataTypeNames[d]
	return ok
}

func (d DataType) String() string {
	if name, ok := dataTypeNames[d]; ok {
		return name
	}
	return "DataType(" + strconv.Itoa(int(d)) + ")"
}

// ParseDataType finds a type by its name.
func ParseDataType(s string) (DataType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, name := range dataTypeNames {
		if name == s {
			return d, nil
		}
	}
	return 0, errors.Errorf("unknown data type: %q", s)
}

// An Op is an associative reduction operator.
type Op int

const (
	Sum Op = iota
	Prod
	Max
	Min
	Avg
)

var opNames = map[Op]string{
	Sum:  "sum",
	Prod: "prod",
	Max:  "max",
	Min:  "min",
	Avg:  "avg",
}

// Valid checks if o is a known operator.
func (o Op) Valid() bool {
	_, ok := opNames[o]
	return ok
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "Op(" + strconv.Itoa(int(o)) + ")"
}

// ParseOp finds an operator by its name.
func ParseOp(s string) (Op, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for o, name := range opNames {
		if name == s {
			return o, nil
		}
	}
	return 0, errors.Errorf("unknown reduction op: %q", s)
}

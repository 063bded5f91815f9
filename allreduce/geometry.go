package allreduce

import (
	"math/bits"

	"github.com/unixpickle/essentials"
)

// Geometry describes how a launch divides the elements of
// a call between its execution units.
type Geometry struct {
	Count int
	Units int
}

// PlanGeometry picks the number of units for count
// elements.
//
// It uses one unit per elemsPerUnit elements, rounded up,
// but never more than maxUnits or fewer than one.
// A non-positive count yields the zero Geometry.
func PlanGeometry(count, elemsPerUnit, maxUnits int) Geometry {
	if count <= 0 {
		return Geometry{}
	}
	elemsPerUnit = essentials.MaxInt(elemsPerUnit, 1)
	units := (count + elemsPerUnit - 1) / elemsPerUnit
	if maxUnits > 0 {
		units = essentials.MinInt(units, maxUnits)
	}
	return Geometry{Count: count, Units: essentials.MaxInt(units, 1)}
}

// Partition returns the range of elements [start, end)
// owned by unit u.
//
// Ranges are contiguous and their lengths differ by at
// most one, with the longer ranges first.
func (g Geometry) Partition(u int) (start, end int) {
	per, extra := g.Count/g.Units, g.Count%g.Units
	start = u*per + essentials.MinInt(u, extra)
	end = start + per
	if u < extra {
		end++
	}
	return
}

// treeRounds is the number of reduce rounds for a group,
// ceil(log2(size)).
func treeRounds(size int) int {
	if size <= 1 {
		return 0
	}
	return bits.Len(uint(size - 1))
}

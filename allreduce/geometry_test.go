package allreduce

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanGeometry(t *testing.T) {
	cases := []struct {
		count, perUnit, maxUnits int
		units                    int
	}{
		{1, 4096, 8, 1},
		{4096, 4096, 8, 1},
		{4097, 4096, 8, 2},
		{1 << 20, 4096, 8, 8},
		{1 << 20, 4096, 0, 256},
		{10, 0, 4, 4},
		{3, 1, 8, 3},
	}
	for _, c := range cases {
		g := PlanGeometry(c.count, c.perUnit, c.maxUnits)
		assert.Equal(t, c.units, g.Units, "%+v", c)
		assert.Equal(t, c.count, g.Count)
	}
	assert.Equal(t, Geometry{}, PlanGeometry(0, 4096, 8))
}

func TestPartitionCoverage(t *testing.T) {
	rng := rand.New(rand.NewSource(1337))
	for trial := 0; trial < 500; trial++ {
		g := PlanGeometry(1+rng.Intn(10000), 1+rng.Intn(600), 1+rng.Intn(32))
		next := 0
		minLen, maxLen := g.Count, 0
		for u := 0; u < g.Units; u++ {
			start, end := g.Partition(u)
			assert.Equal(t, next, start, "gap or overlap before unit %d of %+v", u, g)
			assert.Less(t, start, end, "empty unit %d of %+v", u, g)
			minLen = min(minLen, end-start)
			maxLen = max(maxLen, end-start)
			next = end
		}
		assert.Equal(t, g.Count, next)
		assert.LessOrEqual(t, maxLen-minLen, 1)
	}
}

func TestPartitionLongerFirst(t *testing.T) {
	g := Geometry{Count: 10, Units: 4}
	var lens []int
	for u := 0; u < g.Units; u++ {
		start, end := g.Partition(u)
		lens = append(lens, end-start)
	}
	assert.Equal(t, []int{3, 3, 2, 2}, lens)
}

func TestTreeRounds(t *testing.T) {
	expected := map[int]int{1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 16: 4, 17: 5}
	for size, rounds := range expected {
		assert.Equal(t, rounds, treeRounds(size), "size %d", size)
	}
}

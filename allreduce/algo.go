package allreduce

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Algo names an all-reduce strategy.
type Algo int

const (
	// Tree reduces along a binomial tree in
	// ceil(log2(size)) rounds.
	Tree Algo = iota

	// Flat has every rank read every peer directly.
	Flat
)

var algoNames = map[Algo]string{
	Tree: "tree",
	Flat: "flat",
}

func (a Algo) String() string {
	if name, ok := algoNames[a]; ok {
		return name
	}
	return "unknown"
}

// PhasesPerCall returns the number of barrier phases one
// call consumes in a group of the given size.
func (a Algo) PhasesPerCall(size int) int {
	if size <= 1 {
		return 0
	}
	if a == Flat {
		return 2
	}
	return 2 + treeRounds(size)
}

// ParseAlgo finds the strategy with the given name.
func ParseAlgo(name string) (Algo, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for algo, n := range algoNames {
		if n == name {
			return algo, nil
		}
	}
	return 0, errors.Errorf("unknown algorithm: %s", name)
}

// AllAlgoNames returns the name of every strategy, sorted.
func AllAlgoNames() []string {
	var res []string
	for _, name := range algoNames {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// New creates the strategy named by algo.
func New(algo Algo, cfg Config, opts ...Option) (Allreducer, error) {
	switch algo {
	case Tree:
		return NewTreeIPC(cfg, opts...), nil
	case Flat:
		return NewFlatIPC(cfg, opts...), nil
	}
	return nil, errors.Errorf("unknown algorithm: %d", int(algo))
}

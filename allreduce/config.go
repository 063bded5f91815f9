package allreduce

import (
	"math"

	"github.com/unixpickle/dda-allreduce/cvars"
	"github.com/unixpickle/dda-allreduce/fabric"
	"github.com/unixpickle/dda-allreduce/reduce"
	"github.com/unixpickle/essentials"
)

var (
	elemsPerUnitVar = cvars.Default.Int(
		"DDA_ALLREDUCE_ELEMS_PER_UNIT",
		4096,
		"Number of elements each execution unit should handle.\n"+
			"Larger counts use more units, up to the device limit.",
	)
	maxUnitsVar = cvars.Default.Int(
		"DDA_ALLREDUCE_MAX_UNITS",
		0,
		"Upper bound on execution units per launch.\n"+
			"Values below 1 leave the device limit in place.",
	)
)

// Tunables control how work is spread over execution
// units.
type Tunables struct {
	// ElemsPerUnit is the target number of elements for
	// each unit.
	// Values below 1 are treated as 1.
	ElemsPerUnit int

	// MaxUnits caps the number of units when positive.
	MaxUnits int
}

// DefaultTunables reads the tunables from the environment.
func DefaultTunables() Tunables {
	return Tunables{
		ElemsPerUnit: elemsPerUnitVar.Get(),
		MaxUnits:     maxUnitsVar.Get(),
	}
}

// maxUnits combines the device limit with the tunable cap.
func (t Tunables) maxUnits(mpCount int) int {
	if t.MaxUnits > 0 {
		return essentials.MinInt(mpCount, t.MaxUnits)
	}
	return mpCount
}

// An Option customizes a collective.
type Option func(o *options)

type options struct {
	tunables Tunables
}

// WithTunables overrides the tunables read from the
// environment.
func WithTunables(t Tunables) Option {
	return func(o *options) {
		o.tunables = t
	}
}

func makeOptions(opts []Option) options {
	o := options{tunables: DefaultTunables()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// validate checks the configuration and finds the combine
// routine.
// It never touches the queue.
func (c *Config) validate() (reduce.Kernel, error) {
	if c.SendBuf.IsNil() || c.RecvBuf.IsNil() {
		return nil, invalidArgument("nil send or receive buffer")
	}
	if c.Count <= 0 {
		return nil, invalidArgument("element count %d", c.Count)
	}
	if c.MultiProcessorCount <= 0 {
		return nil, invalidArgument("multiprocessor count %d", c.MultiProcessorCount)
	}
	if c.Comm == nil || c.Queue == nil || c.Barrier == nil {
		return nil, invalidArgument("missing communicator, queue or barrier")
	}
	size, rank := c.Comm.Size(), c.Comm.Rank()
	if size <= 0 || rank < 0 || rank >= size {
		return nil, invalidArgument("rank %d in group of %d", rank, size)
	}
	if !c.DataType.Valid() || !c.Op.Valid() {
		return nil, invalidArgument("unknown data type %s or operator %s", c.DataType, c.Op)
	}

	esz := c.DataType.Size()
	if c.Count > math.MaxInt/esz {
		return nil, invalidArgument("element count %d overflows buffer size", c.Count)
	}
	nbytes := c.Count * esz
	if c.SendBuf.Remaining() < nbytes || c.RecvBuf.Remaining() < nbytes {
		return nil, invalidArgument("buffers smaller than %d bytes", nbytes)
	}
	if !c.SendBuf.Aligned(esz) || !c.RecvBuf.Aligned(esz) {
		return nil, invalidArgument("buffers not aligned to %d bytes", esz)
	}
	if err := c.Peers.Validate(size, nbytes); err != nil {
		return nil, invalidArgument("peer table: %v", err)
	}
	for _, entry := range c.Peers {
		if !entry.Base.Aligned(esz) {
			return nil, invalidArgument("scratch of rank %d not aligned to %d bytes", entry.Rank, esz)
		}
	}
	if size > 1 {
		for _, entry := range c.Peers {
			if fabric.Overlaps(entry.Base, nbytes, c.RecvBuf, nbytes) {
				return nil, invalidArgument("receive buffer overlaps scratch of rank %d", entry.Rank)
			}
		}
		own := c.Peers.Lookup(rank)
		for _, entry := range c.Peers {
			if entry.Base == own && own == c.SendBuf {
				continue
			}
			if fabric.Overlaps(entry.Base, nbytes, c.SendBuf, nbytes) {
				return nil, invalidArgument("send buffer overlaps scratch of rank %d", entry.Rank)
			}
		}
	}

	return reduce.Lookup(c.DataType, c.Op)
}

// Package bootstrap assembles the state a group of
// participants needs before it can run collectives:
// communicators, exposed scratch memory, the peer address
// table, barrier storage and execution queues.
package bootstrap

import (
	"context"

	"github.com/pkg/errors"
	"github.com/unixpickle/dda-allreduce/cvars"
	"github.com/unixpickle/dda-allreduce/device"
	"github.com/unixpickle/dda-allreduce/fabric"
	"golang.org/x/sync/errgroup"
)

// DefaultMultiProcessorCount is the number of execution
// units each emulated device offers unless configured.
const DefaultMultiProcessorCount = 8

// SpinYield is the default number of polls a flag barrier
// waiter makes between yields.
var SpinYield = cvars.Default.Int(
	"DDA_BARRIER_SPIN_YIELD",
	fabric.DefaultSpinYield,
	"Number of barrier polls between scheduler yields.\nValues below 1 select the built-in default.",
)

// Comm is one participant's view of its group.
type Comm struct {
	rank int
	size int
}

// Rank returns the participant's index in the group.
func (c *Comm) Rank() int {
	return c.rank
}

// Size returns the number of participants.
func (c *Comm) Size() int {
	return c.size
}

// A Group holds everything that bootstrap produces for a
// set of participants on one machine.
type Group struct {
	// Comms contains one communicator per rank.
	Comms []*Comm

	// Scratch contains the memory each rank exposes to its
	// peers, indexed by rank.
	Scratch []*fabric.Memory

	// Peers is the address table built from Scratch.
	Peers fabric.PeerTable

	// Barriers contains each rank's handle on the group's
	// barrier.
	Barriers []fabric.Barrier

	// Streams contains one execution queue per rank.
	Streams []*device.Stream

	// MultiProcessorCount is the number of execution units
	// per device.
	MultiProcessorCount int

	// BarrierMemory holds the shared barrier words.
	// It is nil when the group uses a message barrier.
	BarrierMemory *fabric.Memory
}

// A GroupOption customizes NewGroup.
type GroupOption func(o *groupOptions)

type groupOptions struct {
	messageBarrier bool
	mpCount        int
	spinYield      int
}

// WithMessageBarrier makes the group synchronize with
// explicit per-phase messages instead of a shared flag.
func WithMessageBarrier() GroupOption {
	return func(o *groupOptions) {
		o.messageBarrier = true
	}
}

// WithMultiProcessorCount sets the number of execution
// units per device.
func WithMultiProcessorCount(n int) GroupOption {
	return func(o *groupOptions) {
		o.mpCount = n
	}
}

// WithSpinYield sets how often flag barrier waiters yield.
func WithSpinYield(n int) GroupOption {
	return func(o *groupOptions) {
		o.spinYield = n
	}
}

// NewGroup sets up a group of the given size where every
// rank exposes scratchBytes of memory.
func NewGroup(size, scratchBytes int, opts ...GroupOption) (*Group, error) {
	if size <= 0 {
		return nil, errors.Errorf("new group: invalid size %d", size)
	}
	if scratchBytes < 0 {
		return nil, errors.Errorf("new group: invalid scratch size %d", scratchBytes)
	}
	options := groupOptions{
		mpCount:   DefaultMultiProcessorCount,
		spinYield: SpinYield.Get(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.mpCount <= 0 {
		return nil, errors.Errorf("new group: invalid multiprocessor count %d", options.mpCount)
	}

	g := &Group{MultiProcessorCount: options.mpCount}
	for rank := 0; rank < size; rank++ {
		g.Comms = append(g.Comms, &Comm{rank: rank, size: size})
		g.Scratch = append(g.Scratch, fabric.NewMemory(rank, scratchBytes))
		g.Streams = append(g.Streams, device.NewStream(rank))
	}
	g.Peers = fabric.NewPeerTable(g.Scratch)

	if options.messageBarrier {
		net := fabric.NewMessageNet(size)
		for rank := 0; rank < size; rank++ {
			g.Barriers = append(g.Barriers, net.Endpoint(rank))
		}
	} else {
		g.BarrierMemory = fabric.NewMemory(0, fabric.BarrierBytes)
		for rank := 0; rank < size; rank++ {
			b, err := fabric.OpenFlagBarrier(g.BarrierMemory.Base(), options.spinYield)
			if err != nil {
				g.Close()
				return nil, errors.Wrap(err, "new group")
			}
			g.Barriers = append(g.Barriers, b)
		}
	}
	return g, nil
}

// Size returns the number of ranks.
func (g *Group) Size() int {
	return len(g.Comms)
}

// Alloc allocates a buffer in a rank's device memory.
func (g *Group) Alloc(rank, size int) fabric.Ptr {
	return fabric.NewMemory(rank, size).Base()
}

// Spawn runs f for every rank in its own Goroutine and
// waits for all of them.
//
// The first error is returned.
func (g *Group) Spawn(f func(rank int) error) error {
	var eg errgroup.Group
	for rank := range g.Comms {
		rank := rank
		eg.Go(func() error {
			return errors.Wrapf(f(rank), "rank %d", rank)
		})
	}
	return eg.Wait()
}

// Synchronize waits for every rank's stream to drain.
func (g *Group) Synchronize(ctx context.Context) error {
	for _, s := range g.Streams {
		if err := s.Synchronize(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close destroys every stream, aborting outstanding work.
func (g *Group) Close() {
	for _, s := range g.Streams {
		s.Destroy()
	}
}

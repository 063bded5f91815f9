// Package allreduce implements algorithms for combining
// buffers held by every participant of a group so that
// each participant receives the combined result.
//
// Participants read each other's exposed device memory
// directly and stay in step through a shared barrier.
package allreduce

import (
	"github.com/unixpickle/dda-allreduce/device"
	"github.com/unixpickle/dda-allreduce/fabric"
	"github.com/unixpickle/dda-allreduce/reduce"
)

// Allreducer is a collective whose parameters were fixed
// when it was constructed.
//
// AllReduce enqueues the work and returns without waiting
// for it.
// Completion and device faults are observed through the
// execution queue the collective was built with.
//
// Two calls that share buffers or a barrier must not be in
// flight at the same time; callers serialize them.
type Allreducer interface {
	AllReduce() error
}

// Comm identifies the caller within its group.
type Comm interface {
	Rank() int
	Size() int
}

// Queue is an ordered execution queue for one device.
//
// *device.Stream implements Queue.
type Queue interface {
	Enqueue(l device.Launch) error
}

// Config holds everything a collective needs.
// Every field is required.
//
// Every participant of a call must use the same Count,
// DataType, Op and MultiProcessorCount, since they decide
// how many parties the barrier waits for.
type Config struct {
	// SendBuf and RecvBuf hold Count elements each.
	// They may be the same buffer.
	// SendBuf may also be exactly the caller's own scratch,
	// but must not otherwise overlap any rank's scratch.
	SendBuf fabric.Ptr
	RecvBuf fabric.Ptr

	Count    int
	DataType reduce.DataType
	Op       reduce.Op

	Comm  Comm
	Queue Queue

	// Peers maps every rank to its exposed scratch
	// memory, which must hold at least Count elements.
	// RecvBuf must not overlap the caller's own scratch.
	Peers fabric.PeerTable

	// Barrier is the caller's handle on the group's
	// barrier.
	Barrier fabric.Barrier

	// MultiProcessorCount bounds the number of execution
	// units per launch.
	MultiProcessorCount int
}

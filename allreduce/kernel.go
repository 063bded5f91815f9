package allreduce

import (
	"github.com/unixpickle/dda-allreduce/device"
	"github.com/unixpickle/dda-allreduce/fabric"
	"github.com/unixpickle/dda-allreduce/reduce"
)

// kernelArgs is the device-side copy of a call's
// parameters.
type kernelArgs struct {
	rank, size int
	send, recv fabric.Ptr
	peers      fabric.PeerTable
	barrier    fabric.Barrier
	combine    reduce.Kernel
	elemSize   int
	geom       Geometry
}

// slice is one unit's share of a buffer.
type slice struct {
	offset int
	count  int
	bytes  int
}

func (k *kernelArgs) slice(u device.Unit) slice {
	start, end := k.geom.Partition(u.Index)
	return slice{
		offset: start * k.elemSize,
		count:  end - start,
		bytes:  (end - start) * k.elemSize,
	}
}

func (k *kernelArgs) phaser(u device.Unit) *phaser {
	return &phaser{
		barrier: k.barrier,
		parties: uint64(k.size * k.geom.Units),
		phase:   k.barrier.Base(),
		abort:   u.Abort(),
	}
}

// A phaser walks one unit through consecutive barrier
// phases.
type phaser struct {
	barrier fabric.Barrier
	parties uint64
	phase   uint64
	abort   <-chan struct{}
}

func (p *phaser) next() error {
	err := p.barrier.Arrive(p.phase, p.parties, p.abort)
	p.phase++
	return err
}

// copyBytes copies one slice between buffers.
func copyBytes(dst, src fabric.Ptr, s slice) {
	copy(dst.Add(s.offset).Bytes(s.bytes), src.Add(s.offset).Bytes(s.bytes))
}

// treeKernel reduces up a binomial tree rooted at rank 0
// and then lets every rank read the root's result.
//
// In round d, every rank that is a multiple of 2d absorbs
// rank+d, so after ceil(log2(size)) rounds rank 0's scratch
// holds the full reduction.
// Each byte of scratch has a single writer per phase.
func treeKernel(k *kernelArgs) device.KernelFunc {
	return func(u device.Unit) error {
		s := k.slice(u)
		if k.size == 1 {
			copyBytes(k.recv, k.send, s)
			return nil
		}
		p := k.phaser(u)
		own := k.peers.Lookup(k.rank)

		copyBytes(own, k.send, s)
		if err := p.next(); err != nil {
			return err
		}

		for dist := 1; dist < k.size; dist *= 2 {
			if k.rank%(2*dist) == 0 && k.rank+dist < k.size {
				peer := k.peers.Lookup(k.rank + dist)
				k.combine.Accumulate(own.Add(s.offset), peer.Add(s.offset), s.count)
			}
			if err := p.next(); err != nil {
				return err
			}
		}

		copyBytes(k.recv, k.peers.Lookup(0), s)

		// Rank 0's scratch stays live until every rank has
		// read it.
		return p.next()
	}
}

// flatKernel has every rank combine all of the scratch
// buffers itself, always in rank order.
func flatKernel(k *kernelArgs) device.KernelFunc {
	return func(u device.Unit) error {
		s := k.slice(u)
		if k.size == 1 {
			copyBytes(k.recv, k.send, s)
			return nil
		}
		p := k.phaser(u)

		copyBytes(k.peers.Lookup(k.rank), k.send, s)
		if err := p.next(); err != nil {
			return err
		}

		dst := k.recv.Add(s.offset)
		copyBytes(k.recv, k.peers.Lookup(0), s)
		for rank := 1; rank < k.size; rank++ {
			k.combine.Accumulate(dst, k.peers.Lookup(rank).Add(s.offset), s.count)
		}
		return p.next()
	}
}

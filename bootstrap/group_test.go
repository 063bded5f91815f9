package bootstrap

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/dda-allreduce/device"
	"github.com/unixpickle/dda-allreduce/fabric"
)

func TestNewGroup(t *testing.T) {
	g, err := NewGroup(4, 64, WithMultiProcessorCount(3))
	require.NoError(t, err)
	defer g.Close()

	assert.Equal(t, 4, g.Size())
	assert.Equal(t, 3, g.MultiProcessorCount)
	assert.NotNil(t, g.BarrierMemory)
	require.NoError(t, g.Peers.Validate(4, 64))
	for rank, comm := range g.Comms {
		assert.Equal(t, rank, comm.Rank())
		assert.Equal(t, 4, comm.Size())
		assert.Equal(t, rank, g.Scratch[rank].Owner())
		assert.Equal(t, rank, g.Streams[rank].Ordinal())
		assert.IsType(t, &fabric.FlagBarrier{}, g.Barriers[rank])
	}

	p := g.Alloc(2, 40)
	assert.Equal(t, 2, p.Owner())
	assert.Equal(t, 40, p.Remaining())
}

func TestNewGroupMessageBarrier(t *testing.T) {
	g, err := NewGroup(3, 8, WithMessageBarrier())
	require.NoError(t, err)
	defer g.Close()
	assert.Nil(t, g.BarrierMemory)
	for _, b := range g.Barriers {
		assert.IsType(t, &fabric.MessageBarrier{}, b)
	}
}

func TestNewGroupInvalid(t *testing.T) {
	_, err := NewGroup(0, 8)
	assert.Error(t, err)
	_, err = NewGroup(2, -1)
	assert.Error(t, err)
	_, err = NewGroup(2, 8, WithMultiProcessorCount(0))
	assert.Error(t, err)
}

func TestGroupBarrierRoundTrip(t *testing.T) {
	for _, opts := range [][]GroupOption{{WithSpinYield(8)}, {WithMessageBarrier()}} {
		g, err := NewGroup(5, 0, opts...)
		require.NoError(t, err)

		var arrived int64
		err = g.Spawn(func(rank int) error {
			b := g.Barriers[rank]
			base := b.Base()
			for i := uint64(0); i < 3; i++ {
				atomic.AddInt64(&arrived, 1)
				if err := b.Arrive(base+i, 5, nil); err != nil {
					return err
				}
				if n := atomic.LoadInt64(&arrived); n < int64(5*(i+1)) {
					return errors.Errorf("released after %d arrivals", n)
				}
			}
			return nil
		})
		assert.NoError(t, err)
		g.Close()
	}
}

func TestGroupSpawnError(t *testing.T) {
	g, err := NewGroup(3, 0)
	require.NoError(t, err)
	defer g.Close()
	err = g.Spawn(func(rank int) error {
		if rank == 1 {
			return errors.New("boom")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rank 1")
}

func TestGroupCloseAbortsStalledWork(t *testing.T) {
	g, err := NewGroup(2, 0, WithSpinYield(4))
	require.NoError(t, err)

	// Only rank 0 arrives, so the launch can never finish
	// on its own.
	b := g.Barriers[0]
	require.NoError(t, g.Streams[0].Enqueue(device.Launch{
		Name:  "stalled",
		Units: 1,
		Kernel: func(u device.Unit) error {
			return b.Arrive(b.Base(), 2, u.Abort())
		},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, g.Synchronize(ctx))

	g.Close()
	err = g.Synchronize(context.Background())
	assert.True(t, errors.Is(err, device.ErrStreamDestroyed))
}

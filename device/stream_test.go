package device

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamFIFO(t *testing.T) {
	s := NewStream(0)
	defer s.Destroy()

	var lock sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		idx := i
		err := s.Enqueue(Launch{
			Name:  "append",
			Units: 3,
			Kernel: func(u Unit) error {
				if u.Index == 0 {
					time.Sleep(time.Millisecond)
					lock.Lock()
					order = append(order, idx)
					lock.Unlock()
				}
				return nil
			},
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.Synchronize(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	assert.Equal(t, 10, s.Launches())
	assert.Equal(t, 0, s.Ordinal())
}

func TestStreamUnitsConcurrent(t *testing.T) {
	s := NewStream(1)
	defer s.Destroy()

	const units = 8
	var arrived atomic.Int64
	var seen [units]atomic.Bool
	require.NoError(t, s.Enqueue(Launch{
		Name:  "rendezvous",
		Units: units,
		Kernel: func(u Unit) error {
			assert.Equal(t, units, u.Count)
			seen[u.Index].Store(true)
			arrived.Add(1)
			for arrived.Load() < units {
				select {
				case <-u.Abort():
					return errors.New("aborted")
				default:
				}
			}
			return nil
		},
	}))
	require.NoError(t, s.Synchronize(context.Background()))
	for i := range seen {
		assert.True(t, seen[i].Load(), "unit %d", i)
	}
}

func TestStreamInvalidLaunch(t *testing.T) {
	s := NewStream(0)
	defer s.Destroy()
	err := s.Enqueue(Launch{Name: "empty", Units: 0, Kernel: func(Unit) error { return nil }})
	assert.True(t, errors.Is(err, ErrInvalidLaunch))
	err = s.Enqueue(Launch{Name: "nil", Units: 1})
	assert.True(t, errors.Is(err, ErrInvalidLaunch))
	assert.Equal(t, 0, s.Launches())
}

func TestStreamFaultIsSticky(t *testing.T) {
	s := NewStream(2)
	defer s.Destroy()

	var siblingAborted atomic.Bool
	require.NoError(t, s.Enqueue(Launch{
		Name:  "fault",
		Units: 2,
		Kernel: func(u Unit) error {
			if u.Index == 0 {
				var buf []byte
				buf[3] = 1
			}
			<-u.Abort()
			siblingAborted.Store(true)
			return nil
		},
	}))
	err := s.Synchronize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit 0")
	assert.True(t, siblingAborted.Load())
	assert.Error(t, s.Err())

	err = s.Enqueue(Launch{Name: "after", Units: 1, Kernel: func(Unit) error { return nil }})
	assert.True(t, errors.Is(err, ErrStreamFaulted))
}

func TestStreamDestroy(t *testing.T) {
	s := NewStream(3)

	started := make(chan struct{})
	var ranSecond atomic.Bool
	require.NoError(t, s.Enqueue(Launch{
		Name:  "spin",
		Units: 4,
		Kernel: func(u Unit) error {
			if u.Index == 0 {
				close(started)
			}
			<-u.Abort()
			return errors.New("aborted")
		},
	}))
	require.NoError(t, s.Enqueue(Launch{
		Name:  "never",
		Units: 1,
		Kernel: func(Unit) error {
			ranSecond.Store(true)
			return nil
		},
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, s.Synchronize(ctx))

	s.Destroy()
	s.Destroy()
	assert.False(t, ranSecond.Load())
	assert.NoError(t, s.Err())
	assert.True(t, errors.Is(s.Synchronize(context.Background()), ErrStreamDestroyed))

	err := s.Enqueue(Launch{Name: "late", Units: 1, Kernel: func(Unit) error { return nil }})
	assert.True(t, errors.Is(err, ErrStreamDestroyed))
}

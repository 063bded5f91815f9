// Package device emulates the execution queues of compute
// devices.
//
// A Stream runs kernel launches one at a time in FIFO
// order.
// Each launch activates a number of execution units that
// run concurrently as Goroutines.
package device

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/essentials"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidLaunch is returned for launches with no
	// kernel or no execution units.
	ErrInvalidLaunch = errors.New("invalid kernel launch")

	// ErrStreamDestroyed is returned when work is submitted
	// to a destroyed stream.
	ErrStreamDestroyed = errors.New("stream destroyed")

	// ErrStreamFaulted is returned when work is submitted to
	// a stream after a previous launch failed on the device.
	ErrStreamFaulted = errors.New("stream faulted")
)

// A Unit is one execution unit of a launch.
type Unit struct {
	// Index is the unit's position in the launch grid.
	Index int

	// Count is the number of units in the launch.
	Count int

	abort <-chan struct{}
}

// Abort returns a channel that is closed when the unit's
// stream is destroyed or another unit of the same launch
// has failed.
func (u Unit) Abort() <-chan struct{} {
	return u.abort
}

// A KernelFunc is the code run by each execution unit.
type KernelFunc func(u Unit) error

// A Launch is one unit of work on a Stream.
type Launch struct {
	Name   string
	Units  int
	Kernel KernelFunc
}

// A Stream is an ordered execution queue for one device.
//
// Failures that happen while a launch is running are
// sticky: they are reported by Synchronize and Err, and
// every later Enqueue fails.
type Stream struct {
	ordinal int

	lock      sync.Mutex
	pending   []Launch
	running   bool
	destroyed bool
	fault     error
	launches  int
	idle      chan struct{}
	wake      chan struct{}
	done      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	log *logrus.Entry
}

// NewStream creates a stream for the device with the given
// ordinal and starts its worker.
func NewStream(ordinal int) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		ordinal: ordinal,
		idle:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		log:     logrus.WithField("device", ordinal),
	}
	close(s.idle)
	go s.worker()
	return s
}

// Ordinal returns the device the stream belongs to.
func (s *Stream) Ordinal() int {
	return s.ordinal
}

// Enqueue schedules a launch without waiting for it.
func (s *Stream) Enqueue(l Launch) error {
	if l.Kernel == nil || l.Units <= 0 {
		return errors.Wrapf(ErrInvalidLaunch, "launch %q with %d units", l.Name, l.Units)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.destroyed {
		return errors.Wrapf(ErrStreamDestroyed, "device %d", s.ordinal)
	}
	if s.fault != nil {
		return errors.Wrapf(ErrStreamFaulted, "device %d: %v", s.ordinal, s.fault)
	}
	if len(s.pending) == 0 && !s.running {
		s.idle = make(chan struct{})
	}
	s.pending = append(s.pending, l)
	s.launches++
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Launches returns the number of launches ever accepted by
// Enqueue.
func (s *Stream) Launches() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.launches
}

// Err returns the sticky in-flight error, if any.
func (s *Stream) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.fault
}

// Synchronize waits until every accepted launch has
// finished and returns the stream's in-flight error.
func (s *Stream) Synchronize(ctx context.Context) error {
	s.lock.Lock()
	idle := s.idle
	s.lock.Unlock()
	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.fault != nil {
		return errors.Wrapf(s.fault, "synchronize device %d", s.ordinal)
	}
	if s.destroyed {
		return errors.Wrapf(ErrStreamDestroyed, "synchronize device %d", s.ordinal)
	}
	return nil
}

// Destroy aborts all outstanding work and stops the stream.
//
// Pending launches are dropped and the running launch is
// asked to stop.
// Buffers written by aborted work hold undefined contents.
//
// It is safe to call Destroy more than once.
func (s *Stream) Destroy() {
	s.lock.Lock()
	if s.destroyed {
		s.lock.Unlock()
		<-s.done
		return
	}
	s.destroyed = true
	dropped := len(s.pending)
	s.pending = nil
	s.cancel()
	close(s.wake)
	s.lock.Unlock()

	<-s.done
	if dropped > 0 {
		s.log.WithField("dropped", dropped).Warn("destroyed stream with pending launches")
	}
}

func (s *Stream) worker() {
	defer close(s.done)
	for range s.wake {
		for {
			s.lock.Lock()
			if len(s.pending) == 0 || s.destroyed {
				s.running = false
				s.markIdle()
				s.lock.Unlock()
				break
			}
			l := s.pending[0]
			essentials.OrderedDelete(&s.pending, 0)
			s.running = true
			s.lock.Unlock()

			err := s.run(l)

			s.lock.Lock()
			if err != nil && s.fault == nil && !s.destroyed {
				s.fault = err
				s.log.WithFields(logrus.Fields{
					"kernel": l.Name,
					"units":  l.Units,
				}).WithError(err).Error("kernel failed")
			}
			if s.fault != nil {
				s.pending = nil
			}
			s.lock.Unlock()
		}
	}
	s.lock.Lock()
	s.running = false
	s.markIdle()
	s.lock.Unlock()
}

// markIdle must be called with the lock held.
func (s *Stream) markIdle() {
	select {
	case <-s.idle:
	default:
		close(s.idle)
	}
}

func (s *Stream) run(l Launch) error {
	g, ctx := errgroup.WithContext(s.ctx)
	for i := 0; i < l.Units; i++ {
		unit := Unit{Index: i, Count: l.Units, abort: ctx.Done()}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Errorf("unit %d: %v", unit.Index, r)
				}
			}()
			return l.Kernel(unit)
		})
	}
	return errors.Wrapf(g.Wait(), "launch %q", l.Name)
}

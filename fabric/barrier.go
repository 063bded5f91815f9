package fabric

import (
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"
)

// BarrierBytes is the amount of fabric memory used by a
// FlagBarrier.
const BarrierBytes = 2 * WordSize

// DefaultSpinYield is the number of polls a waiter makes
// between yields when no spin interval is configured.
const DefaultSpinYield = 1024

// ErrBarrierAborted is returned by Barrier.Arrive when the
// caller's execution queue was torn down while waiting.
var ErrBarrierAborted = errors.New("barrier wait aborted")

// A Barrier gates synchronization phases shared by every
// participant of a group.
//
// Phases are numbered by a monotonic counter.
// A phase number is never reused, so two collectives must
// never run concurrently against the same Barrier.
type Barrier interface {
	// Base returns the phase at which the caller's next
	// collective starts.
	//
	// It is only meaningful while the caller has no
	// arrivals in flight.
	Base() uint64

	// Arrive records one arrival at phase and blocks until
	// parties arrivals for that phase have been recorded
	// across the group.
	//
	// There is no timeout.
	// If some party never arrives, Arrive only returns once
	// abort is closed.
	Arrive(phase, parties uint64, abort <-chan struct{}) error
}

// A FlagBarrier is a phase counter that lives in fabric
// memory reachable by every participant.
//
// The memory holds two words: the phase counter and the
// arrival count for the current phase.
// The last party to arrive resets the arrival count and
// then advances the phase by exactly one.
type FlagBarrier struct {
	phase     *uint64
	arrivals  *uint64
	spinYield int
}

// OpenFlagBarrier attaches to the barrier words at p.
//
// The memory must be word-aligned, hold at least
// BarrierBytes, and be zeroed before its first use.
// If spinYield is not positive, DefaultSpinYield is used.
func OpenFlagBarrier(p Ptr, spinYield int) (*FlagBarrier, error) {
	if p.IsNil() {
		return nil, errors.New("open flag barrier: nil address")
	}
	if !p.Aligned(WordSize) {
		return nil, errors.Errorf("open flag barrier: offset %d is not word-aligned", p.Offset())
	}
	if p.Remaining() < BarrierBytes {
		return nil, errors.Errorf("open flag barrier: need %d bytes but only %d remain",
			BarrierBytes, p.Remaining())
	}
	if spinYield <= 0 {
		spinYield = DefaultSpinYield
	}
	return &FlagBarrier{
		phase:     p.Word(),
		arrivals:  p.Add(WordSize).Word(),
		spinYield: spinYield,
	}, nil
}

// Phase reads the shared phase counter.
func (f *FlagBarrier) Phase() uint64 {
	return atomic.LoadUint64(f.phase)
}

// Base returns the current phase counter.
//
// No party can advance the counter past a phase that still
// needs the caller's arrival, so the value read before the
// first arrival of a collective is its starting phase.
func (f *FlagBarrier) Base() uint64 {
	return f.Phase()
}

// Arrive increments the arrival count and spins until the
// phase counter moves past phase.
func (f *FlagBarrier) Arrive(phase, parties uint64, abort <-chan struct{}) error {
	if atomic.AddUint64(f.arrivals, 1) == parties {
		atomic.StoreUint64(f.arrivals, 0)
		atomic.AddUint64(f.phase, 1)
		return nil
	}
	for spins := 1; atomic.LoadUint64(f.phase) <= phase; spins++ {
		if spins%f.spinYield == 0 {
			select {
			case <-abort:
				return errors.Wrapf(ErrBarrierAborted, "phase %d", phase)
			default:
			}
			runtime.Gosched()
		}
	}
	return nil
}

package fabric

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// A MessageNet connects the participants of a group that
// cannot reach a shared barrier word.
//
// Each participant owns a mailbox.
// Arriving at a phase sends that phase number to every
// mailbox, and a participant may leave the phase once its
// own mailbox has heard from every party.
type MessageNet struct {
	boxes []*mailbox
}

// NewMessageNet creates a network with one mailbox per
// participant.
func NewMessageNet(size int) *MessageNet {
	boxes := make([]*mailbox, size)
	for i := range boxes {
		boxes[i] = newMailbox()
	}
	return &MessageNet{boxes: boxes}
}

// Size returns the number of participants.
func (m *MessageNet) Size() int {
	return len(m.boxes)
}

// Endpoint returns the Barrier used by one participant.
//
// Each participant should create exactly one endpoint and
// serialize the collectives that use it.
func (m *MessageNet) Endpoint(rank int) *MessageBarrier {
	if rank < 0 || rank >= len(m.boxes) {
		panic("rank out of range")
	}
	return &MessageBarrier{net: m, rank: rank}
}

// A MessageBarrier is a Barrier that exchanges explicit
// per-phase messages and tracks the phase locally.
type MessageBarrier struct {
	net   *MessageNet
	rank  int
	local atomic.Uint64
}

// Base returns the first phase this participant has not
// completed.
func (m *MessageBarrier) Base() uint64 {
	return m.local.Load()
}

// Arrive broadcasts the arrival and waits for the rest of
// the group.
func (m *MessageBarrier) Arrive(phase, parties uint64, abort <-chan struct{}) error {
	if phase < m.local.Load() {
		panic("phase reused on message barrier")
	}
	for _, box := range m.net.boxes {
		box.deliver(phase)
	}
	localParties := parties / uint64(len(m.net.boxes))
	if err := m.net.boxes[m.rank].await(phase, parties, localParties, abort); err != nil {
		return err
	}
	for {
		cur := m.local.Load()
		if cur > phase || m.local.CompareAndSwap(cur, phase+1) {
			return nil
		}
	}
}

type mailbox struct {
	lock     sync.Mutex
	counts   map[uint64]uint64
	released map[uint64]uint64
	notify   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		counts:   map[uint64]uint64{},
		released: map[uint64]uint64{},
		notify:   make(chan struct{}),
	}
}

func (m *mailbox) deliver(phase uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.counts[phase]++
	close(m.notify)
	m.notify = make(chan struct{})
}

// await blocks until the phase has parties arrivals.
//
// Once all of the mailbox owner's localParties have been
// released, the phase is forgotten.
func (m *mailbox) await(phase, parties, localParties uint64, abort <-chan struct{}) error {
	for {
		m.lock.Lock()
		if m.counts[phase] >= parties {
			m.released[phase]++
			if m.released[phase] >= localParties {
				delete(m.counts, phase)
				delete(m.released, phase)
			}
			m.lock.Unlock()
			return nil
		}
		ch := m.notify
		m.lock.Unlock()

		select {
		case <-ch:
		case <-abort:
			return errors.Wrapf(ErrBarrierAborted, "phase %d", phase)
		}
	}
}

package fabric

import "github.com/pkg/errors"

// A PeerEntry describes one participant's exposed buffer.
type PeerEntry struct {
	Rank int
	Base Ptr
}

// A PeerTable lists the exposed buffer of every
// participant, indexed by rank.
//
// Tables are produced during bootstrap and are read-only
// while a collective is running.
type PeerTable []PeerEntry

// NewPeerTable builds a table from each rank's exposed
// region.
func NewPeerTable(regions []*Memory) PeerTable {
	res := make(PeerTable, len(regions))
	for i, m := range regions {
		res[i] = PeerEntry{Rank: i, Base: m.Base()}
	}
	return res
}

// Validate checks that the table describes a group of the
// given size and that every buffer can hold minBytes.
func (p PeerTable) Validate(size, minBytes int) error {
	if len(p) != size {
		return errors.Errorf("peer table has %d entries for a group of %d", len(p), size)
	}
	for i, entry := range p {
		if entry.Rank != i {
			return errors.Errorf("peer table entry %d is for rank %d", i, entry.Rank)
		}
		if entry.Base.IsNil() {
			return errors.Errorf("peer table entry %d has no address", i)
		}
		if entry.Base.Remaining() < minBytes {
			return errors.Errorf("peer %d exposes %d bytes but %d are required",
				i, entry.Base.Remaining(), minBytes)
		}
	}
	return nil
}

// Lookup returns the exposed base address of a rank.
func (p PeerTable) Lookup(rank int) Ptr {
	return p[rank].Base
}

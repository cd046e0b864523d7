package sendqueue

import "github.com/mattlee78/netstate/internal/snapshot"

// SnapshotHistory is the per-peer ordered history of snapshots awaiting
// acknowledgment (spec §4.4 L2): the server retains every snapshot it
// has sent a peer until that peer acknowledges it or a newer one, since
// the diff against "the peer's last-acknowledged snapshot" needs the
// actual prior Snapshot value, not just its index.
//
// Grounded on the teacher's pkg/metricstore/checkpoint.go retention
// pattern (keep immutable copies until superseded), adapted from a
// time-bounded ring to an ack-bounded one.
type SnapshotHistory struct {
	entries []*snapshot.Snapshot // strictly increasing Index, oldest first
}

// NewSnapshotHistory returns an empty history.
func NewSnapshotHistory() *SnapshotHistory { return &SnapshotHistory{} }

// Push retains s, taking a reference on it. Callers must have already
// called s.Retain() for this history's share, matching the ownership
// contract of snapshot.Snapshot.
func (h *SnapshotHistory) Push(s *snapshot.Snapshot) {
	h.entries = append(h.entries, s)
}

// LastAcked returns the snapshot matching ackedIndex if it is still
// retained, or nil if it has already been superseded/never sent (the
// caller should then diff against nil, i.e. send every node as
// Created).
func (h *SnapshotHistory) LastAcked(ackedIndex uint32) *snapshot.Snapshot {
	for _, s := range h.entries {
		if s.Index == ackedIndex {
			return s
		}
	}
	return nil
}

// Latest returns the most recently pushed snapshot, or nil if empty.
func (h *SnapshotHistory) Latest() *snapshot.Snapshot {
	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[len(h.entries)-1]
}

// RetireThrough releases and drops every retained snapshot with Index
// <= ackedIndex except the one equal to ackedIndex, which becomes the
// new baseline for future diffs (spec §3: "released when a newer index
// is acknowledged (all earlier ones are dropped)").
func (h *SnapshotHistory) RetireThrough(ackedIndex uint32) {
	kept := h.entries[:0]
	for _, s := range h.entries {
		if s.Index < ackedIndex {
			s.Release()
			continue
		}
		kept = append(kept, s)
	}
	h.entries = kept
}

// Close releases every retained snapshot, for connection teardown.
func (h *SnapshotHistory) Close() {
	for _, s := range h.entries {
		s.Release()
	}
	h.entries = nil
}

package sendqueue

import "sync"

// PacketQueue buffers raw datagrams for one in-progress snapshot so the
// client can apply them to the state tree as a single atomic batch (spec
// §4.3: "client staging queue"). Mutation methods are safe for
// concurrent use so a network goroutine can keep appending while a
// separate worker drains a completed batch (spec §5's "double-ended
// buffer" hand-off).
type PacketQueue struct {
	mu        sync.Mutex
	staging   [][]byte
	completed [][][]byte
}

// NewPacketQueue returns an empty queue.
func NewPacketQueue() *PacketQueue { return &PacketQueue{} }

// Append stages one raw datagram belonging to the snapshot currently
// being assembled.
func (q *PacketQueue) Append(datagram []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := append([]byte(nil), datagram...)
	q.staging = append(q.staging, cp)
}

// CommitSnapshot is called when EndSnapshot closes a complete (non-
// fractured) snapshot: the staged datagrams move to the completed
// queue, ready to be decoded into the state tree as one batch, and the
// staging buffer is reset for the next snapshot.
func (q *PacketQueue) CommitSnapshot() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.staging) == 0 {
		return
	}
	q.completed = append(q.completed, q.staging)
	q.staging = nil
}

// DiscardSnapshot is called when EndSnapshot reports a fractured
// snapshot: the staged datagrams are dropped without ever reaching the
// state tree (spec §8: "A fractured snapshot ... never applies any of
// its NodeCreate|Delete|Update events").
func (q *PacketQueue) DiscardSnapshot() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.staging = nil
}

// DrainCompleted removes and returns every completed batch accumulated
// so far, oldest first, for the applying thread to decode.
func (q *PacketQueue) DrainCompleted() [][][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.completed
	q.completed = nil
	return out
}

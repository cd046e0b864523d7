// Package zone implements the bump-allocated arena used once per snapshot
// (spec §2 L0 "Zone allocator"). A Zone owns every byte slice and clone
// a snapshot needs; dropping the Zone (via Release, which returns its
// backing chunks to a pool) frees all of it at once instead of per-object.
//
// The pooling strategy mirrors the teacher's PersistentBufferPool
// (pkg/metricstore/buffer.go): fixed-capacity chunks are reused via
// sync.Pool-style reuse instead of being handed back to the GC, because
// a new Zone is allocated for every snapshot, i.e. once per tick.
package zone

import "sync"

// ChunkSize is the size of one backing allocation inside a Zone. Bytes
// requests larger than ChunkSize get their own dedicated allocation.
const ChunkSize = 16 * 1024

var chunkPool = sync.Pool{
	New: func() any {
		buf := make([]byte, ChunkSize)
		return &buf
	},
}

// Zone is a bump allocator: Alloc hands out byte slices carved from
// pooled chunks, and Release returns every chunk it used back to the
// pool in one shot. A Zone is not safe for concurrent use; each snapshot
// owns exactly one Zone and it is only ever touched by the worker that
// produced the snapshot (spec §5: "The ack tracker, send queue, encoder,
// and decoder are single-threaded").
type Zone struct {
	chunks     []*[]byte
	cur        *[]byte
	off        int
	allocated  int64 // bytes handed out via Alloc, for Stats()
	highWater  int64
	numAllocs  int
	standalone int // count of oversized dedicated allocations
}

// New returns an empty Zone ready for use.
func New() *Zone {
	return &Zone{}
}

// Alloc returns n zeroed bytes that remain valid until Release is called.
func (z *Zone) Alloc(n int) []byte {
	if n <= 0 {
		return nil
	}
	if n > ChunkSize {
		buf := make([]byte, n)
		z.standalone++
		z.track(n)
		return buf
	}
	if z.cur == nil || z.off+n > len(*z.cur) {
		z.cur = chunkPool.Get().(*[]byte)
		z.chunks = append(z.chunks, z.cur)
		z.off = 0
	}
	buf := (*z.cur)[z.off : z.off+n : z.off+n]
	z.off += n
	z.track(n)
	return buf
}

// Clone copies src into a freshly zone-allocated slice.
func (z *Zone) Clone(src []byte) []byte {
	if src == nil {
		return nil
	}
	dst := z.Alloc(len(src))
	copy(dst, src)
	return dst
}

func (z *Zone) track(n int) {
	z.allocated += int64(n)
	z.numAllocs++
	if z.allocated > z.highWater {
		z.highWater = z.allocated
	}
}

// Release returns every pooled chunk owned by the Zone and resets it to
// an empty state. After Release, any slice previously returned by Alloc
// or Clone must not be read or written again (spec §3's "released by
// dropping the zone").
func (z *Zone) Release() {
	for _, c := range z.chunks {
		chunkPool.Put(c)
	}
	z.chunks = nil
	z.cur = nil
	z.off = 0
	z.allocated = 0
	z.numAllocs = 0
	z.standalone = 0
}

// Stats reports the zone's debug counters (supplemented feature, grounded
// on the original ZoneAllocator.h's high-water-mark tracking).
type Stats struct {
	BytesAllocated   int64
	HighWaterBytes   int64
	Allocations      int
	OversizedAllocs  int
	ChunksOutstanding int
}

func (z *Zone) Stats() Stats {
	return Stats{
		BytesAllocated:    z.allocated,
		HighWaterBytes:    z.highWater,
		Allocations:       z.numAllocs,
		OversizedAllocs:   z.standalone,
		ChunksOutstanding: len(z.chunks),
	}
}

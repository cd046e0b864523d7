package sendqueue

import lru "github.com/hashicorp/golang-lru/v2"

// dedupCacheSize bounds how many recent unique_index values a Dedup
// remembers per peer; well past the largest in-flight reliable backlog
// spec §4.3 ever expects, since retirement happens every tick.
const dedupCacheSize = 4096

// Dedup answers "has this reliable message's unique_index already been
// processed" (spec §4.3: "Skips reliable messages whose unique_index is
// ≤ the peer's last-received index"). It tracks both the monotone
// last-received index (the common case: in-order delivery) and a
// bounded LRU of seen indices below it, since UDP can still deliver an
// older duplicate after a newer message already advanced the watermark.
type Dedup struct {
	lastReceived uint32
	seen         *lru.Cache[uint32, struct{}]
}

// NewDedup returns a Dedup with no messages observed yet.
func NewDedup() *Dedup {
	c, err := lru.New[uint32, struct{}](dedupCacheSize)
	if err != nil {
		panic("sendqueue: lru.New with constant size must not fail: " + err.Error())
	}
	return &Dedup{seen: c}
}

// Observe reports whether uniqueIndex is a duplicate (already
// processed) and, if not, records it as seen.
func (d *Dedup) Observe(uniqueIndex uint32) (duplicate bool) {
	if uniqueIndex <= d.lastReceived {
		if _, ok := d.seen.Get(uniqueIndex); ok {
			return true
		}
	}
	if uniqueIndex > d.lastReceived {
		d.lastReceived = uniqueIndex
	}
	d.seen.Add(uniqueIndex, struct{}{})
	return false
}

// Package tile implements the per-(src,dst) staging regions shared by
// both exchange engines: local send tiles and the symmetric receive
// tile row, laid out as a P×P matrix.
package tile

import (
	"github.com/srirajpaul/bale/pkg/exchange/transport"
	"github.com/srirajpaul/bale/pkg/exchange/types"
)

// SendTiles holds this peer's P outgoing staging regions, one per
// destination, each B items of S bytes. Purely local memory: nothing
// else ever touches it until Exchange/Send ships it out.
type SendTiles struct {
	b, s int
	data [][]byte
	cnt  []int
}

// NewSendTiles allocates peerCount rows of b*s bytes.
func NewSendTiles(peerCount, b, s int) *SendTiles {
	t := &SendTiles{b: b, s: s, data: make([][]byte, peerCount), cnt: make([]int, peerCount)}
	for i := range t.data {
		t.data[i] = make([]byte, b*s)
	}
	return t
}

// Push copies item into dst's tile and advances its push cursor.
// Returns false without copying if the tile is already full.
func (t *SendTiles) Push(dst int, item types.Item) bool {
	if t.cnt[dst] >= t.b {
		return false
	}
	off := t.cnt[dst] * t.s
	copy(t.data[dst][off:off+t.s], item)
	t.cnt[dst]++
	return true
}

// Count returns push_cnt[dst], the number of items currently staged.
func (t *SendTiles) Count(dst int) int { return t.cnt[dst] }

// Bytes returns the staged prefix for dst, ready to be shipped.
func (t *SendTiles) Bytes(dst int) []byte { return t.data[dst][:t.cnt[dst]*t.s] }

// Clear zeros dst's push cursor after a successful shipment.
func (t *SendTiles) Clear(dst int) { t.cnt[dst] = 0 }

// Headroom returns B - push_cnt[dst].
func (t *SendTiles) Headroom(dst int) int { return t.b - t.cnt[dst] }

// MinHeadroom returns the minimum headroom across every destination.
func (t *SendTiles) MinHeadroom() int {
	min := t.b
	for d := range t.cnt {
		if h := t.b - t.cnt[d]; h < min {
			min = h
		}
	}
	return min
}

// Reset zeros every push cursor, for engine reuse.
func (t *SendTiles) Reset() {
	for d := range t.cnt {
		t.cnt[d] = 0
	}
}

// RecvTiles holds this peer's P inbound regions, backed by a
// transport.ByteRegion so remote peers can Put directly into it. Row
// src occupies [src*b*s, (src+1)*b*s) within this peer's own region
// row.
type RecvTiles struct {
	t      transport.Transport
	region *transport.ByteRegion
	b, s   int

	count  []int // items currently valid (unread + read) per source
	cursor []int // pop position per source

	hint       int // first_ne_rcv: smallest index not known empty
	lastPopSrc int // -1 when no pop is pending an Unpop
}

// NewRecvTiles wires a RecvTiles on top of an already-allocated
// region (allocated via t.AllocBytes(peerCount*b*s) by the caller, so
// every peer's region comes from the same collective call).
func NewRecvTiles(t transport.Transport, region *transport.ByteRegion, peerCount, b, s int) *RecvTiles {
	return &RecvTiles{
		t:          t,
		region:     region,
		b:          b,
		s:          s,
		count:      make([]int, peerCount),
		cursor:     make([]int, peerCount),
		lastPopSrc: -1,
	}
}

func (r *RecvTiles) offset(src int) int { return src * r.b * r.s }

// Region exposes the backing symmetric allocation, for engines that
// need to issue their own Put directly into it (e.g. an Exchange
// shipping a whole tile in one call).
func (r *RecvTiles) Region() *transport.ByteRegion { return r.region }

// Deliver records that n fresh items have landed in src's slot,
// replacing whatever was there (the source only ships once the prior
// tile has been fully drained and acknowledged).
func (r *RecvTiles) Deliver(src, n int) {
	r.count[src] = n
	r.cursor[src] = 0
	if src < r.hint {
		r.hint = src
	}
}

// Unread returns how many items remain to be popped from src.
func (r *RecvTiles) Unread(src int) int { return r.count[src] - r.cursor[src] }

// Empty reports whether every source's tile has been fully drained.
func (r *RecvTiles) Empty() bool {
	return !r.AnyUnread()
}

// AnyUnread reports whether any source's tile still has unread items.
func (r *RecvTiles) AnyUnread() bool {
	for src := range r.count {
		if r.Unread(src) > 0 {
			return true
		}
	}
	return false
}

func (r *RecvTiles) readItem(src, pos int) []byte {
	buf := make([]byte, r.s)
	r.t.Get(r.t.SelfID(), r.region, r.offset(src)+pos*r.s, buf)
	return buf
}

// Pop scans sources in increasing order starting at the hint and
// returns the next unread item found, advancing that source's cursor.
func (r *RecvTiles) Pop() (item []byte, from int, ok bool) {
	for r.hint < len(r.count) && r.Unread(r.hint) == 0 {
		r.hint++
	}
	for src := r.hint; src < len(r.count); src++ {
		if r.Unread(src) == 0 {
			continue
		}
		item = r.readItem(src, r.cursor[src])
		r.cursor[src]++
		r.lastPopSrc = src
		return item, src, true
	}
	return nil, 0, false
}

// PopFrom pops the next item from src specifically (the "thread"
// variant), ignoring every other source.
func (r *RecvTiles) PopFrom(src int) (item []byte, ok bool) {
	if r.Unread(src) == 0 {
		return nil, false
	}
	item = r.readItem(src, r.cursor[src])
	r.cursor[src]++
	r.lastPopSrc = src
	return item, true
}

// Pull is Pop without advancing the cursor: it hands back a view into
// the receive tile, not a copy, and leaves the item poppable again.
func (r *RecvTiles) Pull() (item []byte, from int, ok bool) {
	for src := r.hint; src < len(r.count); src++ {
		if r.Unread(src) == 0 {
			continue
		}
		return r.region.View(r.t.SelfID(), r.offset(src)+r.cursor[src]*r.s, r.s), src, true
	}
	return nil, 0, false
}

// PullFrom is Pull restricted to a single source.
func (r *RecvTiles) PullFrom(src int) (item []byte, ok bool) {
	if r.Unread(src) == 0 {
		return nil, false
	}
	return r.region.View(r.t.SelfID(), r.offset(src)+r.cursor[src]*r.s, r.s), true
}

// Unpop undoes the single most recent Pop/PopFrom. Calling it without
// a prior pop, or twice in a row, is a misuse the caller must not do;
// it reports false in that case rather than corrupting a cursor.
func (r *RecvTiles) Unpop() bool {
	if r.lastPopSrc < 0 {
		return false
	}
	r.cursor[r.lastPopSrc]--
	if r.lastPopSrc < r.hint {
		r.hint = r.lastPopSrc
	}
	r.lastPopSrc = -1
	return true
}

// Reset clears all cursors, counts, and the hint, for engine reuse.
// The underlying region allocation is left intact.
func (r *RecvTiles) Reset() {
	for src := range r.count {
		r.count[src] = 0
		r.cursor[src] = 0
	}
	r.hint = 0
	r.lastPopSrc = -1
}

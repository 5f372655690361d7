// Package async implements the barrier-free Async exchange engine:
// one-sided sends gated by a per-pair credit bit, a lock-free ring
// announcing arrivals, and an islast-driven termination count.
package async

import (
	"github.com/srirajpaul/bale/pkg/exchange"
	"github.com/srirajpaul/bale/pkg/exchange/tile"
	"github.com/srirajpaul/bale/pkg/exchange/transport"
	"github.com/srirajpaul/bale/pkg/exchange/types"
)

var _ exchange.Engine = (*Engine)(nil)

type pendingEntry struct {
	src   int
	count int
}

type overflowItem struct {
	item []byte
	src  int
}

// Engine is the Async exchange engine. Push, Send, Pop, and Pull never
// block; only Proceed(true) spins, and it does so while continuing to
// service this peer's own inbound so peers waiting on this peer's
// credit can make progress instead of deadlocking.
type Engine struct {
	cfg types.Config
	t   transport.Transport

	send *tile.SendTiles
	recv *tile.RecvTiles

	canSend  *transport.Int64Region
	numMsgs  *transport.Int64Region
	msgQueue *transport.Int64Region
	ringSize int
	ringMask int64

	numPopped int64
	pending   []pendingEntry
	activeSrc int

	numDoneSending int
	allDone        bool
	announcedDone  bool

	overflow []overflowItem

	pushed       int64
	popped       int64
	sent         int64
	bytesShipped int64
}

// Init is a collective call: every peer must call Init with the same
// B and S. It allocates the tile matrix, the credit array, the
// message ring, and the arrival counter, then barriers so every
// peer's own initial credit state is visible before any Send.
func Init(t transport.Transport, cfg types.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PeerCount != t.PeerCount() || cfg.Self != t.SelfID() {
		return nil, types.ErrInvalidPeer
	}
	p := t.PeerCount()
	ringSize := roundupPow2(2 * p)

	recvRegion, err := t.AllocBytes(p * cfg.B * cfg.S)
	if err != nil {
		return nil, types.ErrOutOfMemory
	}
	canSend, err := t.AllocInt64(p)
	if err != nil {
		return nil, types.ErrOutOfMemory
	}
	numMsgs, err := t.AllocInt64(1)
	if err != nil {
		return nil, types.ErrOutOfMemory
	}
	msgQueue, err := t.AllocInt64(ringSize)
	if err != nil {
		return nil, types.ErrOutOfMemory
	}

	e := &Engine{
		cfg:       cfg,
		t:         t,
		send:      tile.NewSendTiles(p, cfg.B, cfg.S),
		recv:      tile.NewRecvTiles(t, recvRegion, p, cfg.B, cfg.S),
		canSend:   canSend,
		numMsgs:   numMsgs,
		msgQueue:  msgQueue,
		ringSize:  ringSize,
		ringMask:  int64(ringSize - 1),
		activeSrc: -1,
	}
	for d := 0; d < p; d++ {
		e.checkFault(e.t.PutInt64(cfg.Self, e.canSend, d, 1))
	}
	e.t.Barrier()
	cfg.Logger.Debugf("async: init peer %d, P=%d B=%d S=%d ring=%d", cfg.Self, p, cfg.B, cfg.S, ringSize)
	return e, nil
}

// Push stages item for dst. If dst's tile is full it attempts a Send
// first; if that can't proceed (no credit), Push returns false and
// the caller must Pop before retrying.
func (e *Engine) Push(item types.Item, dst int) bool {
	if dst < 0 || dst >= e.t.PeerCount() {
		panic(types.ErrInvalidPeer)
	}
	if e.send.Count(dst) >= e.cfg.B {
		if !e.Send(dst, false) {
			return false
		}
	}
	if e.send.Push(dst, item) {
		e.pushed++
		return true
	}
	e.cfg.Logger.Debugf("async: push to peer %d rejected, no credit and tile full", dst)
	return false
}

// checkFault surfaces a non-nil transport error as fatal: the error
// taxonomy treats a failed put/get/atomic as unrecoverable, since the
// engine has no retry path for a transport that has stopped honoring
// its one-sided contract.
func (e *Engine) checkFault(err error) {
	if err != nil {
		e.cfg.Logger.Fatalf("%v: %v", types.ErrTransportFault, err)
	}
}

// Send ships whatever is staged for dst, if credit allows. It is the
// only place a tile crosses from this peer to dst.
func (e *Engine) Send(dst int, islast bool) bool {
	self := e.t.SelfID()
	credit, err := e.t.GetInt64(self, e.canSend, dst)
	e.checkFault(err)
	if credit == 0 {
		e.cfg.Logger.Debugf("async: send to peer %d blocked, no credit", dst)
		return false
	}

	n := e.send.Count(dst)
	if n > 0 {
		e.checkFault(e.t.Put(dst, e.recv.Region(), self*e.cfg.B*e.cfg.S, e.send.Bytes(dst)))
		e.bytesShipped += int64(n * e.cfg.S)
	}
	e.checkFault(e.t.PutInt64(self, e.canSend, dst, 0))

	prior, err := e.t.FetchAdd(dst, e.numMsgs, 0, 1)
	e.checkFault(err)
	slot := int(prior & e.ringMask)
	e.checkFault(e.t.PutInt64(dst, e.msgQueue, slot, pack(n, self, islast)))

	e.send.Clear(dst)
	e.sent++
	if islast {
		e.cfg.Logger.Infof("async: peer %d sent final shipment to peer %d (%d items)", self, dst, n)
	} else {
		e.cfg.Logger.Debugf("async: shipped %d items to peer %d", n, dst)
	}
	return true
}

// pollInbound observes ring slots claimed since the last poll,
// bookkeeps islast announcements, and enqueues each arrival for
// activation.
func (e *Engine) pollInbound() {
	self := e.t.SelfID()
	head, err := e.t.GetInt64(self, e.numMsgs, 0)
	e.checkFault(err)
	for e.numPopped < head {
		slot := int(e.numPopped & e.ringMask)
		word, err := e.t.GetInt64(self, e.msgQueue, slot)
		e.checkFault(err)
		count, sender, islast := unpack(word)
		if islast {
			e.numDoneSending++
			e.cfg.Logger.Infof("async: peer %d observed islast from peer %d (%d/%d done)", self, sender, e.numDoneSending, e.t.PeerCount())
			if e.numDoneSending == e.t.PeerCount() {
				e.allDone = true
			}
		}
		e.pending = append(e.pending, pendingEntry{src: sender, count: count})
		e.numPopped++
	}
}

// activateNext promotes the oldest queued arrival to the active tile,
// if none is active yet. An arrival carrying zero items has nothing to
// drain, so its credit is handed back at once and the next arrival is
// considered instead.
func (e *Engine) activateNext() {
	for e.activeSrc < 0 && len(e.pending) > 0 {
		next := e.pending[0]
		e.pending = e.pending[1:]
		if next.count == 0 {
			e.retire(next.src)
			continue
		}
		e.recv.Deliver(next.src, next.count)
		e.activeSrc = next.src
	}
}

// retire hands credit back to src once its tile is fully drained.
func (e *Engine) retire(src int) {
	e.checkFault(e.t.PutInt64(src, e.canSend, e.t.SelfID(), 1))
}

// Pop drains the currently active inbound tile, activating one first
// if none is active. Items popped internally while Proceed spins for
// credit are queued in an overflow buffer and handed out here first,
// so no item is ever dropped on the floor.
func (e *Engine) Pop(item []byte) (from int, ok bool) {
	if len(e.overflow) > 0 {
		o := e.overflow[0]
		e.overflow = e.overflow[1:]
		copy(item, o.item)
		e.popped++
		return o.src, true
	}

	e.pollInbound()
	e.activateNext()
	if e.activeSrc < 0 {
		return 0, false
	}
	data, found := e.recv.PopFrom(e.activeSrc)
	if !found {
		return 0, false
	}
	copy(item, data)
	from = e.activeSrc
	if e.recv.Unread(e.activeSrc) == 0 {
		e.retire(e.activeSrc)
		e.activeSrc = -1
		e.activateNext()
	}
	e.popped++
	return from, true
}

// Pull returns the item the next Pop would return, without consuming
// it: the head of the overflow queue if any, else the active tile's
// next item.
func (e *Engine) Pull() (item []byte, from int, ok bool) {
	if len(e.overflow) > 0 {
		o := e.overflow[0]
		return o.item, o.src, true
	}
	e.pollInbound()
	e.activateNext()
	if e.activeSrc < 0 {
		return nil, 0, false
	}
	data, found := e.recv.PullFrom(e.activeSrc)
	return data, e.activeSrc, found
}

// Unpop undoes the most recent Pop of real (non-overflow) data.
func (e *Engine) Unpop() bool { return e.recv.Unpop() }

// Unpull is Unpop's name under the pull-oriented half of the API; both
// operate on the same one-level undo state.
func (e *Engine) Unpull() bool { return e.recv.Unpop() }

// MinHeadroom returns the minimum across destinations of B -
// push_cnt[d], mirroring the Bulk engine's convenience accessor.
func (e *Engine) MinHeadroom() int { return e.send.MinHeadroom() }

// RingSize returns the message ring's length, the smallest power of
// two >= 2*PeerCount. Exposed so tests can check the ring invariant
// num_msgs - num_popped <= RingSize directly rather than guessing it.
func (e *Engine) RingSize() int { return e.ringSize }

// PendingMessages returns num_msgs (this peer's arrival counter) minus
// num_popped (the local tail), the number of ring slots claimed but
// not yet folded into pending/active tiles.
func (e *Engine) PendingMessages() int64 {
	head, err := e.t.GetInt64(e.t.SelfID(), e.numMsgs, 0)
	e.checkFault(err)
	return head - e.numPopped
}

// forceSend blocks until dst accepts an islast shipment, draining this
// peer's own inbound in between so peers waiting on our credit can
// make progress meanwhile. Anything popped during the spin is queued,
// never discarded.
func (e *Engine) forceSend(dst int) {
	for !e.Send(dst, true) {
		if popped, ok := e.popReal(); ok {
			e.overflow = append(e.overflow, popped)
		}
	}
}

// popReal is Pop's body without the overflow short-circuit, used by
// forceSend so its own draining doesn't loop back through the
// overflow queue it is filling.
func (e *Engine) popReal() (overflowItem, bool) {
	e.pollInbound()
	e.activateNext()
	if e.activeSrc < 0 {
		return overflowItem{}, false
	}
	data, found := e.recv.PopFrom(e.activeSrc)
	if !found {
		return overflowItem{}, false
	}
	item := make([]byte, len(data))
	copy(item, data)
	src := e.activeSrc
	if e.recv.Unread(e.activeSrc) == 0 {
		e.retire(e.activeSrc)
		e.activeSrc = -1
		e.activateNext()
	}
	return overflowItem{item: item, src: src}, true
}

// Proceed drives the termination protocol. Once donePushing is true
// and this peer has not yet broadcast its final shipments, it force-
// sends an islast=1 message to every peer (including itself, so the
// P=1 self-loopback case needs no special-casing). It returns false
// only once every peer's islast has been observed and no inbound tile
// is active or queued.
func (e *Engine) Proceed(donePushing bool) bool {
	e.pollInbound()
	e.activateNext()

	if donePushing && !e.announcedDone {
		p := e.t.PeerCount()
		for d := 0; d < p; d++ {
			e.forceSend(d)
		}
		e.announcedDone = true
		e.cfg.Logger.Infof("async: peer %d broadcast islast to all %d peers", e.t.SelfID(), p)
	}

	e.pollInbound()
	e.activateNext()

	if e.allDone && e.activeSrc < 0 && len(e.pending) == 0 && len(e.overflow) == 0 {
		e.cfg.Logger.Infof("async: peer %d converged, pushed=%d popped=%d sent=%d", e.t.SelfID(), e.pushed, e.popped, e.sent)
		return false
	}
	return true
}

// Stats reports cumulative local counters for diagnostics and tests.
type Stats struct {
	Pushed       int64
	Popped       int64
	Sent         int64
	BytesShipped int64
}

// Stats returns a snapshot of this engine's cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{Pushed: e.pushed, Popped: e.popped, Sent: e.sent, BytesShipped: e.bytesShipped}
}

// Reset returns the engine to its initial state for reuse: cursors,
// credit, the ring counters, and the termination state are all
// cleared, but the underlying symmetric allocations are kept.
func (e *Engine) Reset() {
	e.send.Reset()
	e.recv.Reset()
	self := e.t.SelfID()
	p := e.t.PeerCount()
	for d := 0; d < p; d++ {
		e.checkFault(e.t.PutInt64(self, e.canSend, d, 1))
	}
	e.checkFault(e.t.PutInt64(self, e.numMsgs, 0, 0))
	e.numPopped = 0
	e.pending = nil
	e.activeSrc = -1
	e.numDoneSending = 0
	e.allDone = false
	e.announcedDone = false
	e.overflow = nil
	e.pushed, e.popped, e.sent, e.bytesShipped = 0, 0, 0, 0
	e.t.Barrier()
}

// Clear releases this engine. The in-process transport has no
// symmetric memory to unmap; Clear exists so callers have a single
// teardown call regardless of transport backend.
func (e *Engine) Clear() {}

// Package bulk implements the barrier-synchronous Classic exchange
// engine: collective push/exchange/pop/proceed over a P×P tile matrix,
// with a wait_done array driving termination.
package bulk

import (
	"math/rand"

	"github.com/srirajpaul/bale/pkg/exchange"
	"github.com/srirajpaul/bale/pkg/exchange/tile"
	"github.com/srirajpaul/bale/pkg/exchange/transport"
	"github.com/srirajpaul/bale/pkg/exchange/types"
)

var _ exchange.Engine = (*Engine)(nil)

// Engine is the Bulk exchange engine. All methods are single-threaded
// and cooperative on this peer; the only blocking points are Exchange
// and Proceed, both of which end at the transport's collective
// barrier.
type Engine struct {
	cfg types.Config
	t   transport.Transport

	send *tile.SendTiles
	recv *tile.RecvTiles

	counts   *transport.Int64Region
	waitDone *transport.Int64Region

	notifyDone bool

	pushed       int64
	popped       int64
	bytesShipped int64

	// testRand, when set via WithSeed, replaces the transport's PRNG
	// stream for permutation(). Production code never sets it; it
	// exists so tests can assert on a specific delivery order without
	// threading determinism through the transport itself.
	testRand *rand.Rand
}

// WithSeed pins this engine's Exchange permutation to a seeded,
// reproducible sequence, for tests that need to assert on delivery
// order. Never call this outside tests: normal operation relies on
// each peer drawing from its own transport PRNG stream.
func (e *Engine) WithSeed(seed int64) *Engine {
	e.testRand = rand.New(rand.NewSource(seed))
	return e
}

// Init is a collective call: every peer must call Init with the same
// B and S. It allocates the send/receive tile matrix and the
// termination array.
func Init(t transport.Transport, cfg types.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PeerCount != t.PeerCount() || cfg.Self != t.SelfID() {
		return nil, types.ErrInvalidPeer
	}
	p := t.PeerCount()

	recvRegion, err := t.AllocBytes(p * cfg.B * cfg.S)
	if err != nil {
		return nil, types.ErrOutOfMemory
	}
	counts, err := t.AllocInt64(p)
	if err != nil {
		return nil, types.ErrOutOfMemory
	}
	waitDone, err := t.AllocInt64(p)
	if err != nil {
		return nil, types.ErrOutOfMemory
	}

	e := &Engine{
		cfg:      cfg,
		t:        t,
		send:     tile.NewSendTiles(p, cfg.B, cfg.S),
		recv:     tile.NewRecvTiles(t, recvRegion, p, cfg.B, cfg.S),
		counts:   counts,
		waitDone: waitDone,
	}
	cfg.Logger.Debugf("bulk: init peer %d, P=%d B=%d S=%d", cfg.Self, p, cfg.B, cfg.S)
	return e, nil
}

// Push stages item for dst. Never blocks: returns false once dst's
// tile is full, at which point the caller must Exchange to drain it.
func (e *Engine) Push(item types.Item, dst int) bool {
	if dst < 0 || dst >= e.t.PeerCount() {
		panic(types.ErrInvalidPeer)
	}
	ok := e.send.Push(dst, item)
	if ok {
		e.pushed++
	} else {
		e.cfg.Logger.Debugf("bulk: push to peer %d rejected, tile full (B=%d)", dst, e.cfg.B)
	}
	return ok
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

// permutation returns a fresh random ordering over [0, P), regenerated
// from this peer's transport PRNG stream every call. Peers are not
// expected or required to agree on a common order.
func (e *Engine) permutation() []int {
	p := e.t.PeerCount()
	order := make([]int, p)
	for i := range order {
		order[i] = i
	}
	for i := p - 1; i > 0; i-- {
		var j int
		if e.testRand != nil {
			j = e.testRand.Intn(i + 1)
		} else {
			j = int(e.t.RandInt64(int64(i + 1)))
		}
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Exchange ships every peer's entire send tile row to the receive
// tiles of every other peer, in permutation order, and blocks at the
// transport's barrier until every put in the system has completed.
// Exchange assumes the caller has already drained last round's
// receive tiles: a fresh delivery replaces whatever was left unread,
// matching the classic push/exchange/pop round-trip this engine is
// built for.
func (e *Engine) Exchange() {
	self := e.t.SelfID()
	e.cfg.Logger.Debugf("bulk: exchange begin, run=%s", e.cfg.RunID)
	for _, d := range e.permutation() {
		n := e.send.Count(d)
		if n > 0 {
			e.checkFault(e.t.Put(d, e.recvRegion(), self*e.cfg.B*e.cfg.S, e.send.Bytes(d)))
			e.bytesShipped += int64(n * e.cfg.S)
			e.cfg.Logger.Debugf("bulk: shipped %d items to peer %d", n, d)
		}
		e.checkFault(e.t.PutInt64(d, e.counts, self, int64(n)))
		e.send.Clear(d)
	}
	e.t.Barrier()

	p := e.t.PeerCount()
	for src := 0; src < p; src++ {
		n, err := e.t.GetInt64(self, e.counts, src)
		e.checkFault(err)
		e.recv.Deliver(src, int(n))
	}
}

func (e *Engine) recvRegion() *transport.ByteRegion { return e.recv.Region() }

// Pop returns the next unread item, scanning sources in increasing
// order from the advisory hint. Returns false once every receive tile
// is drained.
func (e *Engine) Pop(item []byte) (from int, ok bool) {
	data, src, found := e.recv.Pop()
	if !found {
		return 0, false
	}
	copy(item, data)
	e.popped++
	return src, true
}

// PopFrom pops the next item from src specifically.
func (e *Engine) PopFrom(item []byte, src int) bool {
	data, ok := e.recv.PopFrom(src)
	if !ok {
		return false
	}
	copy(item, data)
	e.popped++
	return true
}

// Unpop undoes the single most recent Pop/PopFrom.
func (e *Engine) Unpop() bool { return e.recv.Unpop() }

// Pull is Pop without consuming the item.
func (e *Engine) Pull() (item []byte, from int, ok bool) { return e.recv.Pull() }

// MinHeadroom returns the minimum across destinations of B -
// push_cnt[d].
func (e *Engine) MinHeadroom() int { return e.send.MinHeadroom() }

// Proceed drives the termination protocol. If doneCond is true and
// this peer has not yet announced, it writes 1 into wait_done[self]
// on every other peer, then waits at the transport barrier so every
// peer reads wait_done with the same announcements in place. It
// returns false only once every peer has announced and this peer's
// receive tiles are all empty; otherwise it triggers an Exchange so
// any drainable data reaches Pop and returns true.
func (e *Engine) Proceed(doneCond bool) bool {
	p := e.t.PeerCount()
	self := e.t.SelfID()

	if doneCond && !e.notifyDone {
		for k := 0; k < p; k++ {
			if k == self {
				continue
			}
			e.checkFault(e.t.PutInt64(k, e.waitDone, self, 1))
		}
		e.notifyDone = true
		e.cfg.Logger.Infof("bulk: peer %d announced done", self)
	}
	e.t.Barrier()

	allDone := e.notifyDone
	for k := 0; k < p && allDone; k++ {
		if k == self {
			continue
		}
		v, err := e.t.GetInt64(self, e.waitDone, k)
		e.checkFault(err)
		allDone = v == 1
	}

	if allDone && e.recv.Empty() {
		e.cfg.Logger.Infof("bulk: peer %d converged, pushed=%d popped=%d", self, e.pushed, e.popped)
		return false
	}

	e.Exchange()
	return true
}

// Stats reports cumulative local counters for diagnostics and tests.
type Stats struct {
	Pushed       int64
	Popped       int64
	BytesShipped int64
}

// Stats returns a snapshot of this engine's cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{Pushed: e.pushed, Popped: e.popped, BytesShipped: e.bytesShipped}
}

// Reset zeros cursors and the termination state for reuse. The
// underlying symmetric allocations are left intact.
func (e *Engine) Reset() {
	e.send.Reset()
	e.recv.Reset()
	e.notifyDone = false
	p := e.t.PeerCount()
	self := e.t.SelfID()
	for k := 0; k < p; k++ {
		e.checkFault(e.t.PutInt64(self, e.waitDone, k, 0))
	}
	e.pushed, e.popped, e.bytesShipped = 0, 0, 0
}

// Clear releases this engine. The in-process transport has no
// symmetric memory to unmap; Clear exists so callers have a single
// teardown call regardless of transport backend.
func (e *Engine) Clear() {}

package transport

import (
	"sync"
	"sync/atomic"
)

// ByteRegion is a symmetric allocation of bytesPerPeer bytes on every
// peer, addressable one-sidedly: Put(dst, ...) writes into the row
// dst owns, Get(src, ...) reads the row src owns. A mutex per row
// keeps the race detector quiet even though the exchange protocol's
// own credit/ack discipline already guarantees at most one writer is
// ever active against a row at a time.
type ByteRegion struct {
	rows [][]byte
	mu   []sync.Mutex
}

func newByteRegion(peerCount, bytesPerPeer int) *ByteRegion {
	r := &ByteRegion{
		rows: make([][]byte, peerCount),
		mu:   make([]sync.Mutex, peerCount),
	}
	for i := range r.rows {
		r.rows[i] = make([]byte, bytesPerPeer)
	}
	return r
}

func (r *ByteRegion) put(owner, offset int, local []byte) {
	r.mu[owner].Lock()
	defer r.mu[owner].Unlock()
	copy(r.rows[owner][offset:], local)
}

func (r *ByteRegion) get(owner, offset int, local []byte) {
	r.mu[owner].Lock()
	defer r.mu[owner].Unlock()
	copy(local, r.rows[owner][offset:offset+len(local)])
}

// View returns a slice of owner's row without copying or locking,
// for Pull's "pointer into the receive tile" semantics. Safe only
// because the credit/ack protocol above this layer guarantees the
// owner is the sole reader and no writer is active while it reads.
func (r *ByteRegion) View(owner, offset, n int) []byte {
	return r.rows[owner][offset : offset+n]
}

// Int64Region is AllocInt64's symmetric allocation: wordsPerPeer
// atomic 64-bit words on every peer's row.
type Int64Region struct {
	rows [][]atomic.Int64
}

func newInt64Region(peerCount, wordsPerPeer int) *Int64Region {
	r := &Int64Region{rows: make([][]atomic.Int64, peerCount)}
	for i := range r.rows {
		r.rows[i] = make([]atomic.Int64, wordsPerPeer)
	}
	return r
}

func (r *Int64Region) store(owner, index int, value int64) {
	r.rows[owner][index].Store(value)
}

func (r *Int64Region) load(owner, index int) int64 {
	return r.rows[owner][index].Load()
}

func (r *Int64Region) add(owner, index int, delta int64) int64 {
	return r.rows[owner][index].Add(delta) - delta
}

func (r *Int64Region) cas(owner, index int, expected, newVal int64) (int64, bool) {
	for {
		prior := r.rows[owner][index].Load()
		if prior != expected {
			return prior, false
		}
		if r.rows[owner][index].CompareAndSwap(expected, newVal) {
			return prior, true
		}
	}
}

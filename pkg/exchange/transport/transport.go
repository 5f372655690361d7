// Package transport defines the one-sided, shared-address-space
// transport both exchange engines are built on, and ships an
// in-process implementation that emulates it across goroutines
// standing in for peers.
package transport

// Transport is the capability both engines consume. A concrete
// implementation provides symmetric allocation, one-sided put/get of
// contiguous bytes, atomic fetch-add/CAS on 64-bit words at a remote
// address, a collective barrier, three collective reductions, a
// per-peer PRNG stream, and self/peer-count identity.
//
// The transport must guarantee that a Put followed by a FetchAdd at
// the same destination is observed in that order by the destination
// (data before announcement). The in-process implementation meets this
// because each Put and FetchAdd has completed when the call returns.
type Transport interface {
	// AllocBytes is a collective call: every peer passes the same
	// bytesPerPeer and all receive a handle to the same symmetric
	// region, sized bytesPerPeer per peer.
	AllocBytes(bytesPerPeer int) (*ByteRegion, error)

	// AllocInt64 is AllocBytes's counterpart for 64-bit atomic words.
	AllocInt64(wordsPerPeer int) (*Int64Region, error)

	// Put writes local into region's row owned by dst, starting at
	// offset. One-sided: the caller does not wait on dst's
	// cooperation beyond the write itself completing.
	Put(dst int, region *ByteRegion, offset int, local []byte) error

	// Get reads from region's row owned by src, starting at offset,
	// into local.
	Get(src int, region *ByteRegion, offset int, local []byte) error

	// PutInt64 stores value into region's row owned by dst at index.
	PutInt64(dst int, region *Int64Region, index int, value int64) error

	// GetInt64 loads region's row owned by src at index.
	GetInt64(src int, region *Int64Region, index int) (int64, error)

	// FetchAdd atomically adds delta to region's row owned by dst at
	// index, returning the value prior to the add.
	FetchAdd(dst int, region *Int64Region, index int, delta int64) (prior int64, err error)

	// CAS atomically compares-and-swaps region's row owned by dst at
	// index, returning the value observed and whether the swap took
	// place.
	CAS(dst int, region *Int64Region, index int, expected, newVal int64) (prior int64, swapped bool, err error)

	// Barrier is a collective fence: it does not return on any peer
	// until every peer has called it.
	Barrier()

	// ReduceAdd is a collective sum: every peer contributes v and all
	// receive the same total.
	ReduceAdd(v int64) int64

	// PrefixAdd is a collective exclusive prefix sum: peer k receives
	// the sum of v over peers [0, k).
	PrefixAdd(v int64) int64

	// ReduceMax is a collective maximum: every peer contributes v and
	// all receive the same maximum.
	ReduceMax(v int64) int64

	// RandInt64 draws from this peer's private PRNG stream, uniform
	// over [0, upper).
	RandInt64(upper int64) int64

	// PeerCount returns P.
	PeerCount() int

	// SelfID returns this peer's id in [0, P).
	SelfID() int
}

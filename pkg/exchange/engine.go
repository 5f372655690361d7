// Package exchange ties the Bulk and Async engines together behind a
// shared contract: both
// satisfy the same push/pop/pull/unpop/proceed/reset/clear surface,
// differing in how Exchange-the-collective-operation (Bulk only) and
// Send-the-one-sided-operation (Async only) fit in.
package exchange

import "github.com/srirajpaul/bale/pkg/exchange/types"

// Engine is the operation surface common to both exchange engines.
type Engine interface {
	// Push stages item for dst. Never blocks; returns false when the
	// item cannot be staged: for Bulk, once dst's tile is full; for
	// Async, when dst's tile is full and cannot be shipped for lack of
	// credit.
	Push(item types.Item, dst int) bool

	// Pop returns the next unread item and its source. Returns false
	// once every receive tile is drained.
	Pop(item []byte) (from int, ok bool)

	// Pull is Pop without consuming the item.
	Pull() (item []byte, from int, ok bool)

	// Unpop undoes the single most recent Pop.
	Unpop() bool

	// MinHeadroom returns the minimum across destinations of B -
	// push_cnt[d].
	MinHeadroom() int

	// Proceed advances the termination protocol. done signals this
	// peer has no more work to push. Returns false once every peer
	// has converged and this peer has nothing left to drain.
	Proceed(done bool) bool

	// Reset returns the engine to its initial state, keeping the
	// underlying symmetric allocations.
	Reset()

	// Clear releases the engine.
	Clear()
}

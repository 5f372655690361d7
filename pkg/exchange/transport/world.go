package transport

import "sync"

// gate runs create() exactly once per generation — whichever
// participant arrives first — and hands every participant in that
// generation the same value before releasing them together. It backs
// the collective allocation calls and the plain Barrier.
type gate[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	arrived int
	gen     uint64
	value   T
}

func newGate[T any](n int) *gate[T] {
	g := &gate[T]{n: n}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *gate[T]) rendezvous(create func() T) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	myGen := g.gen
	if g.arrived == 0 {
		g.value = create()
	}
	v := g.value
	g.arrived++
	if g.arrived == g.n {
		var zero T
		g.arrived = 0
		g.value = zero
		g.gen++
		g.cond.Broadcast()
	} else {
		for g.gen == myGen {
			g.cond.Wait()
		}
	}
	return v
}

// reduceGate is gate's counterpart for reductions: every participant
// contributes its own value and the combine function computes a
// per-participant result from the full contribution set. A two-phase
// arrive/depart count keeps the result slice alive until every
// participant has read its own entry before the next generation
// starts overwriting it.
type reduceGate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	values  []int64
	results []int64
	arrived int
	left    int
	ready   bool
}

func newReduceGate(n int) *reduceGate {
	rg := &reduceGate{n: n, values: make([]int64, n)}
	rg.cond = sync.NewCond(&rg.mu)
	return rg
}

func (rg *reduceGate) run(self int, value int64, combine func([]int64) []int64) int64 {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	for rg.ready {
		rg.cond.Wait()
	}
	rg.values[self] = value
	rg.arrived++
	if rg.arrived == rg.n {
		rg.results = combine(rg.values)
		rg.ready = true
		rg.cond.Broadcast()
	} else {
		for !rg.ready {
			rg.cond.Wait()
		}
	}
	result := rg.results[self]
	rg.left++
	if rg.left == rg.n {
		rg.arrived = 0
		rg.left = 0
		rg.ready = false
		rg.results = nil
		rg.cond.Broadcast()
	}
	return result
}

// World is the shared state backing every peer's in-process
// Transport handle: the symmetric regions, the barrier, and the three
// collective reductions. NewPeer returns a Transport bound to one peer
// id; all P handles must share the same World.
type World struct {
	peerCount  int
	barrier    *gate[struct{}]
	byteAlloc  *gate[*ByteRegion]
	int64Alloc *gate[*Int64Region]
	sumGate    *reduceGate
	prefixGate *reduceGate
	maxGate    *reduceGate
}

// NewWorld creates the shared state for peerCount peers.
func NewWorld(peerCount int) *World {
	return &World{
		peerCount:  peerCount,
		barrier:    newGate[struct{}](peerCount),
		byteAlloc:  newGate[*ByteRegion](peerCount),
		int64Alloc: newGate[*Int64Region](peerCount),
		sumGate:    newReduceGate(peerCount),
		prefixGate: newReduceGate(peerCount),
		maxGate:    newReduceGate(peerCount),
	}
}

// PeerCount returns P.
func (w *World) PeerCount() int { return w.peerCount }

func sumAll(values []int64) []int64 {
	var total int64
	for _, v := range values {
		total += v
	}
	out := make([]int64, len(values))
	for i := range out {
		out[i] = total
	}
	return out
}

func exclusivePrefix(values []int64) []int64 {
	out := make([]int64, len(values))
	var running int64
	for i, v := range values {
		out[i] = running
		running += v
	}
	return out
}

func maxAll(values []int64) []int64 {
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]int64, len(values))
	for i := range out {
		out[i] = max
	}
	return out
}

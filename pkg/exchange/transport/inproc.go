package transport

import "math/rand"

// inProc is the in-process Transport handle bound to one peer of a
// World. All one-sided operations are plain method calls against the
// shared region storage; the "one-sidedness" is enforced by protocol
// discipline above this layer (credit flags, FIFO cursors), not by
// this transport.
type inProc struct {
	world *World
	self  int
	rng   *rand.Rand
}

// NewPeer binds a Transport handle for peer self to world. seed seeds
// this peer's private PRNG stream; callers that want deterministic
// permutations in tests pass a fixed seed per peer.
func NewPeer(world *World, self int, seed int64) Transport {
	return &inProc{world: world, self: self, rng: rand.New(rand.NewSource(seed))}
}

func (p *inProc) AllocBytes(bytesPerPeer int) (*ByteRegion, error) {
	return p.world.byteAlloc.rendezvous(func() *ByteRegion {
		return newByteRegion(p.world.peerCount, bytesPerPeer)
	}), nil
}

func (p *inProc) AllocInt64(wordsPerPeer int) (*Int64Region, error) {
	return p.world.int64Alloc.rendezvous(func() *Int64Region {
		return newInt64Region(p.world.peerCount, wordsPerPeer)
	}), nil
}

func (p *inProc) Put(dst int, region *ByteRegion, offset int, local []byte) error {
	region.put(dst, offset, local)
	return nil
}

func (p *inProc) Get(src int, region *ByteRegion, offset int, local []byte) error {
	region.get(src, offset, local)
	return nil
}

func (p *inProc) PutInt64(dst int, region *Int64Region, index int, value int64) error {
	region.store(dst, index, value)
	return nil
}

func (p *inProc) GetInt64(src int, region *Int64Region, index int) (int64, error) {
	return region.load(src, index), nil
}

func (p *inProc) FetchAdd(dst int, region *Int64Region, index int, delta int64) (int64, error) {
	return region.add(dst, index, delta), nil
}

func (p *inProc) CAS(dst int, region *Int64Region, index int, expected, newVal int64) (int64, bool, error) {
	prior, swapped := region.cas(dst, index, expected, newVal)
	return prior, swapped, nil
}

func (p *inProc) Barrier() {
	p.world.barrier.rendezvous(func() struct{} { return struct{}{} })
}

func (p *inProc) ReduceAdd(v int64) int64 {
	return p.world.sumGate.run(p.self, v, sumAll)
}

func (p *inProc) PrefixAdd(v int64) int64 {
	return p.world.prefixGate.run(p.self, v, exclusivePrefix)
}

func (p *inProc) ReduceMax(v int64) int64 {
	return p.world.maxGate.run(p.self, v, maxAll)
}

func (p *inProc) RandInt64(upper int64) int64 {
	if upper <= 0 {
		return 0
	}
	return p.rng.Int63n(upper)
}

func (p *inProc) PeerCount() int { return p.world.peerCount }

func (p *inProc) SelfID() int { return p.self }

package tile

import (
	"bytes"
	"testing"

	"github.com/srirajpaul/bale/pkg/exchange/transport"
)

func newSingleRecvTiles(t *testing.T, peerCount, b, s int) (*RecvTiles, transport.Transport) {
	t.Helper()
	world := transport.NewWorld(1)
	p := transport.NewPeer(world, 0, 7)
	region, err := p.AllocBytes(peerCount * b * s)
	if err != nil {
		t.Fatalf("alloc failed: %v", err)
	}
	return NewRecvTiles(p, region, peerCount, b, s), p
}

func TestSendTiles_PushFillAndClear(t *testing.T) {
	st := NewSendTiles(2, 2, 4)
	if !st.Push(0, []byte("abcd")) {
		t.Fatalf("first push should succeed")
	}
	if !st.Push(0, []byte("efgh")) {
		t.Fatalf("second push should succeed")
	}
	if st.Push(0, []byte("ijkl")) {
		t.Fatalf("third push should fail, tile is full (B=2)")
	}
	if st.Headroom(0) != 0 {
		t.Fatalf("expected zero headroom, got %d", st.Headroom(0))
	}
	if st.Headroom(1) != 2 {
		t.Fatalf("expected full headroom on untouched dst, got %d", st.Headroom(1))
	}
	if st.MinHeadroom() != 0 {
		t.Fatalf("expected min headroom 0, got %d", st.MinHeadroom())
	}
	if !bytes.Equal(st.Bytes(0), []byte("abcdefgh")) {
		t.Fatalf("unexpected staged bytes: %q", st.Bytes(0))
	}
	st.Clear(0)
	if st.Count(0) != 0 {
		t.Fatalf("expected count 0 after clear, got %d", st.Count(0))
	}
	if st.Headroom(0) != 2 {
		t.Fatalf("expected full headroom after clear, got %d", st.Headroom(0))
	}
}

func TestRecvTiles_DeliverAndPopInOrder(t *testing.T) {
	rt, p := newSingleRecvTiles(t, 3, 2, 4)
	p.Put(0, rt.Region(), rt.offset(1), []byte("item0001"))
	rt.Deliver(1, 2)

	item, src, ok := rt.Pop()
	if !ok || src != 1 || !bytes.Equal(item, []byte("item")) {
		t.Fatalf("unexpected first pop: item=%q src=%d ok=%v", item, src, ok)
	}
	item, src, ok = rt.Pop()
	if !ok || src != 1 || !bytes.Equal(item, []byte("0001")) {
		t.Fatalf("unexpected second pop: item=%q src=%d ok=%v", item, src, ok)
	}
	if _, _, ok = rt.Pop(); ok {
		t.Fatalf("expected no more items")
	}
	if !rt.Empty() {
		t.Fatalf("expected tiles empty after full drain")
	}
}

func TestRecvTiles_PullDoesNotConsume(t *testing.T) {
	rt, p := newSingleRecvTiles(t, 2, 1, 4)
	p.Put(0, rt.Region(), rt.offset(0), []byte("hello"))
	rt.Deliver(0, 1)

	item, src, ok := rt.Pull()
	if !ok || src != 0 || !bytes.Equal(item, []byte("hell")) {
		t.Fatalf("unexpected pull: item=%q src=%d ok=%v", item, src, ok)
	}
	if rt.Unread(0) != 1 {
		t.Fatalf("pull must not consume, expected unread 1, got %d", rt.Unread(0))
	}
	_, _, ok = rt.Pop()
	if !ok {
		t.Fatalf("expected the pulled item still poppable")
	}
}

func TestRecvTiles_UnpopRestoresCursor(t *testing.T) {
	rt, p := newSingleRecvTiles(t, 1, 2, 2)
	p.Put(0, rt.Region(), rt.offset(0), []byte("abcd"))
	rt.Deliver(0, 2)

	if _, _, ok := rt.Pop(); !ok {
		t.Fatalf("expected first pop to succeed")
	}
	if rt.Unread(0) != 1 {
		t.Fatalf("expected unread 1 after one pop, got %d", rt.Unread(0))
	}
	if !rt.Unpop() {
		t.Fatalf("unpop should succeed immediately after a pop")
	}
	if rt.Unread(0) != 2 {
		t.Fatalf("expected unread restored to 2, got %d", rt.Unread(0))
	}
	if rt.Unpop() {
		t.Fatalf("a second consecutive unpop must fail")
	}
}

func TestRecvTiles_ResetClearsState(t *testing.T) {
	rt, p := newSingleRecvTiles(t, 1, 1, 2)
	p.Put(0, rt.Region(), rt.offset(0), []byte("hi"))
	rt.Deliver(0, 1)
	rt.Pop()
	rt.Reset()
	if !rt.Empty() {
		t.Fatalf("expected empty after reset")
	}
	if rt.Unread(0) != 0 {
		t.Fatalf("expected unread 0 after reset, got %d", rt.Unread(0))
	}
}

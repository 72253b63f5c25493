package buffer

import "testing"

func TestWriteFrontAfterWriteBack(t *testing.T) {
	b := New(32)
	b.WriteBack([]byte("hello"))
	if !b.WriteFront([]byte{0, 5}) {
		t.Fatal("expected write_front to succeed within reserve")
	}
	if got := string(b.Data()); got != "\x00\x05hello" {
		t.Fatalf("unexpected data: %q", got)
	}
}

func TestWriteFrontExhaustsReserve(t *testing.T) {
	b := NewWithReserve(8, 2)
	if !b.WriteFront([]byte{1, 2}) {
		t.Fatal("first write_front should fit exactly")
	}
	if b.WriteFront([]byte{3}) {
		t.Fatal("expected write_front to fail once reserve is exhausted")
	}
}

func TestRevertRollsBackTail(t *testing.T) {
	b := New(16)
	b.WriteBack([]byte("abcdef"))
	b.Revert(3)
	if got := string(b.Data()); got != "abc" {
		t.Fatalf("unexpected data after revert: %q", got)
	}
}

func TestSeekAndConsume(t *testing.T) {
	b := New(16)
	b.WriteBack([]byte("0123456789"))
	if pos := b.Seek(3, OriginStart); pos != 3 {
		t.Fatalf("seek start: got %d", pos)
	}
	b.Consume(2)
	if pos := b.Seek(0, OriginCurrent); pos != 5 {
		t.Fatalf("seek current after consume: got %d", pos)
	}
}

func TestFlags(t *testing.T) {
	b := New(4)
	if b.HasFlag(FlagBroadcast) {
		t.Fatal("flag should start clear")
	}
	b.SetFlag(FlagBroadcast, true)
	if !b.HasFlag(FlagBroadcast) {
		t.Fatal("flag should be set")
	}
	b.SetFlag(FlagBroadcast, false)
	if b.HasFlag(FlagBroadcast) {
		t.Fatal("flag should be cleared")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	b := New(8)
	b.WriteBack([]byte("abc"))
	b.SetFlag(FlagClose, true)
	c := b.Clone()
	c.WriteBack([]byte("d"))
	if string(b.Data()) == string(c.Data()) {
		t.Fatal("clone should be independent of source")
	}
	if !c.HasFlag(FlagClose) {
		t.Fatal("clone should carry flags")
	}
}

func TestGrowPreservesData(t *testing.T) {
	b := NewWithReserve(2, 0)
	b.WriteBack([]byte("ab"))
	b.WriteBack([]byte("cdefgh"))
	if got := string(b.Data()); got != "abcdefgh" {
		t.Fatalf("unexpected data after grow: %q", got)
	}
}

func TestPoolRoundTrip(t *testing.T) {
	p := NewPool(64)
	b := p.Get()
	b.WriteBack([]byte("x"))
	p.Put(b)
	b2 := p.Get()
	if b2.Size() != 0 {
		t.Fatal("pooled buffer should be cleared on Get")
	}
}

package netloop

import (
	"bytes"
	"testing"
)

func TestByteBufferPutGetRoundTrip(t *testing.T) {
	b := NewByteBuffer(16)
	src := []byte("hello")
	b.Put(src)
	b.Flip()

	if b.Remaining() != len(src) {
		t.Fatalf("Remaining: got %d, want %d", b.Remaining(), len(src))
	}

	dst := make([]byte, len(src))
	n := b.Get(dst)
	if n != len(src) {
		t.Fatalf("Get: got %d, want %d", n, len(src))
	}
	if !bytes.Equal(dst, src) {
		t.Fatalf("Get: got %q, want %q", dst, src)
	}
	if b.Remaining() != 0 {
		t.Fatalf("Remaining after full read: got %d, want 0", b.Remaining())
	}
}

func TestByteBufferFlipLaw(t *testing.T) {
	b := NewByteBuffer(8)
	b.Put([]byte("abcd"))
	if b.Position() != 4 {
		t.Fatalf("Position before flip: got %d, want 4", b.Position())
	}
	b.Flip()
	if b.Position() != 0 {
		t.Fatalf("Position after flip: got %d, want 0", b.Position())
	}
	if b.Limit() != 4 {
		t.Fatalf("Limit after flip: got %d, want 4", b.Limit())
	}
}

func TestByteBufferClearResetsToWriteMode(t *testing.T) {
	b := NewByteBuffer(8)
	b.Put([]byte("ab"))
	b.Flip()
	b.Clear()
	if b.Position() != 0 || b.Limit() != b.Capacity() {
		t.Fatalf("Clear: position=%d limit=%d, want 0/%d", b.Position(), b.Limit(), b.Capacity())
	}
}

func TestByteBufferPutOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on overflow")
		}
	}()
	b := NewByteBuffer(2)
	b.Put([]byte("abc"))
}

func TestByteBufferCloneIsIndependent(t *testing.T) {
	b := NewByteBuffer(8)
	b.Put([]byte("xy"))
	b.Flip()
	clone := b.Clone()

	dst := make([]byte, 2)
	clone.Get(dst)
	if !bytes.Equal(dst, []byte("xy")) {
		t.Fatalf("clone contents: got %q", dst)
	}
	if b.Position() != 0 {
		t.Fatalf("original buffer mutated by reading clone: position=%d", b.Position())
	}
}

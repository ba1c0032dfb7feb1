package netloop

import (
	"bytes"
	"testing"
)

func TestCircularBufferRoundTrip(t *testing.T) {
	b := NewCircularBuffer(64)
	src := []byte("the quick brown fox")
	b.Put(src)

	if b.Size() != len(src) {
		t.Fatalf("Size: got %d, want %d", b.Size(), len(src))
	}

	dst := make([]byte, len(src))
	n := b.Get(dst)
	if n != len(src) || !bytes.Equal(dst, src) {
		t.Fatalf("Get: got %q (%d), want %q", dst, n, src)
	}
	if !b.Empty() {
		t.Fatalf("buffer should be empty after draining everything written")
	}
}

func TestCircularBufferCapacityIsPowerOfTwo(t *testing.T) {
	for _, want := range []struct{ in, out int }{
		{0, circularBufferMinCapacity},
		{1, circularBufferMinCapacity},
		{63, circularBufferMinCapacity},
		{65, 128},
		{129, 256},
	} {
		b := NewCircularBuffer(want.in)
		if got := b.Capacity(); got != want.out {
			t.Fatalf("NewCircularBuffer(%d).Capacity() = %d, want %d", want.in, got, want.out)
		}
	}
}

func TestCircularBufferWrapAround(t *testing.T) {
	b := NewCircularBuffer(circularBufferMinCapacity)
	chunk := bytes.Repeat([]byte{0xAB}, circularBufferMinCapacity/2)

	for i := 0; i < 20; i++ {
		b.Put(chunk)
		got := make([]byte, len(chunk))
		n := b.Get(got)
		if n != len(chunk) || !bytes.Equal(got, chunk) {
			t.Fatalf("iteration %d: Get returned %d bytes, wanted exact wrap-around round trip", i, n)
		}
	}
	if b.Capacity() != circularBufferMinCapacity {
		t.Fatalf("capacity grew unexpectedly to %d from repeated put/get within capacity", b.Capacity())
	}
}

func TestCircularBufferGrowsOnOverflow(t *testing.T) {
	b := NewCircularBuffer(circularBufferMinCapacity)
	big := bytes.Repeat([]byte{1}, circularBufferMinCapacity*3)
	b.Put(big)

	if b.Capacity() <= circularBufferMinCapacity {
		t.Fatalf("expected capacity to grow past %d, got %d", circularBufferMinCapacity, b.Capacity())
	}
	if b.Size() != len(big) {
		t.Fatalf("Size after grow: got %d, want %d", b.Size(), len(big))
	}

	dst := make([]byte, len(big))
	b.Get(dst)
	if !bytes.Equal(dst, big) {
		t.Fatal("contents corrupted by grow/relinearise")
	}
}

func TestCircularBufferDiscard(t *testing.T) {
	b := NewCircularBuffer(64)
	b.Put([]byte("0123456789"))
	b.Discard(4)
	if b.Size() != 6 {
		t.Fatalf("Size after Discard: got %d, want 6", b.Size())
	}
	dst := make([]byte, 6)
	b.Get(dst)
	if !bytes.Equal(dst, []byte("456789")) {
		t.Fatalf("Discard did not drop the correct prefix: got %q", dst)
	}
}

func TestCircularBufferSegmentsAtMostTwo(t *testing.T) {
	b := NewCircularBuffer(circularBufferMinCapacity)
	half := circularBufferMinCapacity / 2
	b.Put(bytes.Repeat([]byte{1}, half))
	dst := make([]byte, half)
	b.Get(dst)
	b.Put(bytes.Repeat([]byte{2}, half))
	b.Put(bytes.Repeat([]byte{3}, half/2))

	head, wrap := b.segments()
	if head == nil {
		t.Fatal("segments() returned no head segment for a non-empty buffer")
	}
	if wrap != nil && len(head)+len(wrap) != b.Size() {
		t.Fatalf("segments() total length %d != Size() %d", len(head)+len(wrap), b.Size())
	}
}

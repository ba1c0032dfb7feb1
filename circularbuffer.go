package netloop

import (
	"golang.org/x/sys/unix"
)

const circularBufferMinCapacity = 64

// CircularBuffer is a ring buffer with power-of-two capacity that grows by
// doubling. Head h and tail t are free-running uint64 counters; stored
// bytes = t - h (wrapping subtraction); index into storage = i & (C-1).
// Invariant: t - h <= C always holds, because Put grows the backing array
// before it would be violated.
type CircularBuffer struct {
	buf  []byte
	mask uint64
	head uint64
	tail uint64
}

// NewCircularBuffer allocates a CircularBuffer whose capacity is the next
// power of two >= initialCapacity (minimum circularBufferMinCapacity).
func NewCircularBuffer(initialCapacity int) *CircularBuffer {
	cap := nextPowerOfTwo(initialCapacity)
	if cap < circularBufferMinCapacity {
		cap = circularBufferMinCapacity
	}
	return &CircularBuffer{
		buf:  make([]byte, cap),
		mask: uint64(cap - 1),
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the current backing-array size, always a power of two.
func (b *CircularBuffer) Capacity() int {
	return len(b.buf)
}

// Size returns the number of stored bytes (t - h).
func (b *CircularBuffer) Size() int {
	return int(b.tail - b.head)
}

// Empty reports whether h == t.
func (b *CircularBuffer) Empty() bool {
	return b.head == b.tail
}

// Readable is an alias for Size, named to match the reader-side vocabulary
// used by the rest of the component design.
func (b *CircularBuffer) Readable() int {
	return b.Size()
}

// Writable returns how many bytes can be appended before the buffer would
// need to grow.
func (b *CircularBuffer) Writable() int {
	return len(b.buf) - b.Size()
}

// grow doubles capacity until n additional bytes fit, preserving contents
// and re-linearising them (head moves to 0 in the new backing array).
func (b *CircularBuffer) grow(n int) {
	needed := b.Size() + n
	newCap := len(b.buf)
	for newCap < needed {
		newCap <<= 1
	}
	if newCap == len(b.buf) {
		return
	}
	relinearised := make([]byte, newCap)
	size := b.Size()
	for i := 0; i < size; i++ {
		relinearised[i] = b.buf[(b.head+uint64(i))&b.mask]
	}
	b.buf = relinearised
	b.mask = uint64(newCap - 1)
	b.head = 0
	b.tail = uint64(size)
}

// Put appends n bytes from src, growing capacity by repeated doubling
// first if t - h + n would exceed the current capacity.
func (b *CircularBuffer) Put(src []byte) {
	n := len(src)
	if n == 0 {
		return
	}
	if b.Size()+n > len(b.buf) {
		b.grow(n)
	}
	for i := 0; i < n; i++ {
		b.buf[(b.tail+uint64(i))&b.mask] = src[i]
	}
	b.tail += uint64(n)
}

// Get copies min(len(dst), Size()) bytes into dst in FIFO order and
// advances head, returning the number of bytes copied.
func (b *CircularBuffer) Get(dst []byte) int {
	n := len(dst)
	size := b.Size()
	if n > size {
		n = size
	}
	for i := 0; i < n; i++ {
		dst[i] = b.buf[(b.head+uint64(i))&b.mask]
	}
	b.head += uint64(n)
	return n
}

// Peek behaves like Get but does not advance head.
func (b *CircularBuffer) Peek(dst []byte) int {
	n := len(dst)
	size := b.Size()
	if n > size {
		n = size
	}
	for i := 0; i < n; i++ {
		dst[i] = b.buf[(b.head+uint64(i))&b.mask]
	}
	return n
}

// Discard advances head by n bytes (capped at Size()) without copying,
// used after WriteToFD reports a successful partial write.
func (b *CircularBuffer) Discard(n int) {
	size := b.Size()
	if n > size {
		n = size
	}
	b.head += uint64(n)
}

// segments returns the at-most-two contiguous byte slices that currently
// hold the occupied region, in order: a head-segment running to either the
// tail or the end of the backing array, and — only if the region wraps — a
// wrap-segment starting at index 0.
func (b *CircularBuffer) segments() (head, wrap []byte) {
	size := b.Size()
	if size == 0 {
		return nil, nil
	}
	start := int(b.head & b.mask)
	end := start + size
	if end <= len(b.buf) {
		return b.buf[start:end], nil
	}
	return b.buf[start:], b.buf[:end-len(b.buf)]
}

// WriteToFD emits the occupied region directly to fd via scatter I/O (up
// to two iovecs: the head segment and, if the region wraps, the wrap
// segment), and advances head by however much was actually written.
//
// Returns the number of bytes written. A writable fd that returns EAGAIN
// is reported as 0-written, not-closed (err == nil, n == 0, buffer
// untouched) so the caller keeps writable interest enabled and retries on
// the next readiness event. Any other error is fatal and is returned as a
// negative write signal to the caller via a non-nil error.
func (b *CircularBuffer) WriteToFD(fd int, _ Timestamp) (int, error) {
	head, wrap := b.segments()
	if head == nil {
		return 0, nil
	}
	iovs := [][]byte{head}
	if wrap != nil {
		iovs = append(iovs, wrap)
	}
	n, err := unix.Writev(fd, iovs)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		return -1, err
	}
	b.Discard(n)
	return n, nil
}

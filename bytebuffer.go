package netloop

// ByteBuffer is a linear read/write window over a fixed allocation: a
// capacity C, a position cursor p (next byte to write or read), and a
// limit l, with the invariant 0 <= p <= l <= C.
//
// Two modes: write mode (l == C, p advances on Put) and read mode (l is
// set to the last write position by Flip, p advances on Get). It is a
// value type in spirit — Clone deep-copies the backing array — but Go
// passes it by pointer for mutation, same as every other stateful type in
// this package.
type ByteBuffer struct {
	data     []byte
	position int
	limit    int
}

// NewByteBuffer allocates a ByteBuffer of capacity cap, ready for writing.
func NewByteBuffer(cap int) *ByteBuffer {
	return &ByteBuffer{
		data:     make([]byte, cap),
		position: 0,
		limit:    cap,
	}
}

// Data returns the backing array, for callers that want to read/write
// directly into it (e.g. a syscall.Read target).
func (b *ByteBuffer) Data() []byte {
	return b.data
}

// Capacity returns the fixed allocation size C.
func (b *ByteBuffer) Capacity() int {
	return len(b.data)
}

// Position returns the current cursor p.
func (b *ByteBuffer) Position() int {
	return b.position
}

// SetPosition moves the cursor explicitly; used after a raw read/write
// into Data() to record how many bytes were actually transferred.
func (b *ByteBuffer) SetPosition(p int) {
	b.position = p
}

// Limit returns l.
func (b *ByteBuffer) Limit() int {
	return b.limit
}

// Remaining returns l - p: bytes available to get (read mode) or put
// (write mode, counting from the current position to the limit).
func (b *ByteBuffer) Remaining() int {
	return b.limit - b.position
}

// Clear resets the buffer to write mode: position 0, limit C.
func (b *ByteBuffer) Clear() {
	b.position = 0
	b.limit = len(b.data)
}

// Flip switches from write mode to read mode: limit becomes the current
// position (the last byte written), and position resets to 0.
func (b *ByteBuffer) Flip() {
	b.limit = b.position
	b.position = 0
}

// Put copies src into the buffer starting at the current position and
// advances position by len(src). Panics if src does not fit before limit,
// same fail-fast contract as the rest of this package's invariants.
func (b *ByteBuffer) Put(src []byte) {
	n := copy(b.data[b.position:b.limit], src)
	if n != len(src) {
		panic("netloop: ByteBuffer.Put overflow")
	}
	b.position += n
}

// Get copies up to len(dst) bytes from the current position into dst,
// returning the number of bytes copied, and advances position.
func (b *ByteBuffer) Get(dst []byte) int {
	n := copy(dst, b.data[b.position:b.limit])
	b.position += n
	return n
}

// Clone returns a new ByteBuffer of the same capacity holding a deep copy
// of the whole backing array, with position and limit preserved, so the
// copy can be read or written independently of the original.
func (b *ByteBuffer) Clone() *ByteBuffer {
	dup := make([]byte, len(b.data))
	copy(dup, b.data)
	return &ByteBuffer{data: dup, position: b.position, limit: b.limit}
}

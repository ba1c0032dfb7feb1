package netloop

import (
	"fmt"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// ConnState is a Connection's position in its state machine: New ->
// Receiving -> {Disconnecting -> Closed | Closed}. Disconnecting is only
// visited on a graceful Close with unsent egress data still queued;
// everything else — peer reset, ForceClose, idle expiry, a read or write
// error — goes straight to Closed.
type ConnState int

const (
	StateNew ConnState = iota
	StateReceiving
	StateDisconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReceiving:
		return "receiving"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection wraps one established TCP socket: its Channel, a lazily
// allocated egress CircularBuffer, and the four callbacks an owner
// installs to observe it. Write, Close and ForceClose may be called from
// any goroutine: they detect the cross-goroutine case themselves and post.
// Start and the callbacks run on the owning EventLoop's goroutine.
type Connection struct {
	loop *EventLoop
	fd   int
	ch   *Channel

	local ConnectionInfo
	peer  ConnectionInfo

	state ConnState

	egress *CircularBuffer

	touchGen atomic.Uint64
	closed   atomic.Bool

	onEstablished func(*Connection)
	onMessage     func(*Connection, *ByteBuffer, Timestamp)
	onClosed      func(*Connection)
	onError       func(*Connection, error)

	highWaterMark int

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	lastActivity atomic.Int64
}

// BytesRead returns the cumulative number of bytes received.
func (c *Connection) BytesRead() uint64 { return c.bytesRead.Load() }

// BytesWritten returns the cumulative number of bytes successfully
// written to the fd (queued-but-unsent egress data is not counted).
func (c *Connection) BytesWritten() uint64 { return c.bytesWritten.Load() }

// LastActivity returns the Timestamp of the most recent read or write.
func (c *Connection) LastActivity() Timestamp { return Timestamp(c.lastActivity.Load()) }

// ConnectionInfo names one end of a Connection.
type ConnectionInfo struct {
	Addr InetSocketAddress
}

const defaultHighWaterMark = 64 << 20 // 64 MiB of queued egress before OnError fires

// NewConnection wraps an already-accepted or already-connected fd. The
// caller must still call Start to enable reading and fire onEstablished.
func NewConnection(loop *EventLoop, fd int, local, peer InetSocketAddress) *Connection {
	c := &Connection{
		loop:          loop,
		fd:            fd,
		local:         ConnectionInfo{Addr: local},
		peer:          ConnectionInfo{Addr: peer},
		state:         StateNew,
		highWaterMark: defaultHighWaterMark,
	}
	c.ch = NewChannel(loop.Selector(), fd)
	c.ch.SetErrorCallback(c.handleError0)
	c.ch.SetWritingCallback(c.handleWrite)
	return c
}

// LocalAddr returns the connection's local endpoint.
func (c *Connection) LocalAddr() InetSocketAddress { return c.local.Addr }

// PeerAddr returns the connection's remote endpoint.
func (c *Connection) PeerAddr() InetSocketAddress { return c.peer.Addr }

// Fd returns the connection's underlying file descriptor.
func (c *Connection) Fd() int { return c.fd }

// State returns the connection's current state.
func (c *Connection) State() ConnState { return c.state }

// SetCallbacks installs the four observer callbacks. Call before Start.
func (c *Connection) SetCallbacks(
	onEstablished func(*Connection),
	onMessage func(*Connection, *ByteBuffer, Timestamp),
	onClosed func(*Connection),
	onError func(*Connection, error),
) {
	c.onEstablished = onEstablished
	c.onMessage = onMessage
	c.onClosed = onClosed
	c.onError = onError
}

// Start transitions New -> Receiving, enables read notifications, and
// fires onEstablished. Must be called from the owning loop's goroutine.
func (c *Connection) Start() {
	c.loop.AssertInLoopThread()
	if c.state != StateNew {
		return
	}
	c.state = StateReceiving
	c.ch.EnableReading(c.handleRead)
	if c.onEstablished != nil {
		c.onEstablished(c)
	}
}

func (c *Connection) handleRead(ts Timestamp) {
	if c.state == StateClosed {
		return
	}
	buf := c.loop.AllocateReceiveBuffer(0)
	n, err := unix.Read(c.fd, buf.Data())
	switch {
	case n > 0:
		c.bytesRead.Add(uint64(n))
		c.lastActivity.Store(int64(ts))
		buf.SetPosition(n)
		buf.Flip()
		if c.onMessage != nil {
			c.onMessage(c, buf, ts)
		}
	case n == 0:
		c.handleClose()
	default:
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return
		}
		c.handleError(err)
	}
}

// Write enqueues data for the connection. If called from the owning
// loop's goroutine the data is queued immediately; otherwise it is copied
// and posted to run on that goroutine, since the egress CircularBuffer
// and Channel interest bits are not safe to touch from any other
// goroutine.
func (c *Connection) Write(data []byte) {
	if c.loop.IsInLoopThread() {
		c.writeInLoop(data)
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.loop.Post(func() { c.writeInLoop(cp) })
}

func (c *Connection) writeInLoop(data []byte) {
	if c.state == StateClosed || c.state == StateDisconnecting {
		return
	}
	if len(data) == 0 {
		return
	}

	if c.egress == nil || c.egress.Empty() {
		if !c.ch.IsWriting() {
			n, err := unix.Write(c.fd, data)
			if err != nil {
				if err != unix.EAGAIN && err != unix.EWOULDBLOCK && err != unix.EINTR {
					c.handleError(err)
					return
				}
				n = 0
			}
			if n > 0 {
				c.bytesWritten.Add(uint64(n))
				c.lastActivity.Store(int64(Now()))
			}
			if n == len(data) {
				return
			}
			data = data[n:]
		}
	}

	if c.egress == nil {
		c.egress = NewCircularBuffer(len(data))
	}
	c.egress.Put(data)
	if c.egress.Size() >= c.highWaterMark && c.onError != nil {
		c.onError(c, fmt.Errorf("netloop: egress backlog exceeds high-water mark on fd %d", c.fd))
	}
	if !c.ch.IsWriting() {
		c.ch.EnableWriting()
	}
}

// handleWrite drains queued egress data when the fd becomes writable. A
// writable event with nothing queued is treated as a no-op, not a fault:
// write interest is dropped and the call returns, so egress is never
// assumed to be allocated or populated on entry.
func (c *Connection) handleWrite(ts Timestamp) {
	if c.state == StateClosed {
		return
	}
	if !c.ch.IsWriting() {
		return
	}
	if c.egress == nil || c.egress.Empty() {
		c.ch.DisableWriting()
		return
	}
	n, err := c.egress.WriteToFD(c.fd, ts)
	if n < 0 {
		c.handleError(err)
		return
	}
	if n > 0 {
		c.bytesWritten.Add(uint64(n))
		c.lastActivity.Store(int64(ts))
	}
	if c.egress.Empty() {
		c.ch.DisableWriting()
		if c.state == StateDisconnecting {
			c.shutdownWrite()
			c.teardown()
		}
	}
}

// Close begins a graceful shutdown: if all egress data has already
// drained, teardown happens immediately; otherwise the connection moves
// to Disconnecting and teardown completes once handleWrite drains the
// rest.
func (c *Connection) Close() {
	if c.loop.IsInLoopThread() {
		c.closeInLoop()
		return
	}
	c.loop.Post(c.closeInLoop)
}

func (c *Connection) closeInLoop() {
	if c.state == StateClosed || c.state == StateDisconnecting {
		return
	}
	if c.egress != nil && !c.egress.Empty() {
		c.state = StateDisconnecting
		return
	}
	c.shutdownWrite()
	c.teardown()
}

func (c *Connection) shutdownWrite() {
	_ = unix.Shutdown(c.fd, unix.SHUT_WR)
}

// ForceClose tears the connection down immediately regardless of queued
// egress data. Safe to call from any goroutine; safe to call more than
// once or concurrently with a read-error or peer-close teardown racing
// it — teardown itself is the single at-most-once gate.
func (c *Connection) ForceClose() {
	if c.loop.IsInLoopThread() {
		c.teardown()
		return
	}
	c.loop.Post(c.teardown)
}

// handleClose is the graceful peer-FIN path: a zero-byte read means no more
// data is coming, so reading is disabled and the connection follows the same
// route as a local Close, moving to Disconnecting if egress data is still
// queued rather than discarding it.
func (c *Connection) handleClose() {
	c.ch.DisableReading()
	c.closeInLoop()
}

func (c *Connection) handleError(err error) {
	if c.onError != nil {
		c.onError(c, err)
	}
	c.teardown()
}

func (c *Connection) handleError0(Timestamp) {
	errno, serr := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if serr == nil && errno != 0 {
		c.handleError(unix.Errno(errno))
		return
	}
	c.handleError(fmt.Errorf("netloop: fd %d: %w", c.fd, ErrConnectionClosed))
}

// teardown is the single at-most-once gate every close path funnels
// through: read EOF, a read/write error, ForceClose, and idle-wheel
// expiry can all race to call it, but only the first one to flip closed
// does any work.
func (c *Connection) teardown() {
	if !c.closed.CAS(false, true) {
		return
	}
	c.state = StateClosed
	c.ch.DisableAll()
	c.loop.Selector().Remove(c.fd)
	_ = unix.Close(c.fd)
	if c.onClosed != nil {
		c.onClosed(c)
	}
}

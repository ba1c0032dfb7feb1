package netloop

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// socketpair returns two connected, non-blocking AF_UNIX stream fds,
// standing in for a real TCP connection's two ends without needing an
// Acceptor or an actual listening socket.
func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return fds[0], fds[1]
}

func newTestLoop(t *testing.T) (*EventLoop, func()) {
	t.Helper()
	loop, err := NewEventLoop("test")
	if err != nil {
		t.Fatalf("NewEventLoop: %v", err)
	}
	stop := runLoop(t, loop)
	return loop, stop
}

func TestConnectionEchoRoundTrip(t *testing.T) {
	loop, stop := newTestLoop(t)
	defer stop()

	connFd, peerFd := socketpair(t)
	defer unix.Close(peerFd)

	done := make(chan struct{})
	loop.Post(func() {
		conn := NewConnection(loop, connFd, InetSocketAddress{}, InetSocketAddress{})
		conn.SetCallbacks(nil, func(c *Connection, buf *ByteBuffer, _ Timestamp) {
			out := make([]byte, buf.Remaining())
			buf.Get(out)
			c.Write(out)
		}, nil, nil)
		conn.Start()
		close(done)
	})
	<-done

	msg := []byte("ping")
	if _, err := unix.Write(peerFd, msg); err != nil {
		t.Fatalf("write to peer fd: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var got []byte
	buf := make([]byte, 64)
	for time.Now().Before(deadline) {
		n, err := unix.Read(peerFd, buf)
		if err == unix.EAGAIN {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatalf("read from peer fd: %v", err)
		}
		got = append(got, buf[:n]...)
		if len(got) >= len(msg) {
			break
		}
	}
	if string(got) != string(msg) {
		t.Fatalf("echo: got %q, want %q", got, msg)
	}
}

func TestConnectionForceCloseIsAtMostOnce(t *testing.T) {
	loop, stop := newTestLoop(t)
	defer stop()

	connFd, peerFd := socketpair(t)
	defer unix.Close(peerFd)

	var closedCount int
	var mu sync.Mutex
	connDone := make(chan *Connection, 1)

	loop.Post(func() {
		conn := NewConnection(loop, connFd, InetSocketAddress{}, InetSocketAddress{})
		conn.SetCallbacks(nil, nil, func(*Connection) {
			mu.Lock()
			closedCount++
			mu.Unlock()
		}, nil)
		conn.Start()
		connDone <- conn
	})
	conn := <-connDone

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.ForceClose()
		}()
	}
	wg.Wait()

	// Give the loop goroutine time to process every posted teardown.
	done := make(chan struct{})
	loop.Post(func() { close(done) })
	<-done
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if closedCount != 1 {
		t.Fatalf("onClosed fired %d times, want exactly 1", closedCount)
	}
}

func TestConnectionPeerCloseTriggersTeardown(t *testing.T) {
	loop, stop := newTestLoop(t)
	defer stop()

	connFd, peerFd := socketpair(t)

	closed := make(chan struct{})
	loop.Post(func() {
		conn := NewConnection(loop, connFd, InetSocketAddress{}, InetSocketAddress{})
		conn.SetCallbacks(nil, nil, func(*Connection) { close(closed) }, nil)
		conn.Start()
	})

	unix.Close(peerFd)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("peer close never triggered onClosed")
	}
}

func TestConnectionBackpressureDrainsOnWritable(t *testing.T) {
	loop, stop := newTestLoop(t)
	defer stop()

	connFd, peerFd := socketpair(t)
	defer unix.Close(peerFd)

	var conn *Connection
	connDone := make(chan struct{})
	loop.Post(func() {
		conn = NewConnection(loop, connFd, InetSocketAddress{}, InetSocketAddress{})
		conn.SetCallbacks(nil, nil, nil, nil)
		conn.Start()
		close(connDone)
	})
	<-connDone

	// A payload comfortably larger than the socket's send buffer, so some
	// of it is guaranteed to land in egress rather than going out
	// immediately.
	payload := make([]byte, 4<<20)
	for i := range payload {
		payload[i] = byte(i)
	}
	conn.Write(payload)

	received := 0
	buf := make([]byte, 64<<10)
	deadline := time.Now().Add(5 * time.Second)
	for received < len(payload) && time.Now().Before(deadline) {
		n, err := unix.Read(peerFd, buf)
		if err == unix.EAGAIN {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatalf("read from peer fd: %v", err)
		}
		received += n
	}
	if received != len(payload) {
		t.Fatalf("received %d bytes, want %d", received, len(payload))
	}
}

func TestConnectionIdleExpiryViaTimingWheel(t *testing.T) {
	loop, err := NewEventLoop("test")
	if err != nil {
		t.Fatalf("NewEventLoop: %v", err)
	}
	wheel := NewTimingWheel(loop, 3, 20*time.Millisecond)
	loop.SetTimingWheel(wheel)
	stopWheel := wheel.Start()
	defer stopWheel()
	stop := runLoop(t, loop)
	defer stop()

	connFd, peerFd := socketpair(t)
	defer unix.Close(peerFd)

	closed := make(chan struct{})
	loop.Post(func() {
		conn := NewConnection(loop, connFd, InetSocketAddress{}, InetSocketAddress{})
		conn.SetCallbacks(func(c *Connection) {
			wheel.Touch(c)
		}, nil, func(*Connection) { close(closed) }, nil)
		conn.Start()
	})

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("idle connection was never force-closed by the timing wheel")
	}
}

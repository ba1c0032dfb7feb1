package netloop

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Acceptor owns one listening socket and reports every accepted
// connection to NewConnCallback. It keeps one spare fd open purely so
// that hitting the process fd limit (EMFILE) can be handled by freeing
// the spare, accepting the pending connection just to close it
// immediately, and re-opening the spare — rather than spinning on an
// accept4 that keeps failing and never clears the listening socket's
// readable state.
type Acceptor struct {
	loop   *EventLoop
	fd     int
	ch     *Channel
	spare  int
	local  InetSocketAddress
	listening bool

	NewConnCallback func(fd int, local, peer InetSocketAddress, now Timestamp)
}

// NewAcceptor creates a listening socket bound to addr with
// SO_REUSEADDR and SO_REUSEPORT set, backed by loop for event dispatch.
func NewAcceptor(loop *EventLoop, addr InetSocketAddress) (*Acceptor, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("netloop: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netloop: SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netloop: SO_REUSEPORT: %w", err)
	}
	var sa unix.SockaddrInet4
	sa.Port = addr.Port()
	if ip := addr.IP().To4(); ip != nil {
		copy(sa.Addr[:], ip)
	}
	if err := unix.Bind(fd, &sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netloop: bind %s: %w", addr, err)
	}
	spare, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netloop: reserve spare fd: %w", err)
	}
	a := &Acceptor{loop: loop, fd: fd, spare: spare, local: addr}
	a.ch = NewChannel(loop.Selector(), fd)
	return a, nil
}

// Listen starts accepting and registers the acceptor's read interest with
// its EventLoop. backlog is the listen() queue length.
func (a *Acceptor) Listen(backlog int) error {
	if err := unix.Listen(a.fd, backlog); err != nil {
		return fmt.Errorf("netloop: listen: %w", err)
	}
	a.listening = true
	a.ch.EnableReading(a.handleRead)
	return nil
}

func (a *Acceptor) handleRead(ts Timestamp) {
	for {
		nfd, sa, err := unix.Accept4(a.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EMFILE:
				a.acceptAndDropOne()
				return
			default:
				logger().Warnf("acceptor: accept4: %v", err)
				return
			}
		}
		peer := sockaddrToInet(sa)
		if a.NewConnCallback != nil {
			a.NewConnCallback(nfd, a.local, peer, ts)
		} else {
			_ = unix.Close(nfd)
		}
	}
}

// acceptAndDropOne frees the spare fd, accepts the connection that is
// making the listening socket readable, and closes it immediately so the
// client sees a clean reset instead of the process spinning forever on a
// readable event it cannot service, then reclaims a spare fd for next
// time.
func (a *Acceptor) acceptAndDropOne() {
	_ = unix.Close(a.spare)
	nfd, _, err := unix.Accept4(a.fd, unix.SOCK_CLOEXEC)
	if err == nil {
		_ = unix.Close(nfd)
	}
	a.spare, _ = unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
}

func sockaddrToInet(sa unix.Sockaddr) InetSocketAddress {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, v.Addr[:])
		addr, _ := NewInetSocketAddress(ip.String(), v.Port)
		return addr
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, v.Addr[:])
		addr, _ := NewInetSocketAddress(ip.String(), v.Port)
		return addr
	default:
		return InetSocketAddress{}
	}
}

// Close releases the acceptor's listening and spare fds.
func (a *Acceptor) Close() error {
	a.loop.Selector().Remove(a.fd)
	_ = unix.Close(a.spare)
	return unix.Close(a.fd)
}

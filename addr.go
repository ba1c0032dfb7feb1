package netloop

import (
	"fmt"
	"net"
)

// InetSocketAddress is an IPv4/IPv6 endpoint: parse and format over
// net.TCPAddr, kept as its own type so the rest of the package depends on
// one small surface rather than the full net API.
type InetSocketAddress struct {
	addr net.TCPAddr
}

// NewInetSocketAddress resolves host:port (or an empty host for
// wildcard-bind addresses) into an InetSocketAddress.
func NewInetSocketAddress(host string, port int) (InetSocketAddress, error) {
	ip := net.ParseIP(host)
	if host != "" && ip == nil {
		resolved, err := net.ResolveIPAddr("ip", host)
		if err != nil {
			return InetSocketAddress{}, fmt.Errorf("%w: %s", ErrInvalidAddress, host)
		}
		ip = resolved.IP
	}
	return InetSocketAddress{addr: net.TCPAddr{IP: ip, Port: port}}, nil
}

// ParseInetSocketAddress parses "host:port" into an InetSocketAddress.
func ParseInetSocketAddress(hostport string) (InetSocketAddress, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", hostport)
	if err != nil {
		return InetSocketAddress{}, fmt.Errorf("%w: %s", ErrInvalidAddress, hostport)
	}
	return InetSocketAddress{addr: *tcpAddr}, nil
}

// FromTCPAddr wraps an already-resolved *net.TCPAddr.
func FromTCPAddr(addr *net.TCPAddr) InetSocketAddress {
	if addr == nil {
		return InetSocketAddress{}
	}
	return InetSocketAddress{addr: *addr}
}

// IP returns the address's IP component.
func (a InetSocketAddress) IP() net.IP { return a.addr.IP }

// Port returns the address's port component.
func (a InetSocketAddress) Port() int { return a.addr.Port }

// TCPAddr returns the underlying net.TCPAddr for use with the net package.
func (a InetSocketAddress) TCPAddr() *net.TCPAddr {
	cp := a.addr
	return &cp
}

func (a InetSocketAddress) String() string {
	return a.addr.String()
}

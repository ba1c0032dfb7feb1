package netloop

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// ConnectorState is a Connector's position in its state machine:
// Disconnected -> Connecting -> Connected, with Retrying as the detour
// taken whenever a connect attempt fails and the Connector has been asked
// to keep trying.
type ConnectorState int

const (
	ConnectorDisconnected ConnectorState = iota
	ConnectorConnecting
	ConnectorConnected
	ConnectorRetrying
)

const (
	connectorInitialRetryDelay = 500 * time.Millisecond
	connectorMaxRetryDelay     = 30 * time.Second
)

// Connector establishes one outbound TCP connection. When created with
// retry set, it retries with exponential backoff (capped at
// connectorMaxRetryDelay) until it succeeds or Stop is called; otherwise
// a failed attempt is logged and not retried.
type Connector struct {
	loop    *EventLoop
	addr    InetSocketAddress
	retry   bool
	state   ConnectorState
	fd      int
	ch      *Channel
	delay   time.Duration
	stopped bool

	NewConnCallback func(fd int, local, peer InetSocketAddress)
}

// NewConnector creates a Connector targeting addr. retry controls whether
// a failed attempt is retried with backoff or reported as final failure.
func NewConnector(loop *EventLoop, addr InetSocketAddress, retry bool) *Connector {
	return &Connector{
		loop:  loop,
		addr:  addr,
		retry: retry,
		state: ConnectorDisconnected,
		delay: connectorInitialRetryDelay,
	}
}

// Start begins (or restarts) the connect attempt. Must be called from the
// owning loop's goroutine.
func (c *Connector) Start() {
	c.loop.AssertInLoopThread()
	c.stopped = false
	c.connect()
}

// Stop cancels any in-flight or scheduled retry. Safe from any goroutine.
func (c *Connector) Stop() {
	c.loop.Post(func() {
		c.stopped = true
		if c.state == ConnectorConnecting && c.ch != nil {
			c.ch.DisableAll()
			c.loop.Selector().Remove(c.fd)
			_ = unix.Close(c.fd)
		}
		c.state = ConnectorDisconnected
	})
}

func (c *Connector) connect() {
	if c.stopped {
		return
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		c.retryOrFail(fmt.Errorf("netloop: socket: %w", err))
		return
	}
	var sa unix.SockaddrInet4
	sa.Port = c.addr.Port()
	if ip := c.addr.IP().To4(); ip != nil {
		copy(sa.Addr[:], ip)
	}
	c.fd = fd
	err = unix.Connect(fd, &sa)
	switch err {
	case nil:
		c.state = ConnectorConnected
		c.established()
	case unix.EINPROGRESS:
		c.state = ConnectorConnecting
		c.ch = NewChannel(c.loop.Selector(), fd)
		c.ch.SetWritingCallback(c.handleConnectWritable)
		c.ch.EnableWriting()
	default:
		_ = unix.Close(fd)
		c.retryOrFail(err)
	}
}

func (c *Connector) handleConnectWritable(Timestamp) {
	c.ch.DisableAll()
	c.loop.Selector().Remove(c.fd)

	errno, serr := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if serr != nil || errno != 0 {
		_ = unix.Close(c.fd)
		var e error
		if serr != nil {
			e = serr
		} else {
			e = unix.Errno(errno)
		}
		c.retryOrFail(e)
		return
	}
	c.state = ConnectorConnected
	c.established()
}

func (c *Connector) established() {
	c.delay = connectorInitialRetryDelay
	if c.NewConnCallback != nil {
		local, _ := unix.Getsockname(c.fd)
		c.NewConnCallback(c.fd, sockaddrToInet(local), c.addr)
	}
}

func (c *Connector) retryOrFail(err error) {
	if !c.retry || c.stopped {
		c.state = ConnectorDisconnected
		logger().Errorf("connector: connect to %s failed: %v", c.addr, err)
		return
	}
	c.state = ConnectorRetrying
	delay := c.delay
	c.delay *= 2
	if c.delay > connectorMaxRetryDelay {
		c.delay = connectorMaxRetryDelay
	}
	logger().Warnf("connector: connect to %s failed: %v, retrying in %s", c.addr, err, delay)
	time.AfterFunc(delay, func() {
		c.loop.Post(c.connect)
	})
}

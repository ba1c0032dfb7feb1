package netloop

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ConnSnapshot pairs a connection's identity with its latest ConnStats,
// as returned by TcpServer.Stats.
type ConnSnapshot struct {
	Fd   int
	Peer InetSocketAddress
	ConnStats
}

// Options configures a TcpServer.
type Options struct {
	Addr InetSocketAddress

	// NumLoops is the number of worker EventLoops accepted connections
	// are round-robin dispatched across. The acceptor itself runs on its
	// own dedicated loop and is never counted here.
	NumLoops int

	Backlog     int
	IdleTimeout time.Duration

	// ReceiveBufferSize sizes each worker loop's shared ingress
	// ByteBuffer. Zero uses the loop's built-in default.
	ReceiveBufferSize int

	OnConnected func(*Connection)
	OnMessage   func(*Connection, *ByteBuffer, Timestamp)
	OnClosed    func(*Connection)
	OnError     func(*Connection, error)
}

const (
	defaultBacklog        = 1024
	defaultIdleTimeout    = 3 * time.Second
	timingWheelTickPeriod = 1 * time.Second
)

// TcpServer accepts connections on one listening socket and spreads them
// round-robin across a fixed pool of worker EventLoops, each running on
// its own goroutine with its own Selector and TimingWheel.
type TcpServer struct {
	opts Options

	acceptLoop *EventLoop
	acceptor   *Acceptor

	workers    []*EventLoop
	wheels     []*TimingWheel
	wheelStops []func()
	next       uint64

	stats   *StatsCache
	tracked sync.Map // fd (int) -> *Connection

	wg sync.WaitGroup
}

// NewTcpServer creates a TcpServer bound to opts.Addr. It does not start
// listening or running its loops until Start is called.
func NewTcpServer(opts Options) (*TcpServer, error) {
	if opts.NumLoops < 1 {
		opts.NumLoops = 1
	}
	if opts.Backlog == 0 {
		opts.Backlog = defaultBacklog
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}

	acceptLoop, err := NewEventLoop("accept")
	if err != nil {
		return nil, err
	}
	acceptor, err := NewAcceptor(acceptLoop, opts.Addr)
	if err != nil {
		return nil, err
	}
	stats, err := NewStatsCache(4096)
	if err != nil {
		return nil, err
	}

	s := &TcpServer{
		opts:       opts,
		acceptLoop: acceptLoop,
		acceptor:   acceptor,
		stats:      stats,
	}

	for i := 0; i < opts.NumLoops; i++ {
		loop, err := NewEventLoop(fmt.Sprintf("worker-%d", i))
		if err != nil {
			return nil, err
		}
		bucketCount := int(opts.IdleTimeout / timingWheelTickPeriod)
		if bucketCount < 1 {
			bucketCount = 1
		}
		wheel := NewTimingWheel(loop, bucketCount, timingWheelTickPeriod)
		loop.SetTimingWheel(wheel)
		loop.SetReceiveBufferSize(opts.ReceiveBufferSize)
		s.workers = append(s.workers, loop)
		s.wheels = append(s.wheels, wheel)
	}

	acceptor.NewConnCallback = s.dispatch
	return s, nil
}

// Start begins listening and launches the acceptor and every worker loop
// on its own goroutine. It returns once listen() succeeds; the loops
// continue running in the background until Stop is called.
func (s *TcpServer) Start() error {
	if err := s.acceptor.Listen(s.opts.Backlog); err != nil {
		return err
	}
	for i, loop := range s.workers {
		s.wheelStops = append(s.wheelStops, s.wheels[i].Start())
		s.wg.Add(1)
		go func(l *EventLoop) {
			defer s.wg.Done()
			if err := l.Run(); err != nil {
				logger().Errorf("tcpserver: worker loop exited: %v", err)
			}
		}(loop)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop.Run(); err != nil {
			logger().Errorf("tcpserver: accept loop exited: %v", err)
		}
	}()
	return nil
}

// dispatch assigns an accepted fd to a worker loop round-robin and wires
// up its Connection. Runs on the accept loop's goroutine; the new
// Connection's own setup runs on its assigned worker loop via Post, since
// that loop — not the accept loop — owns the connection from here on.
func (s *TcpServer) dispatch(fd int, local, peer InetSocketAddress, acceptedAt Timestamp) {
	idx := atomic.AddUint64(&s.next, 1) % uint64(len(s.workers))
	loop := s.workers[idx]
	loop.Post(func() {
		conn := NewConnection(loop, fd, local, peer)
		conn.SetCallbacks(
			func(c *Connection) {
				s.tracked.Store(c.Fd(), c)
				loop.TimingWheel().Touch(c)
				if s.opts.OnConnected != nil {
					s.opts.OnConnected(c)
				}
			},
			func(c *Connection, buf *ByteBuffer, ts Timestamp) {
				loop.TimingWheel().Touch(c)
				s.recordStats(c)
				if s.opts.OnMessage != nil {
					s.opts.OnMessage(c, buf, ts)
				}
			},
			func(c *Connection) {
				s.tracked.Delete(c.Fd())
				s.stats.Forget(c.Fd())
				if s.opts.OnClosed != nil {
					s.opts.OnClosed(c)
				}
			},
			func(c *Connection, err error) {
				if s.opts.OnError != nil {
					s.opts.OnError(c, err)
				}
			},
		)
		conn.Start()
	})
}

func (s *TcpServer) recordStats(c *Connection) {
	s.stats.Record(c.Fd(), ConnStats{
		LastActivityMicros: int64(c.LastActivity()),
		BytesRead:          c.BytesRead(),
		BytesWritten:       c.BytesWritten(),
	})
}

// Stats returns a snapshot of every currently tracked connection's
// traffic counters. A connection whose StatsCache entry has expired
// (idle past the cache TTL with no new Record call) is still listed,
// with a zero-value ConnStats, since liveness tracking comes from the
// tracked set, not from the bounded cache.
func (s *TcpServer) Stats() []ConnSnapshot {
	var out []ConnSnapshot
	s.tracked.Range(func(key, value interface{}) bool {
		conn := value.(*Connection)
		stats, _ := s.stats.Get(conn.Fd())
		out = append(out, ConnSnapshot{
			Fd:        conn.Fd(),
			Peer:      conn.PeerAddr(),
			ConnStats: stats,
		})
		return true
	})
	return out
}

// Stop asks the acceptor and every worker loop to stop, then blocks until
// all of their goroutines have returned.
func (s *TcpServer) Stop() {
	for _, stop := range s.wheelStops {
		stop()
	}
	s.acceptLoop.Stop()
	for _, loop := range s.workers {
		loop.Stop()
	}
	s.wg.Wait()
	_ = s.acceptor.Close()
	s.stats.Close()
}

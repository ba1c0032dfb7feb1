package netloop

import (
	"runtime"
	"time"

	"go.uber.org/atomic"
)

// Entry is the timing wheel's record of one Touch: a connection plus the
// touch generation it was current as of. release checks whether a newer
// Touch has since superseded it; only the most recent Entry for a
// connection is allowed to force-close it.
type Entry struct {
	conn *Connection
	gen  uint64
}

func newEntry(conn *Connection, gen uint64) *Entry {
	e := &Entry{conn: conn, gen: gen}
	// Backstop for an Entry abandoned without going through release (e.g.
	// the wheel is closed and its buckets dropped without rotating them
	// out one at a time). Ordinary expiry always calls release explicitly
	// before the Entry becomes garbage, making this finalizer a no-op on
	// the common path.
	runtime.SetFinalizer(e, (*Entry).release)
	return e
}

// release force-closes the owning connection if and only if this Entry is
// still the most recent Touch recorded for it — i.e. the connection has
// not been touched again since this Entry was queued, so a full wheel
// rotation has passed with no activity.
func (e *Entry) release() {
	runtime.SetFinalizer(e, nil)
	if e.conn == nil {
		return
	}
	if e.conn.touchGen.Load() == e.gen {
		e.conn.ForceClose()
	}
}

// TimingWheel expires idle connections in O(1) per tick: a fixed ring of
// buckets, one slot rotated out per tick interval, each holding every
// Entry Touch placed there since it was last the newest bucket. A
// connection's timeout is bucketCount * tickInterval; Touch anywhere
// within the wheel's lifetime moves its effective deadline one full
// rotation into the future without needing to find and remove any
// previous record of it.
type TimingWheel struct {
	tickInterval time.Duration
	buckets      []map[*Entry]struct{}
	cursor       int

	loop *EventLoop
}

// NewTimingWheel creates a wheel with bucketCount slots of tickInterval
// each: a connection that goes bucketCount*tickInterval without a Touch
// is force-closed. Ticks are posted to loop; ticking begins only once
// Start is called.
func NewTimingWheel(loop *EventLoop, bucketCount int, tickInterval time.Duration) *TimingWheel {
	w := &TimingWheel{
		tickInterval: tickInterval,
		buckets:      make([]map[*Entry]struct{}, bucketCount),
		loop:         loop,
	}
	for i := range w.buckets {
		w.buckets[i] = make(map[*Entry]struct{})
	}
	return w
}

// Touch records activity on conn, resetting its idle deadline to a full
// wheel rotation from now.
func (w *TimingWheel) Touch(conn *Connection) {
	gen := conn.touchGen.Add(1)
	e := newEntry(conn, gen)
	w.buckets[w.cursor][e] = struct{}{}
}

// tick rotates the wheel by one slot, releasing (and thereby possibly
// force-closing) every Entry in the bucket being dropped.
func (w *TimingWheel) tick() {
	next := (w.cursor + 1) % len(w.buckets)
	expiring := w.buckets[next]
	w.buckets[next] = make(map[*Entry]struct{})
	w.cursor = next
	for e := range expiring {
		e.release()
	}
}

// run schedules tick to fire on the owning loop every tickInterval, for
// as long as stop is false. Start launches it once on a dedicated
// goroutine that only ever calls loop.Post.
func (w *TimingWheel) run(stop *atomic.Bool) {
	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()
	for !stop.Load() {
		<-ticker.C
		w.loop.Post(w.tick)
	}
}

// Start launches the wheel's background ticking goroutine. Stop it with
// the returned stop function before the owning EventLoop shuts down.
func (w *TimingWheel) Start() (stopFn func()) {
	stop := atomic.NewBool(false)
	go w.run(stop)
	return func() { stop.Store(true) }
}

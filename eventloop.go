package netloop

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// EventLoop is the single-goroutine reactor core: one Selector, one pending
// function queue woken through an eventfd, and the bookkeeping an owning
// TcpServer or Connector needs to reach into it safely from other
// goroutines. Every Channel registered with this loop's Selector must only
// have its interest changed from the loop's own goroutine; Post is the
// cross-goroutine door into that goroutine.
type EventLoop struct {
	Name string

	selector *Selector
	wakeupFd int
	wakeupCh *Channel

	mu      sync.Mutex
	pending []func()

	runMu     sync.Mutex
	isRunning *atomic.Bool
	isQuit    *atomic.Bool

	ownerTid int

	wheel *TimingWheel

	readBuf           *ByteBuffer
	receiveBufferSize int
}

const defaultReceiveBufferSize = 65536

// SetReceiveBufferSize sets the size new AllocateReceiveBuffer calls grow
// the loop's shared ingress buffer to, at minimum. Call before Run.
func (el *EventLoop) SetReceiveBufferSize(n int) {
	if n > 0 {
		el.receiveBufferSize = n
	}
}

// NewEventLoop creates an EventLoop and its Selector. The loop does not
// start running until Run is called from the goroutine that will own it.
func NewEventLoop(name string) (*EventLoop, error) {
	sel, err := NewSelector()
	if err != nil {
		return nil, err
	}
	wakeupFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("netloop: eventfd: %w", err)
	}
	el := &EventLoop{
		Name:      name,
		selector:  sel,
		wakeupFd:  wakeupFd,
		isRunning:         atomic.NewBool(false),
		isQuit:            atomic.NewBool(false),
		readBuf:           NewByteBuffer(defaultReceiveBufferSize),
		receiveBufferSize: defaultReceiveBufferSize,
	}
	el.wakeupCh = NewChannel(sel, wakeupFd)
	el.wakeupCh.EnableReading(el.handleWakeup)
	return el, nil
}

func (el *EventLoop) handleWakeup(Timestamp) {
	var buf [8]byte
	for {
		_, err := unix.Read(el.wakeupFd, buf[:])
		if err == nil || err != unix.EAGAIN {
			break
		}
	}
}

// IsInLoopThread reports whether the calling goroutine is pinned to this
// loop's OS thread. Run locks the running goroutine to its OS thread for
// exactly this reason: gettid is otherwise meaningless in Go, where
// goroutines migrate between OS threads at will.
func (el *EventLoop) IsInLoopThread() bool {
	return el.isRunning.Load() && unix.Gettid() == el.ownerTid
}

// AssertInLoopThread panics if called from outside the loop's own
// goroutine; Connection.Start and Connector.Start call it because they
// change interest sets, which is only safe on the loop thread.
func (el *EventLoop) AssertInLoopThread() {
	if !el.IsInLoopThread() {
		panic(fmt.Sprintf("netloop: %s: %v", el.Name, ErrNotOwnerThread))
	}
}

// Post runs cb on the loop's own goroutine. If called from the loop thread
// itself, cb runs inline, immediately, before Post returns; otherwise it is
// queued and the loop is woken to drain it on its next iteration.
func (el *EventLoop) Post(cb func()) {
	if el.IsInLoopThread() {
		cb()
		return
	}
	el.mu.Lock()
	el.pending = append(el.pending, cb)
	el.mu.Unlock()
	el.wakeup()
}

func (el *EventLoop) wakeup() {
	var one [8]byte
	one[7] = 1
	_, _ = unix.Write(el.wakeupFd, one[:])
}

func (el *EventLoop) drainPending() {
	el.mu.Lock()
	callbacks := el.pending
	el.pending = nil
	el.mu.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

// Run blocks in the reactor loop until Stop is called. It must be called
// from the goroutine that is meant to own this EventLoop for its entire
// lifetime.
func (el *EventLoop) Run() error {
	el.runMu.Lock()
	defer el.runMu.Unlock()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	el.ownerTid = unix.Gettid()
	el.isRunning.Store(true)
	defer el.isRunning.Store(false)

	logger().Infof("event loop %s: starting", el.Name)

	var keys []*SelectionKey
	for !el.isQuit.Load() {
		ts, err := el.selector.Select(10000, &keys)
		if err != nil {
			logger().Errorf("event loop %s: select: %v", el.Name, err)
			continue
		}
		for _, k := range keys {
			k.Channel().handleEvent(ts, k)
		}
		el.drainPending()
	}

	logger().Infof("event loop %s: stopped", el.Name)
	return nil
}

// Stop asks the loop to return from Run after completing its current
// iteration, and blocks until it has: it acquires runMu, which Run holds for
// its entire lifetime, so Stop never returns while a select call or event
// dispatch is still in flight on the loop goroutine. Safe to call from any
// goroutine: called from the loop's own goroutine (e.g. inside a callback)
// it only sets the quit flag and returns, and Run returns once the current
// iteration finishes.
func (el *EventLoop) Stop() {
	el.isQuit.Store(true)
	if el.IsInLoopThread() {
		return
	}
	el.wakeup()
	el.runMu.Lock()
	el.runMu.Unlock()
}

// Selector exposes the loop's Selector so Channels can be registered
// against it.
func (el *EventLoop) Selector() *Selector { return el.selector }

// AllocateReceiveBuffer returns the loop's single shared ingress
// ByteBuffer, reset to write mode. Safe only from the loop thread: all
// read callbacks run there, one at a time, so one shared buffer per loop
// avoids a per-connection allocation on every readable event.
func (el *EventLoop) AllocateReceiveBuffer(n int) *ByteBuffer {
	if n < el.receiveBufferSize {
		n = el.receiveBufferSize
	}
	if el.readBuf.Capacity() < n {
		el.readBuf = NewByteBuffer(n)
	}
	el.readBuf.Clear()
	return el.readBuf
}

// TimingWheel returns the idle-connection timing wheel installed with
// SetTimingWheel, or nil if none has been installed.
func (el *EventLoop) TimingWheel() *TimingWheel {
	return el.wheel
}

// SetTimingWheel installs the loop's idle-connection timing wheel.
func (el *EventLoop) SetTimingWheel(w *TimingWheel) {
	el.wheel = w
}

// Close releases the loop's selector and wakeup fd. Only safe to call
// after Run has returned.
func (el *EventLoop) Close() error {
	el.selector.Remove(el.wakeupFd)
	if err := unix.Close(el.wakeupFd); err != nil {
		return err
	}
	return el.selector.Close()
}

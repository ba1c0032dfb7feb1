//go:build linux

package netloop

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const selectorInitialEventCapacity = 16

// Selector wraps one epoll instance. It owns the fd-to-Channel mapping: a
// Channel only becomes visible to Select once update has registered it.
type Selector struct {
	epfd     int
	channels map[int]*Channel
	events   []unix.EpollEvent
}

// NewSelector creates a fresh epoll instance.
func NewSelector() (*Selector, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("netloop: epoll_create1: %w", err)
	}
	return &Selector{
		epfd:     epfd,
		channels: make(map[int]*Channel),
		events:   make([]unix.EpollEvent, selectorInitialEventCapacity),
	}, nil
}

func toEpollEvents(op Op) uint32 {
	var ev uint32
	if op&OpRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if op&OpWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// update registers ch with the selector if this is the first time its fd
// has had non-zero interest, or modifies its existing registration.
func (s *Selector) update(ch *Channel) {
	_, known := s.channels[ch.fd]
	event := unix.EpollEvent{Events: toEpollEvents(ch.interest), Fd: int32(ch.fd)}
	if !known {
		s.channels[ch.fd] = ch
		ch.key = &SelectionKey{fd: ch.fd, channel: ch}
		_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, ch.fd, &event)
	} else {
		_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, ch.fd, &event)
	}
	ch.key.interestOps = ch.interest
}

// Remove deregisters fd entirely: no further events will be reported for
// it, and a subsequent update call for the same fd re-registers fresh.
func (s *Selector) Remove(fd int) {
	if ch, ok := s.channels[fd]; ok {
		_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		ch.key = nil
		delete(s.channels, fd)
	}
}

// Select blocks up to timeoutMs milliseconds (-1 blocks indefinitely, 0
// polls without blocking) and appends every SelectionKey with a non-empty
// ready mask to out, which is truncated to zero length first. It returns
// the Timestamp at which the poll returned, for use as the receive time of
// whatever I/O the caller performs in response.
func (s *Selector) Select(timeoutMs int, out *[]*SelectionKey) (Timestamp, error) {
	*out = (*out)[:0]
	n, err := unix.EpollWait(s.epfd, s.events, timeoutMs)
	ts := Now()
	if err != nil {
		if err == unix.EINTR {
			return ts, nil
		}
		return ts, fmt.Errorf("netloop: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		ev := s.events[i]
		ch, ok := s.channels[int(ev.Fd)]
		if !ok || ch.key == nil {
			continue
		}
		ch.key.readyOps = fromEpollEvents(ev.Events)
		*out = append(*out, ch.key)
	}
	if n == len(s.events) {
		s.events = make([]unix.EpollEvent, len(s.events)*2)
	}
	return ts, nil
}

func fromEpollEvents(ev uint32) Op {
	var op Op
	if ev&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		op |= OpRead
	}
	if ev&unix.EPOLLOUT != 0 {
		op |= OpWrite
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		op |= opError
	}
	return op
}

// Close releases the underlying epoll fd.
func (s *Selector) Close() error {
	return unix.Close(s.epfd)
}

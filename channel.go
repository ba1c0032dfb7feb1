package netloop

// Channel binds one fd to its interest set and the callbacks invoked when
// the Selector reports it ready. A Channel never calls into the kernel
// itself: Selector.update and Selector.Remove do the epoll_ctl work, so a
// Channel stays a plain event-dispatch record.
type Channel struct {
	selector *Selector
	fd       int
	interest Op
	key      *SelectionKey

	readCallback  func(Timestamp)
	writeCallback func(Timestamp)
	errorCallback func(Timestamp)
}

// NewChannel creates a Channel for fd with no interest registered yet. The
// Channel is not known to the Selector until the first EnableReading or
// EnableWriting call.
func NewChannel(sel *Selector, fd int) *Channel {
	return &Channel{selector: sel, fd: fd}
}

// Fd returns the channel's file descriptor.
func (c *Channel) Fd() int { return c.fd }

// SetErrorCallback installs the callback invoked when the selector reports
// an error/hangup condition on this fd.
func (c *Channel) SetErrorCallback(cb func(Timestamp)) { c.errorCallback = cb }

// SetWritingCallback installs the callback invoked on write-ready, without
// touching the interest set. EnableWriting/DisableWriting toggle delivery.
func (c *Channel) SetWritingCallback(cb func(Timestamp)) { c.writeCallback = cb }

// EnableReading installs the read callback and adds OpRead to the interest
// set, registering the channel with the selector if this is its first
// interest bit.
func (c *Channel) EnableReading(cb func(Timestamp)) {
	c.readCallback = cb
	c.setInterest(c.interest | OpRead)
}

// EnableWriting adds OpWrite to the interest set, using whatever callback
// SetWritingCallback last installed.
func (c *Channel) EnableWriting() {
	c.setInterest(c.interest | OpWrite)
}

// DisableReading removes OpRead from the interest set.
func (c *Channel) DisableReading() {
	c.setInterest(c.interest &^ OpRead)
}

// DisableWriting removes OpWrite from the interest set.
func (c *Channel) DisableWriting() {
	c.setInterest(c.interest &^ OpWrite)
}

// IsWriting reports whether OpWrite is currently part of the interest set.
func (c *Channel) IsWriting() bool { return c.interest&OpWrite != 0 }

// DisableAll clears the entire interest set, leaving the fd registered
// with the selector (with an empty interest mask) rather than deregistering it;
// Selector.Remove is the caller's job once the fd itself is going away.
func (c *Channel) DisableAll() {
	c.setInterest(0)
}

func (c *Channel) setInterest(op Op) {
	c.interest = op
	c.selector.update(c)
}

// handleEvent dispatches one key's ready mask to the registered callbacks,
// in error-then-read-then-write order, rechecking write interest before the
// write callback: a read callback that closes the channel (e.g. on EOF)
// clears the interest set, so no stale write callback follows on a fd that
// is no longer live.
func (c *Channel) handleEvent(ts Timestamp, key *SelectionKey) {
	if key.IsError() && c.errorCallback != nil {
		c.errorCallback(ts)
	}
	if key.IsReadable() && c.readCallback != nil {
		c.readCallback(ts)
	}
	if key.IsWritable() && c.interest&OpWrite != 0 && c.writeCallback != nil {
		c.writeCallback(ts)
	}
}

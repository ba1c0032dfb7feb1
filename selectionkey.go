package netloop

// Op is an interest/ready bitmask: the operations (read, write) a Channel
// currently wants notified, or that a SelectionKey reports ready.
type Op uint32

const (
	OpRead Op = 1 << iota
	OpWrite
	opError // kernel-reported error/hangup, never requested explicitly
)

// SelectionKey is the selector's record for one fd: the interest mask the
// Channel asked for, the ready mask filled in by the most recent Select
// call, and a back-reference to the Channel that owns the fd. A fd appears
// in at most one Channel per Selector.
type SelectionKey struct {
	fd          int
	interestOps Op
	readyOps    Op
	channel     *Channel
}

// Fd returns the file descriptor this key describes.
func (k *SelectionKey) Fd() int { return k.fd }

// Channel returns the Channel that owns this key's fd.
func (k *SelectionKey) Channel() *Channel { return k.channel }

// IsReadable reports whether the last poll found the fd ready to read.
func (k *SelectionKey) IsReadable() bool { return k.readyOps&OpRead != 0 }

// IsWritable reports whether the last poll found the fd ready to write.
func (k *SelectionKey) IsWritable() bool { return k.readyOps&OpWrite != 0 }

// IsError reports whether the last poll found an error/hangup condition.
func (k *SelectionKey) IsError() bool { return k.readyOps&opError != 0 }

func (op Op) String() string {
	s := ""
	if op&OpRead != 0 {
		s += "R"
	}
	if op&OpWrite != 0 {
		s += "W"
	}
	if op&opError != 0 {
		s += "E"
	}
	if s == "" {
		return "-"
	}
	return s
}

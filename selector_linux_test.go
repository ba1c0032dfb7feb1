//go:build linux

package netloop

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestSelectorReportsReadable(t *testing.T) {
	sel, err := NewSelector()
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	defer sel.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	ch := NewChannel(sel, fds[0])
	var fired bool
	ch.EnableReading(func(Timestamp) { fired = true })

	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var keys []*SelectionKey
	_, err = sel.Select(1000, &keys)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("Select: got %d ready keys, want 1", len(keys))
	}
	if !keys[0].IsReadable() {
		t.Fatal("key not reported readable")
	}
	keys[0].Channel().handleEvent(Now(), keys[0])
	if !fired {
		t.Fatal("read callback never invoked")
	}
}

func TestSelectorTimeoutReturnsNoKeys(t *testing.T) {
	sel, err := NewSelector()
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	defer sel.Close()

	var keys []*SelectionKey
	start := time.Now()
	_, err = sel.Select(50, &keys)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no ready keys, got %d", len(keys))
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("Select returned suspiciously early for a bare timeout")
	}
}

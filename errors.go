package netloop

import "errors"

// Sentinel errors surfaced across the library.
var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrNotOwnerThread   = errors.New("operation attempted from a non-owner goroutine")
	ErrInvalidAddress   = errors.New("invalid socket address")
	ErrLoopStopped      = errors.New("event loop is stopped")
	ErrBufferEmpty      = errors.New("egress buffer is empty")
)

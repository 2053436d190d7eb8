package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull   = errors.New("command queue full")
	ErrClosed = errors.New("command queue closed")
)

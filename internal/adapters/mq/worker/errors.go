package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	ErrStopped = errors.New("worker stopped")
	ErrExpired = errors.New("command deadline passed before it ran")
	ErrPanic   = errors.New("command panicked")
)

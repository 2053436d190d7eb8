package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateID  = errors.New("duplicate id")
	ErrInvalidQuery = errors.New("invalid query")
	ErrClosed       = errors.New("store closed")
)

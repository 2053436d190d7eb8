package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithIDGenerator replaces the nanoid generator used for new records.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *MemoryStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithClock sets the time source used to stamp records without a date.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

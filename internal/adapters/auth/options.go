package auth

import (
	"time"

	"github.com/okian/scoreboard/pkg/logger"
)

// Option applies a configuration option to the Authenticator.
type Option func(*Authenticator)

// WithSessionTTL sets how long a session stays valid after login.
func WithSessionTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock sets the time source used for session expiry.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.logger = l
		}
	}
}

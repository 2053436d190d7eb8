// Package auth checks the administrator credential and tracks the sessions
// issued after a successful login.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// ErrUnauthorized covers a wrong credential and a missing, unknown or
// expired session.
var ErrUnauthorized = errors.New("unauthorized")

const defaultSessionTTL = 12 * time.Hour

// Session is an issued admin session.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Authenticator holds the single admin credential and the live sessions.
type Authenticator struct {
	username     string
	passwordHash []byte
	ttl          time.Duration
	now          func() time.Time
	logger       logger.Logger

	mu       sync.Mutex
	sessions map[string]time.Time
}

// New builds an Authenticator for username with a bcrypt passwordHash. An
// empty hash disables admin login entirely.
func New(username, passwordHash string, opts ...Option) (*Authenticator, error) {
	if passwordHash != "" {
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, fmt.Errorf("admin password hash: %w", err)
		}
	}
	a := &Authenticator{
		username:     username,
		passwordHash: []byte(passwordHash),
		ttl:          defaultSessionTTL,
		now:          time.Now,
		sessions:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("auth")
	}
	return a, nil
}

// Enabled reports whether an admin credential is configured.
func (a *Authenticator) Enabled() bool {
	return len(a.passwordHash) > 0
}

// Login checks the credential and opens a session.
func (a *Authenticator) Login(ctx context.Context, username, password string) (Session, error) {
	if !a.Enabled() {
		metrics.RecordLogin("disabled")
		return Session{}, ErrUnauthorized
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		metrics.RecordLogin("denied")
		a.logger.Warn(ctx, "admin login denied", logger.String("username", username))
		return Session{}, ErrUnauthorized
	}

	s := Session{Token: uuid.NewString(), ExpiresAt: a.now().Add(a.ttl)}
	a.mu.Lock()
	a.sweepLocked()
	a.sessions[s.Token] = s.ExpiresAt
	a.mu.Unlock()

	metrics.RecordLogin("ok")
	a.logger.Info(ctx, "admin logged in", logger.String("expires_at", s.ExpiresAt.UTC().Format(time.RFC3339)))
	return s, nil
}

// Validate returns ErrUnauthorized unless token names a live session.
func (a *Authenticator) Validate(ctx context.Context, token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	exp, ok := a.sessions[token]
	if !ok {
		return ErrUnauthorized
	}
	if !a.now().Before(exp) {
		delete(a.sessions, token)
		return ErrUnauthorized
	}
	return nil
}

// Logout ends the session; unknown tokens are ignored.
func (a *Authenticator) Logout(ctx context.Context, token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// Sessions returns the number of live sessions.
func (a *Authenticator) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sweepLocked()
	return len(a.sessions)
}

// TTL is how long a new session lives.
func (a *Authenticator) TTL() time.Duration {
	return a.ttl
}

func (a *Authenticator) sweepLocked() {
	now := a.now()
	for tok, exp := range a.sessions {
		if !now.Before(exp) {
			delete(a.sessions, tok)
		}
	}
}

// HashPassword returns a bcrypt hash for the admin_password_hash setting.
// cost <= 0 uses bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

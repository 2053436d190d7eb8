package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/metrics"
)

const memoryBackend = "memory"

// NewID generates an opaque record id.
func NewID() (string, error) {
	return gonanoid.New()
}

// MemoryStore keeps players and matches in maps guarded by one RWMutex.
// Every method copies on the way in and out, so callers never share slices
// with the store.
type MemoryStore struct {
	Feed

	mu      sync.RWMutex
	players map[string]model.Player
	matches map[string]model.Match
	closed  bool

	newID func() (string, error)
	now   func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		players: make(map[string]model.Player),
		matches: make(map[string]model.Match),
		newID:   NewID,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe records the latency of one store call and counts it as an error
// unless it succeeded or missed. Call it deferred with the named result.
func Observe(backend, op string, start time.Time, err *error) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
	if *err != nil && !errors.Is(*err, ErrNotFound) {
		metrics.RecordStoreError(backend, op)
	}
}

func observe(op string, start time.Time, err *error) {
	Observe(memoryBackend, op, start, err)
}

func (s *MemoryStore) CreatePlayer(ctx context.Context, p model.Player) (_ model.Player, err error) {
	defer observe("create_player", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Player{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Player{}, ErrClosed
	}
	if p.ID == "" {
		if p.ID, err = s.newID(); err != nil {
			s.mu.Unlock()
			return model.Player{}, fmt.Errorf("generate id: %w", err)
		}
	}
	if _, exists := s.players[p.ID]; exists {
		s.mu.Unlock()
		return model.Player{}, fmt.Errorf("%w: player %s", ErrDuplicateID, p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	s.players[p.ID] = p
	s.mu.Unlock()

	s.Publish(Change{Entity: EntityPlayer, Op: OpCreate, ID: p.ID})
	return p, nil
}

func (s *MemoryStore) GetPlayer(ctx context.Context, id string) (_ model.Player, err error) {
	defer observe("get_player", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[id]
	if !ok {
		return model.Player{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListPlayers(ctx context.Context, q Query) (_ []model.Player, err error) {
	defer observe("list_players", time.Now(), &err)
	if q, err = PlayerQuery(q); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]model.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sortPlayers(out, q)
	lo, hi := q.window(len(out))
	return out[lo:hi], nil
}

func (s *MemoryStore) CountPlayers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players), nil
}

func (s *MemoryStore) IncrementPlayer(ctx context.Context, id string, d model.Delta) (_ model.Player, err error) {
	defer observe("increment_player", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Player{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Player{}, ErrClosed
	}
	p, ok := s.players[id]
	if !ok {
		s.mu.Unlock()
		return model.Player{}, ErrNotFound
	}
	p = p.Apply(d)
	s.players[id] = p
	s.mu.Unlock()

	s.Publish(Change{Entity: EntityPlayer, Op: OpUpdate, ID: id})
	return p, nil
}

func (s *MemoryStore) CreateMatch(ctx context.Context, m model.Match) (_ model.Match, err error) {
	defer observe("create_match", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Match{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Match{}, ErrClosed
	}
	if m.ID == "" {
		if m.ID, err = s.newID(); err != nil {
			s.mu.Unlock()
			return model.Match{}, fmt.Errorf("generate id: %w", err)
		}
	}
	if _, exists := s.matches[m.ID]; exists {
		s.mu.Unlock()
		return model.Match{}, fmt.Errorf("%w: match %s", ErrDuplicateID, m.ID)
	}
	if m.Date.IsZero() {
		m.Date = s.now()
	}
	m.Date = m.Date.UTC()
	m.Players = append([]model.Participant(nil), m.Players...)
	s.matches[m.ID] = m
	s.mu.Unlock()

	s.Publish(Change{Entity: EntityMatch, Op: OpCreate, ID: m.ID})
	return copyMatch(m), nil
}

func (s *MemoryStore) GetMatch(ctx context.Context, id string) (_ model.Match, err error) {
	defer observe("get_match", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[id]
	if !ok {
		return model.Match{}, ErrNotFound
	}
	return copyMatch(m), nil
}

func (s *MemoryStore) DeleteMatch(ctx context.Context, id string) (err error) {
	defer observe("delete_match", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.matches[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.matches, id)
	s.mu.Unlock()

	s.Publish(Change{Entity: EntityMatch, Op: OpDelete, ID: id})
	return nil
}

func (s *MemoryStore) ListMatches(ctx context.Context, q Query) (_ []model.Match, err error) {
	defer observe("list_matches", time.Now(), &err)
	if q, err = MatchQuery(q); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]model.Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m)
	}
	s.mu.RUnlock()

	sortMatches(out, q)
	lo, hi := q.window(len(out))
	out = out[lo:hi]
	for i := range out {
		out[i] = copyMatch(out[i])
	}
	return out, nil
}

func (s *MemoryStore) CountMatches(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches), nil
}

// Close marks the store closed; later writes fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func copyMatch(m model.Match) model.Match {
	m.Players = append([]model.Participant(nil), m.Players...)
	return m
}

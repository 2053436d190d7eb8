// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
//
// Every mutation is a command on a bounded queue consumed by exactly one
// worker, so concurrent admin sessions never interleave writes. Reads go to
// the store directly.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/scoreboard/internal/adapters/mq/queue"
	"github.com/okian/scoreboard/internal/adapters/mq/worker"
	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/dedupe"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

var (
	// ErrBackpressure means the command queue is full; retry later.
	ErrBackpressure = errors.New("command queue full")
	// ErrNotStarted means Start has not run or Stop already has.
	ErrNotStarted = errors.New("service not started")
	// ErrTimeout means the command did not finish within its deadline. It may
	// still have run.
	ErrTimeout = errors.New("command timed out")
)

// Limits are the default and maximum sizes of the read views.
type Limits struct {
	Leaderboard   int
	RecentMatches int
	History       int
	Form          int
	PageSize      int
	MaxList       int
}

// DefaultLimits match the public pages.
var DefaultLimits = Limits{
	Leaderboard:   10,
	RecentMatches: 10,
	History:       50,
	Form:          24,
	PageSize:      15,
	MaxList:       100,
}

// Service implements the API dependencies for the scoreboard.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	deduper dedupe.Deduper
	queue   *queue.InMemoryQueue
	writer  *worker.Worker

	// Configuration
	backend         string
	queueSize       int
	idempotencySize int
	commandTimeout  time.Duration
	shutdownTimeout time.Duration
	limits          Limits
	now             func() time.Time

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store; the service owns it and closes it on
// Stop. Without it an in-memory store is used.
func WithStore(store repository.Store, backend string) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.backend = backend
		}
	}
}

// WithQueueSize sets the capacity of the command queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithIdempotencySize sets how many Idempotency-Key results are remembered.
func WithIdempotencySize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.idempotencySize = size
		}
	}
}

// WithCommandTimeout bounds how long a caller waits for a command, queueing
// included.
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.commandTimeout = d
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for queued commands.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLimits overrides the view sizes; zero fields keep their default.
func WithLimits(l Limits) Option {
	return func(s *Service) {
		set := func(dst *int, v int) {
			if v > 0 {
				*dst = v
			}
		}
		set(&s.limits.Leaderboard, l.Leaderboard)
		set(&s.limits.RecentMatches, l.RecentMatches)
		set(&s.limits.History, l.History)
		set(&s.limits.Form, l.Form)
		set(&s.limits.PageSize, l.PageSize)
		set(&s.limits.MaxList, l.MaxList)
	}
}

// WithClock sets the time source for match dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		backend:         "memory",
		queueSize:       256,
		idempotencySize: 10000,
		commandTimeout:  5 * time.Second,
		shutdownTimeout: 10 * time.Second,
		limits:          DefaultLimits,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the components and starts the writer.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting scoreboard service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(repository.WithClock(s.now))
		s.backend = "memory"
	}
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.idempotencySize),
	)
	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithClock(s.now),
	)
	metrics.UpdateQueueCapacity(s.queueSize)
	s.writer = worker.NewWorker(s.queue, worker.ExecutorFunc(s.execute),
		worker.WithLogger(s.logger.Named("worker")),
	)

	// The writer outlives the start context; Stop ends it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.writer.Run(runCtx)

	s.started = true
	s.logger.Info(ctx, "scoreboard service started",
		logger.String("store", s.backend),
		logger.Int("queueSize", s.queueSize),
		logger.Int("idempotencySize", s.idempotencySize),
		logger.Duration("commandTimeout", s.commandTimeout),
	)

	return nil
}

// Stop refuses new commands, lets the writer drain what is queued and closes
// the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping scoreboard service...")

	_ = s.queue.Close()

	sctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	if err := s.writer.Shutdown(sctx); err != nil {
		s.logger.Warn(ctx, "writer did not drain", logger.Error(err))
	}
	cancel()
	s.cancel()

	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "scoreboard service stopped")
}

// backing returns the store once the service is running.
func (s *Service) backing() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// submit enqueues a command and waits for the writer's reply.
func (s *Service) submit(ctx context.Context, kind string, payload any) (any, error) {
	s.mu.RLock()
	started, q := s.started, s.queue
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}

	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	cmd := queue.NewCommand(kind, payload, deadline)
	if err := q.Enqueue(ctx, cmd); err != nil {
		switch {
		case errors.Is(err, queue.ErrFull):
			return nil, ErrBackpressure
		case errors.Is(err, queue.ErrClosed):
			return nil, ErrNotStarted
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, kind, ctx.Err())
		}
		return nil, err
	}
	metrics.UpdateQueueSize(q.Len(ctx))

	select {
	case r := <-cmd.Reply:
		if errors.Is(r.Err, worker.ErrExpired) {
			return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, kind, r.Err)
		}
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, kind, ctx.Err())
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"store":           s.backend,
		"queueSize":       s.queueSize,
		"idempotencySize": s.idempotencySize,
		"commandTimeout":  s.commandTimeout.String(),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["idempotencyKeys"] = s.deduper.Size()
		metrics.UpdateQueueSize(queueLen)

		if n, err := s.store.CountPlayers(ctx); err == nil {
			stats["totalPlayers"] = n
			metrics.UpdatePlayersTotal(n)
		}
		if n, err := s.store.CountMatches(ctx); err == nil {
			stats["totalMatches"] = n
			metrics.UpdateMatchesTotal(n)
		}
	}

	return stats
}

// Size returns the number of remembered Idempotency-Keys.
func (s *Service) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

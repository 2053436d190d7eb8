package simulate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/scoring"
	"github.com/okian/scoreboard/pkg/logger"
)

// idempotencyHeader names the replay key header.
const idempotencyHeader = "Idempotency-Key"

// Run executes a complete simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg Config) (Report, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Players <= 0 || cfg.Matches < 0 {
		return Report{}, errors.New("players must be positive and matches non-negative")
	}

	start := time.Now()
	runID := uuid.NewString()
	log := logger.Get().Named("simulate").With(logger.String("run", runID))
	report := Report{RunID: runID}

	c := newClient(cfg)
	var backpressured atomic.Int64
	c.onBackpressure = func() { backpressured.Add(1) }

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("matches", cfg.Matches),
		logger.Int("workers", cfg.Workers))

	if err := c.do(ctx, fasthttp.MethodGet, "/healthz", nil, nil); err != nil {
		return report, fmt.Errorf("service health check failed: %w", err)
	}
	if err := c.login(ctx, cfg.Username, cfg.Password); err != nil {
		return report, err
	}

	ids, err := createPlayers(ctx, c, cfg, runID)
	if err != nil {
		return report, err
	}
	report.PlayersCreated = len(ids)
	log.Info(ctx, "players created", logger.Int("count", len(ids)))

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	gen := newGenerator(seed, ids)
	inputs := make([]matchInput, cfg.Matches)
	for i := range inputs {
		inputs[i] = gen.next()
	}

	recorded, sub := submitMatches(ctx, c, cfg, inputs)
	report.MatchesRecorded = len(recorded)
	report.Replays = sub.replays
	report.ReplayMismatch = sub.replayMismatch
	report.Failed = sub.failed
	log.Info(ctx, "matches submitted",
		logger.Int("recorded", report.MatchesRecorded),
		logger.Int("failed", report.Failed),
		logger.Int("replays", report.Replays))

	var check struct {
		Consistent bool `json:"consistent"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/api/admin/consistency", nil, &check); err != nil {
		return report, fmt.Errorf("consistency check: %w", err)
	}
	report.Consistent = check.Consistent

	var players []model.Player
	if err := c.do(ctx, fasthttp.MethodGet, "/api/players", nil, &players); err != nil {
		return report, fmt.Errorf("list players: %w", err)
	}
	report.Mismatches = verify(ids, expect(recorded), players)

	report.Backpressured = int(backpressured.Load())
	report.Duration = time.Since(start)
	log.Info(ctx, "simulation finished",
		logger.Bool("ok", report.OK()),
		logger.Bool("consistent", report.Consistent),
		logger.Int("mismatches", len(report.Mismatches)),
		logger.Int("backpressured", report.Backpressured),
		logger.Duration("duration", report.Duration))
	return report, nil
}

func createPlayers(ctx context.Context, c *client, cfg Config, runID string) ([]string, error) {
	ids := make([]string, cfg.Players)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range ids {
		g.Go(func() error {
			var p model.Player
			name := fmt.Sprintf("sim-%s-%02d", runID[:8], i+1)
			if err := c.do(gctx, fasthttp.MethodPost, "/api/admin/players", map[string]string{"name": name}, &p); err != nil {
				return fmt.Errorf("create player %s: %w", name, err)
			}
			ids[i] = p.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

type submitStats struct {
	replays        int
	replayMismatch int
	failed         int
}

// submitMatches posts every match, optionally a second time with the same
// key, and returns the inputs the server accepted.
func submitMatches(ctx context.Context, c *client, cfg Config, inputs []matchInput) ([]matchInput, submitStats) {
	var (
		mu       sync.Mutex
		recorded []matchInput
		st       submitStats
	)
	log := logger.Get().Named("simulate")

	g := new(errgroup.Group)
	g.SetLimit(cfg.Workers)
	for _, in := range inputs {
		g.Go(func() error {
			key := uuid.NewString()
			var first model.Match
			if err := c.do(ctx, fasthttp.MethodPost, "/api/admin/matches", in, &first, idempotencyHeader, key); err != nil {
				log.Debug(ctx, "match rejected", logger.Error(err))
				mu.Lock()
				st.failed++
				mu.Unlock()
				return nil
			}

			mismatch := false
			replayed := false
			if cfg.Replay {
				var again model.Match
				if err := c.do(ctx, fasthttp.MethodPost, "/api/admin/matches", in, &again, idempotencyHeader, key); err == nil {
					replayed = true
					mismatch = again.ID != first.ID
				}
			}

			mu.Lock()
			recorded = append(recorded, in)
			if replayed {
				st.replays++
			}
			if mismatch {
				st.replayMismatch++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return recorded, st
}

// verify compares the served rows of the simulated players with the tallies.
func verify(ids []string, want map[string]tally, players []model.Player) []string {
	byID := make(map[string]model.Player, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}

	var out []string
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			out = append(out, fmt.Sprintf("%s: missing", id))
			continue
		}
		t := want[id]
		elo := model.BaseElo + t.wins*scoring.EloChange(true) + (t.games-t.wins)*scoring.EloChange(false)
		if p.TotalGames != t.games || p.Wins != t.wins || p.Elo != elo {
			out = append(out, fmt.Sprintf("%s: got %d/%d elo %d, want %d/%d elo %d",
				p.Name, p.Wins, p.TotalGames, p.Elo, t.wins, t.games, elo))
		}
	}
	return out
}

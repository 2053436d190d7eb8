package service

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/export"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/stats"
	"github.com/okian/scoreboard/pkg/metrics"
)

// MatchPage is one page of the admin match list, newest first.
type MatchPage struct {
	Matches []model.Match `json:"matches"`
	Page    int           `json:"page"`
	Size    int           `json:"size"`
	Total   int           `json:"total"`
	Pages   int           `json:"pages"`
}

// clamp applies the default for n <= 0 and caps at the maximum list size.
func (s *Service) clamp(n, def int) int {
	if n <= 0 {
		n = def
	}
	if n > s.limits.MaxList {
		n = s.limits.MaxList
	}
	return n
}

// Leaderboard ranks players by wins, then elo, then name.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]stats.LeaderboardRow, error) {
	players, err := s.allPlayers(ctx)
	if err != nil {
		return nil, err
	}
	return stats.Leaderboard(players, s.clamp(limit, s.limits.Leaderboard)), nil
}

// RoleTable ranks the players who played role by their win rate in it.
func (s *Service) RoleTable(ctx context.Context, role string) ([]stats.RoleRow, error) {
	r, err := model.ParseRole(role)
	if err != nil {
		return nil, model.NewValidationError(map[string]string{"role": err.Error()})
	}
	players, err := s.allPlayers(ctx)
	if err != nil {
		return nil, err
	}
	return stats.RoleTable(players, r), nil
}

// Factions counts the winners of every recorded match.
func (s *Service) Factions(ctx context.Context) (stats.FactionStats, error) {
	matches, err := s.allMatches(ctx)
	if err != nil {
		return stats.FactionStats{}, err
	}
	return stats.Factions(matches), nil
}

// RecentMatches returns the newest matches.
func (s *Service) RecentMatches(ctx context.Context, limit int) ([]model.Match, error) {
	store, err := s.backing()
	if err != nil {
		return nil, err
	}
	matches, err := store.ListMatches(ctx, repository.Query{
		OrderBy: repository.OrderByDate,
		Desc:    true,
		Limit:   s.clamp(limit, s.limits.RecentMatches),
	})
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, nil
}

// MatchPage returns page (1-based) of the match log. Pages past the end are
// empty.
func (s *Service) MatchPage(ctx context.Context, page, size int) (MatchPage, error) {
	store, err := s.backing()
	if err != nil {
		return MatchPage{}, err
	}
	page = max(page, 1)
	size = s.clamp(size, s.limits.PageSize)

	out := MatchPage{Page: page, Size: size, Matches: []model.Match{}}
	out.Total, err = store.CountMatches(ctx)
	if err != nil {
		return MatchPage{}, fmt.Errorf("match page: %w", err)
	}
	out.Pages = (out.Total + size - 1) / size
	if page > out.Pages {
		return out, nil
	}

	out.Matches, err = store.ListMatches(ctx, repository.Query{
		OrderBy: repository.OrderByDate,
		Desc:    true,
		Limit:   size,
		Offset:  (page - 1) * size,
	})
	if err != nil {
		return MatchPage{}, fmt.Errorf("match page: %w", err)
	}
	return out, nil
}

// Players lists every player ordered by name.
func (s *Service) Players(ctx context.Context) ([]model.Player, error) {
	return s.allPlayers(ctx)
}

// Player returns one player's row.
func (s *Service) Player(ctx context.Context, id string) (model.Player, error) {
	store, err := s.backing()
	if err != nil {
		return model.Player{}, err
	}
	p, err := store.GetPlayer(ctx, id)
	if err != nil {
		return model.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

// PlayerHistory returns a player's record and their recent matches.
func (s *Service) PlayerHistory(ctx context.Context, id string, limit int) (stats.PlayerHistory, error) {
	store, err := s.backing()
	if err != nil {
		return stats.PlayerHistory{}, err
	}

	var (
		player  model.Player
		matches []model.Match
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		player, err = store.GetPlayer(gctx, id)
		if err != nil {
			return fmt.Errorf("get player: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		matches, err = store.ListMatches(gctx, repository.Query{})
		if err != nil {
			return fmt.Errorf("list matches: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return stats.PlayerHistory{}, err
	}
	return stats.History(player, matches, s.clamp(limit, s.limits.History), s.limits.Form), nil
}

// LastParticipants returns the players of the most recent match, every role
// reset to Liberal. It is empty when no match exists.
func (s *Service) LastParticipants(ctx context.Context) ([]model.ParticipantInput, error) {
	store, err := s.backing()
	if err != nil {
		return nil, err
	}
	last, err := store.ListMatches(ctx, repository.Query{OrderBy: repository.OrderByDate, Desc: true, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	out := []model.ParticipantInput{}
	if len(last) == 0 {
		return out, nil
	}
	for _, p := range last[0].Players {
		out = append(out, model.ParticipantInput{PlayerID: p.PlayerID, Role: model.RoleLiberal})
	}
	return out, nil
}

// CheckConsistency compares every stored row with the match log. The log is
// read on the writer, so an AddMatch or DeleteMatch in progress is never seen
// half applied.
func (s *Service) CheckConsistency(ctx context.Context) ([]model.Discrepancy, error) {
	players, matches, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	found := stats.CheckConsistency(players, matches)
	metrics.RecordConsistencyCheck(len(found))
	if found == nil {
		found = []model.Discrepancy{}
	}
	return found, nil
}

// Recompute rebuilds every player's counters from the match log without
// writing them.
func (s *Service) Recompute(ctx context.Context) ([]model.Player, error) {
	players, matches, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return stats.Recompute(players, matches), nil
}

// Export writes one of the CSV downloads to w.
func (s *Service) Export(ctx context.Context, kind export.Kind, w io.Writer) error {
	switch kind {
	case export.KindLeaderboard:
		players, err := s.allPlayers(ctx)
		if err != nil {
			return err
		}
		stats.SortForLeaderboard(players)
		return export.WriteLeaderboard(w, players)
	case export.KindRoles:
		players, err := s.allPlayers(ctx)
		if err != nil {
			return err
		}
		return export.WriteRoleStats(w, players)
	case export.KindMatches:
		matches, err := s.allMatches(ctx)
		if err != nil {
			return err
		}
		stats.SortMatchesNewestFirst(matches)
		return export.WriteMatches(w, matches)
	}
	return model.NewValidationError(map[string]string{"kind": fmt.Sprintf("unknown export %q", kind)})
}

// logSnapshot is the player table and match log read between two writes.
type logSnapshot struct {
	players []model.Player
	matches []model.Match
}

// snapshot asks the writer for a view of the store that no saga is halfway
// through.
func (s *Service) snapshot(ctx context.Context) ([]model.Player, []model.Match, error) {
	v, err := s.submit(ctx, KindSnapshot, nil)
	if err != nil {
		return nil, nil, err
	}
	snap := v.(logSnapshot)
	return snap.players, snap.matches, nil
}

// readSnapshot runs on the writer goroutine.
func (s *Service) readSnapshot(ctx context.Context) (logSnapshot, error) {
	var snap logSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.players, err = listPlayers(gctx, s.store)
		return err
	})
	g.Go(func() error {
		var err error
		snap.matches, err = listMatches(gctx, s.store)
		return err
	})
	if err := g.Wait(); err != nil {
		return logSnapshot{}, err
	}
	return snap, nil
}

func (s *Service) allPlayers(ctx context.Context) ([]model.Player, error) {
	store, err := s.backing()
	if err != nil {
		return nil, err
	}
	return listPlayers(ctx, store)
}

func (s *Service) allMatches(ctx context.Context) ([]model.Match, error) {
	store, err := s.backing()
	if err != nil {
		return nil, err
	}
	return listMatches(ctx, store)
}

func listPlayers(ctx context.Context, store repository.Store) ([]model.Player, error) {
	players, err := store.ListPlayers(ctx, repository.Query{OrderBy: repository.OrderByName})
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return players, nil
}

func listMatches(ctx context.Context, store repository.Store) ([]model.Match, error) {
	matches, err := store.ListMatches(ctx, repository.Query{OrderBy: repository.OrderByDate})
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, nil
}

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/model"
)

// Live views a client can subscribe to.
const (
	ViewLeaderboard = "leaderboard"
	ViewMatches     = "matches"
	ViewPlayers     = "players"
	ViewFactions    = "factions"
)

// Views lists the subscribable views.
var Views = []string{ViewLeaderboard, ViewMatches, ViewPlayers, ViewFactions}

// Watch pushes the full current result of view to fn now and after every
// committed write that changes it. limit applies to leaderboard and matches.
func (s *Service) Watch(ctx context.Context, view string, limit int, fn func(any)) (stop func(), err error) {
	store, err := s.backing()
	if err != nil {
		return nil, err
	}

	var load func(context.Context) (any, error)
	switch strings.ToLower(view) {
	case ViewLeaderboard:
		load = func(ctx context.Context) (any, error) { return s.Leaderboard(ctx, limit) }
	case ViewMatches:
		load = func(ctx context.Context) (any, error) { return s.RecentMatches(ctx, limit) }
	case ViewPlayers:
		load = func(ctx context.Context) (any, error) { return s.Players(ctx) }
	case ViewFactions:
		load = func(ctx context.Context) (any, error) { return s.Factions(ctx) }
	default:
		return nil, model.NewValidationError(map[string]string{
			"view": fmt.Sprintf("must be one of %s", strings.Join(Views, ", ")),
		})
	}
	return repository.Watch(ctx, store, load, fn)
}

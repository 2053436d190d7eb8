package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/scoreboard/internal/adapters/mq/queue"
	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/saga"
	"github.com/okian/scoreboard/internal/domain/scoring"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// Command kinds handled by the writer.
const (
	KindAddPlayer    = "add_player"
	KindAddMatch     = "add_match"
	KindDeleteMatch  = "delete_match"
	KindApplyPenalty = "apply_penalty"
	KindSnapshot     = "snapshot"
)

// MatchRequest is an admin's match submission.
type MatchRequest struct {
	Winner         model.Faction            `json:"winner"`
	Players        []model.ParticipantInput `json:"players"`
	IdempotencyKey string                   `json:"-"`
}

// AddPlayer registers a new player with zeroed counters.
func (s *Service) AddPlayer(ctx context.Context, name string) (model.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Player{}, model.NewValidationError(map[string]string{"name": "must not be empty"})
	}
	v, err := s.submit(ctx, KindAddPlayer, name)
	if err != nil {
		return model.Player{}, err
	}
	return v.(model.Player), nil
}

// AddMatch records a match and applies its result to every participant.
// A repeated IdempotencyKey returns the match the first call created.
func (s *Service) AddMatch(ctx context.Context, req MatchRequest) (model.Match, error) {
	req = normalizeMatch(req)
	if err := model.ValidateMatchInput(req.Winner, req.Players); err != nil {
		return model.Match{}, err
	}
	v, err := s.submit(ctx, KindAddMatch, req)
	if err != nil {
		return model.Match{}, err
	}
	return v.(model.Match), nil
}

// DeleteMatch removes a match and reverses its effect on every participant.
// It returns the deleted record.
func (s *Service) DeleteMatch(ctx context.Context, id string) (model.Match, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Match{}, model.NewValidationError(map[string]string{"id": "must not be empty"})
	}
	v, err := s.submit(ctx, KindDeleteMatch, id)
	if err != nil {
		return model.Match{}, err
	}
	return v.(model.Match), nil
}

// ApplyPenalty docks a player's rating. It is not reversible.
func (s *Service) ApplyPenalty(ctx context.Context, playerID string) (model.Player, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return model.Player{}, model.NewValidationError(map[string]string{"id": "must not be empty"})
	}
	v, err := s.submit(ctx, KindApplyPenalty, playerID)
	if err != nil {
		return model.Player{}, err
	}
	return v.(model.Player), nil
}

// normalizeMatch accepts names in any case and trims ids.
func normalizeMatch(req MatchRequest) MatchRequest {
	if f, err := model.ParseFaction(string(req.Winner)); err == nil {
		req.Winner = f
	}
	players := make([]model.ParticipantInput, len(req.Players))
	for i, p := range req.Players {
		p.PlayerID = strings.TrimSpace(p.PlayerID)
		if r, err := model.ParseRole(string(p.Role)); err == nil {
			p.Role = r
		}
		players[i] = p
	}
	req.Players = players
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	return req
}

// execute runs on the single writer goroutine.
func (s *Service) execute(ctx context.Context, cmd queue.Command) (any, error) {
	switch cmd.Kind {
	case KindAddPlayer:
		return s.addPlayer(ctx, cmd.Payload.(string))
	case KindAddMatch:
		return s.addMatch(ctx, cmd.Payload.(MatchRequest))
	case KindDeleteMatch:
		return s.deleteMatch(ctx, cmd.Payload.(string))
	case KindApplyPenalty:
		return s.applyPenalty(ctx, cmd.Payload.(string))
	case KindSnapshot:
		return s.readSnapshot(ctx)
	}
	return nil, fmt.Errorf("unknown command %q", cmd.Kind)
}

func (s *Service) addPlayer(ctx context.Context, name string) (model.Player, error) {
	p, err := s.store.CreatePlayer(ctx, model.NewPlayer("", name, s.now()))
	if err != nil {
		return model.Player{}, fmt.Errorf("create player: %w", err)
	}
	metrics.RecordPlayerCreated()
	s.logger.Info(ctx, "player added",
		logger.String("player_id", p.ID),
		logger.String("name", p.Name),
	)
	return p, nil
}

func (s *Service) addMatch(ctx context.Context, req MatchRequest) (model.Match, error) {
	if id, ok := s.deduper.Lookup(ctx, req.IdempotencyKey); ok {
		m, err := s.store.GetMatch(ctx, id)
		if err == nil {
			metrics.RecordIdempotentReplay()
			s.logger.Debug(ctx, "idempotent replay",
				logger.String("key", req.IdempotencyKey),
				logger.String("match_id", id),
			)
			return m, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return model.Match{}, fmt.Errorf("get match: %w", err)
		}
		s.deduper.Forget(ctx, req.IdempotencyKey)
	}

	// Names are snapshotted now; later renames do not rewrite history.
	m := model.Match{Date: s.now().UTC(), Winner: req.Winner}
	unknown := map[string]string{}
	for i, in := range req.Players {
		p, err := s.store.GetPlayer(ctx, in.PlayerID)
		if errors.Is(err, repository.ErrNotFound) {
			unknown[fmt.Sprintf("players[%d]", i)] = fmt.Sprintf("unknown player %s", in.PlayerID)
			continue
		}
		if err != nil {
			return model.Match{}, fmt.Errorf("get player: %w", err)
		}
		m.Players = append(m.Players, model.Participant{PlayerID: p.ID, PlayerName: p.Name, Role: in.Role})
	}
	if len(unknown) > 0 {
		return model.Match{}, model.NewValidationError(unknown)
	}

	sg := saga.New("add_match", saga.WithLogger(s.logger))
	sg.Add(saga.Step{
		Name: "create_match",
		Do: func(ctx context.Context) error {
			created, err := s.store.CreateMatch(ctx, m)
			if err != nil {
				return err
			}
			m = created
			return nil
		},
		Compensate: func(ctx context.Context) error {
			return s.store.DeleteMatch(ctx, m.ID)
		},
	})
	for _, p := range m.Players {
		id, d := p.PlayerID, scoring.ParticipantDelta(m.Winner, p.Role)
		sg.Add(saga.Step{
			Name: "apply:" + id,
			Do: func(ctx context.Context) error {
				_, err := s.store.IncrementPlayer(ctx, id, d)
				return err
			},
			Compensate: func(ctx context.Context) error {
				_, err := s.store.IncrementPlayer(ctx, id, d.Negate())
				return err
			},
		})
	}
	if err := sg.Run(ctx); err != nil {
		return model.Match{}, err
	}

	s.deduper.Record(ctx, req.IdempotencyKey, m.ID)
	metrics.RecordMatchRecorded()
	s.logger.Info(ctx, "match recorded",
		logger.String("match_id", m.ID),
		logger.String("winner", string(m.Winner)),
		logger.Int("players", len(m.Players)),
	)
	return m, nil
}

// deleteMatch removes the record first and then reverses each participant.
// A reversal failure recreates the record and re-applies the reversed deltas.
func (s *Service) deleteMatch(ctx context.Context, id string) (model.Match, error) {
	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		return model.Match{}, fmt.Errorf("get match: %w", err)
	}

	sg := saga.New("delete_match", saga.WithLogger(s.logger))
	sg.Add(saga.Step{
		Name: "delete_match",
		Do: func(ctx context.Context) error {
			return s.store.DeleteMatch(ctx, m.ID)
		},
		Compensate: func(ctx context.Context) error {
			_, err := s.store.CreateMatch(ctx, m)
			return err
		},
	})
	for _, p := range m.Players {
		pid, d := p.PlayerID, scoring.ReversalDelta(m.Winner, p.Role)
		var skipped bool
		sg.Add(saga.Step{
			Name: "reverse:" + pid,
			Do: func(ctx context.Context) error {
				_, err := s.store.IncrementPlayer(ctx, pid, d)
				if errors.Is(err, repository.ErrNotFound) {
					// An orphan contribution has nothing to reverse.
					skipped = true
					s.logger.Warn(ctx, "participant missing, nothing to reverse",
						logger.String("match_id", m.ID),
						logger.String("player_id", pid),
					)
					return nil
				}
				return err
			},
			Compensate: func(ctx context.Context) error {
				if skipped {
					return nil
				}
				_, err := s.store.IncrementPlayer(ctx, pid, d.Negate())
				return err
			},
		})
	}
	if err := sg.Run(ctx); err != nil {
		return model.Match{}, err
	}

	s.deduper.ForgetResult(ctx, m.ID)
	metrics.RecordMatchDeleted()
	s.logger.Info(ctx, "match deleted",
		logger.String("match_id", m.ID),
		logger.Int("players", len(m.Players)),
	)
	return m, nil
}

func (s *Service) applyPenalty(ctx context.Context, playerID string) (model.Player, error) {
	p, err := s.store.IncrementPlayer(ctx, playerID, scoring.PenaltyDelta())
	if err != nil {
		return model.Player{}, fmt.Errorf("apply penalty: %w", err)
	}
	metrics.RecordPenaltyApplied()
	s.logger.Info(ctx, "penalty applied",
		logger.String("player_id", p.ID),
		logger.Int("elo", p.Elo),
		logger.Int("penalties", p.PenaltyCount),
	)
	return p, nil
}

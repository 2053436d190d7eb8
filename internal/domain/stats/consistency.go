// Package stats rebuilds player aggregates from the match log, compares them
// with the stored rows, and derives the read-side views.
package stats

import (
	"cmp"
	"slices"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/scoring"
)

// tally is everything one player contributed across the match log.
type tally struct {
	delta    model.Delta
	outcomes []bool
	name     string
}

// tallies walks the log once and buckets contributions by player id.
func tallies(matches []model.Match) map[string]*tally {
	out := make(map[string]*tally)
	for _, m := range matches {
		for _, p := range m.Players {
			t, ok := out[p.PlayerID]
			if !ok {
				t = &tally{name: p.PlayerName}
				out[p.PlayerID] = t
			}
			t.delta = t.delta.Add(scoring.ParticipantDelta(m.Winner, p.Role))
			t.outcomes = append(t.outcomes, scoring.Won(m.Winner, p.Role))
		}
	}
	return out
}

// recomputeOne rebuilds a single row. Identity and the penalty count come from
// the stored row; penalties are not part of the match log.
func recomputeOne(stored model.Player, t *tally) model.Player {
	p := model.NewPlayer(stored.ID, stored.Name, stored.CreatedAt)
	p.PenaltyCount = stored.PenaltyCount
	var outcomes []bool
	if t != nil {
		p = p.Apply(model.Delta{
			TotalGames:   t.delta.TotalGames,
			Wins:         t.delta.Wins,
			LiberalGames: t.delta.LiberalGames,
			LiberalWins:  t.delta.LiberalWins,
			FascistGames: t.delta.FascistGames,
			FascistWins:  t.delta.FascistWins,
			HitlerGames:  t.delta.HitlerGames,
			HitlerWins:   t.delta.HitlerWins,
		})
		outcomes = t.outcomes
	}
	p.Elo = scoring.DeriveElo(outcomes, stored.PenaltyCount)
	return p
}

// Recompute returns each player's row rebuilt from matches alone.
func Recompute(players []model.Player, matches []model.Match) []model.Player {
	byPlayer := tallies(matches)
	out := make([]model.Player, len(players))
	for i, p := range players {
		out[i] = recomputeOne(p, byPlayer[p.ID])
	}
	return out
}

// CheckConsistency compares stored rows with their recomputation and reports
// every field that differs. It never mutates its inputs. Match entries that
// reference a player row that does not exist are reported as orphans.
func CheckConsistency(players []model.Player, matches []model.Match) []model.Discrepancy {
	byPlayer := tallies(matches)

	var out []model.Discrepancy
	known := make(map[string]struct{}, len(players))
	for _, stored := range players {
		known[stored.ID] = struct{}{}
		calc := recomputeOne(stored, byPlayer[stored.ID])
		for _, f := range model.CheckedFields {
			if s, c := stored.Value(f), calc.Value(f); s != c {
				out = append(out, model.Discrepancy{
					PlayerID:   stored.ID,
					PlayerName: stored.Name,
					Field:      f,
					Stored:     s,
					Calculated: c,
				})
			}
		}
	}

	var orphans []model.Discrepancy
	for id, t := range byPlayer {
		if _, ok := known[id]; ok {
			continue
		}
		orphans = append(orphans, model.Discrepancy{
			PlayerID:   id,
			PlayerName: t.name,
			Field:      model.FieldOrphan,
			Calculated: t.delta.TotalGames,
		})
	}
	slices.SortFunc(orphans, func(a, b model.Discrepancy) int { return cmp.Compare(a.PlayerID, b.PlayerID) })

	return append(out, orphans...)
}

// Package scoring holds the outcome predicate and the rating rules. Every
// stored counter and every recomputation derives from the functions here.
package scoring

import "github.com/okian/scoreboard/internal/domain/model"

// Rating constants. They are part of the exported data format and must not change.
const (
	WinPoints     = 10
	LossPoints    = 10
	PenaltyPoints = 5
)

// Won reports whether a participant with role won a match taken by winner.
func Won(winner model.Faction, role model.Role) bool {
	switch winner {
	case model.FactionLiberal:
		return role == model.RoleLiberal
	case model.FactionFascist:
		return role == model.RoleFascist || role == model.RoleHitler
	}
	return false
}

// EloChange is the rating movement of a single result.
func EloChange(won bool) int {
	if won {
		return WinPoints
	}
	return -LossPoints
}

// DeriveElo folds outcomes into a rating. The fold is commutative, so the
// order of outcomes does not matter.
func DeriveElo(outcomes []bool, penaltyCount int) int {
	elo := model.BaseElo
	for _, won := range outcomes {
		elo += EloChange(won)
	}
	return elo - PenaltyPoints*penaltyCount
}

// ParticipantDelta is what recording one match does to one participant's row.
func ParticipantDelta(winner model.Faction, role model.Role) model.Delta {
	won := Won(winner, role)
	d := model.Delta{TotalGames: 1, Elo: EloChange(won)}
	win := 0
	if won {
		win = 1
	}
	d.Wins = win
	switch role {
	case model.RoleLiberal:
		d.LiberalGames, d.LiberalWins = 1, win
	case model.RoleFascist:
		d.FascistGames, d.FascistWins = 1, win
	case model.RoleHitler:
		d.HitlerGames, d.HitlerWins = 1, win
	}
	return d
}

// ReversalDelta undoes ParticipantDelta for the same winner and role.
func ReversalDelta(winner model.Faction, role model.Role) model.Delta {
	return ParticipantDelta(winner, role).Negate()
}

// PenaltyDelta is what one penalty does to a player's row.
func PenaltyDelta() model.Delta {
	return model.Delta{Elo: -PenaltyPoints, PenaltyCount: 1}
}

// MatchDeltas maps each participant of m to its delta.
func MatchDeltas(m model.Match) map[string]model.Delta {
	out := make(map[string]model.Delta, len(m.Players))
	for _, p := range m.Players {
		out[p.PlayerID] = ParticipantDelta(m.Winner, p.Role)
	}
	return out
}

package model

// Delta is a signed increment over the numeric fields of a Player.
// Stores apply it with increment semantics, never as an overwrite.
type Delta struct {
	TotalGames   int `json:"totalGames,omitempty"`
	Wins         int `json:"wins,omitempty"`
	Elo          int `json:"elo,omitempty"`
	LiberalGames int `json:"liberalGames,omitempty"`
	LiberalWins  int `json:"liberalWins,omitempty"`
	FascistGames int `json:"fascistGames,omitempty"`
	FascistWins  int `json:"fascistWins,omitempty"`
	HitlerGames  int `json:"hitlerGames,omitempty"`
	HitlerWins   int `json:"hitlerWins,omitempty"`
	PenaltyCount int `json:"penaltyCount,omitempty"`
}

// Negate returns the inverse delta.
func (d Delta) Negate() Delta {
	return Delta{
		TotalGames:   -d.TotalGames,
		Wins:         -d.Wins,
		Elo:          -d.Elo,
		LiberalGames: -d.LiberalGames,
		LiberalWins:  -d.LiberalWins,
		FascistGames: -d.FascistGames,
		FascistWins:  -d.FascistWins,
		HitlerGames:  -d.HitlerGames,
		HitlerWins:   -d.HitlerWins,
		PenaltyCount: -d.PenaltyCount,
	}
}

// Add sums two deltas field by field.
func (d Delta) Add(o Delta) Delta {
	return Delta{
		TotalGames:   d.TotalGames + o.TotalGames,
		Wins:         d.Wins + o.Wins,
		Elo:          d.Elo + o.Elo,
		LiberalGames: d.LiberalGames + o.LiberalGames,
		LiberalWins:  d.LiberalWins + o.LiberalWins,
		FascistGames: d.FascistGames + o.FascistGames,
		FascistWins:  d.FascistWins + o.FascistWins,
		HitlerGames:  d.HitlerGames + o.HitlerGames,
		HitlerWins:   d.HitlerWins + o.HitlerWins,
		PenaltyCount: d.PenaltyCount + o.PenaltyCount,
	}
}

// IsZero reports whether d changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

package model

import "time"

// BaseElo is the rating of a player with no results and no penalties.
const BaseElo = 1000

// Player is the mutable aggregate row kept per player.
type Player struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	TotalGames   int       `json:"totalGames"`
	Wins         int       `json:"wins"`
	Elo          int       `json:"elo"`
	LiberalGames int       `json:"liberalGames"`
	LiberalWins  int       `json:"liberalWins"`
	FascistGames int       `json:"fascistGames"`
	FascistWins  int       `json:"fascistWins"`
	HitlerGames  int       `json:"hitlerGames"`
	HitlerWins   int       `json:"hitlerWins"`
	PenaltyCount int       `json:"penaltyCount"`
}

// NewPlayer returns a player with zeroed counters and the base rating.
func NewPlayer(id, name string, createdAt time.Time) Player {
	return Player{ID: id, Name: name, CreatedAt: createdAt, Elo: BaseElo}
}

// Losses is derived; it is never stored.
func (p Player) Losses() int {
	return p.TotalGames - p.Wins
}

// RoleGames returns the games counter for r.
func (p Player) RoleGames(r Role) int {
	switch r {
	case RoleLiberal:
		return p.LiberalGames
	case RoleFascist:
		return p.FascistGames
	case RoleHitler:
		return p.HitlerGames
	}
	return 0
}

// RoleWins returns the wins counter for r.
func (p Player) RoleWins(r Role) int {
	switch r {
	case RoleLiberal:
		return p.LiberalWins
	case RoleFascist:
		return p.FascistWins
	case RoleHitler:
		return p.HitlerWins
	}
	return 0
}

// Apply returns a copy of p with d added to every counter.
func (p Player) Apply(d Delta) Player {
	p.TotalGames += d.TotalGames
	p.Wins += d.Wins
	p.Elo += d.Elo
	p.LiberalGames += d.LiberalGames
	p.LiberalWins += d.LiberalWins
	p.FascistGames += d.FascistGames
	p.FascistWins += d.FascistWins
	p.HitlerGames += d.HitlerGames
	p.HitlerWins += d.HitlerWins
	p.PenaltyCount += d.PenaltyCount
	return p
}

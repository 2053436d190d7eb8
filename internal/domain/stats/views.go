package stats

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/scoring"
)

// Rate is wins/games as a percentage; zero games is 0.
func Rate(wins, games int) float64 {
	if games <= 0 {
		return 0
	}
	return float64(wins) / float64(games) * 100
}

// FormatRate renders a percentage with one decimal, and "0%" for zero games.
func FormatRate(wins, games int) string {
	if games <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", Rate(wins, games))
}

// LeaderboardRow is one ranked line of the leaderboard.
type LeaderboardRow struct {
	Rank         int    `json:"rank"`
	PlayerID     string `json:"playerId"`
	Name         string `json:"name"`
	TotalGames   int    `json:"totalGames"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	PenaltyCount int    `json:"penaltyCount"`
	Elo          int    `json:"elo"`
	WinRate      string `json:"winRate"`
}

// SortForLeaderboard orders players by wins, then elo, then name.
func SortForLeaderboard(players []model.Player) {
	slices.SortStableFunc(players, func(a, b model.Player) int {
		return cmp.Or(
			cmp.Compare(b.Wins, a.Wins),
			cmp.Compare(b.Elo, a.Elo),
			strings.Compare(a.Name, b.Name),
			strings.Compare(a.ID, b.ID),
		)
	})
}

// Leaderboard ranks players. limit <= 0 returns everyone.
func Leaderboard(players []model.Player, limit int) []LeaderboardRow {
	sorted := append([]model.Player(nil), players...)
	SortForLeaderboard(sorted)
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	rows := make([]LeaderboardRow, len(sorted))
	for i, p := range sorted {
		rows[i] = LeaderboardRow{
			Rank:         i + 1,
			PlayerID:     p.ID,
			Name:         p.Name,
			TotalGames:   p.TotalGames,
			Wins:         p.Wins,
			Losses:       p.Losses(),
			PenaltyCount: p.PenaltyCount,
			Elo:          p.Elo,
			WinRate:      FormatRate(p.Wins, p.TotalGames),
		}
	}
	return rows
}

// RoleRow is one line of a per-role win-rate table.
type RoleRow struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Games    int    `json:"games"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	WinRate  string `json:"winRate"`
}

// RoleTable lists players who played role, best win rate first.
func RoleTable(players []model.Player, role model.Role) []RoleRow {
	var played []model.Player
	for _, p := range players {
		if p.RoleGames(role) > 0 {
			played = append(played, p)
		}
	}
	slices.SortStableFunc(played, func(a, b model.Player) int {
		return cmp.Or(
			cmp.Compare(Rate(b.RoleWins(role), b.RoleGames(role)), Rate(a.RoleWins(role), a.RoleGames(role))),
			cmp.Compare(b.RoleGames(role), a.RoleGames(role)),
			strings.Compare(a.Name, b.Name),
		)
	})

	rows := make([]RoleRow, len(played))
	for i, p := range played {
		games, wins := p.RoleGames(role), p.RoleWins(role)
		rows[i] = RoleRow{
			Rank:     i + 1,
			PlayerID: p.ID,
			Name:     p.Name,
			Games:    games,
			Wins:     wins,
			Losses:   games - wins,
			WinRate:  FormatRate(wins, games),
		}
	}
	return rows
}

// FactionRow is how often one faction won.
type FactionRow struct {
	Faction model.Faction `json:"faction"`
	Wins    int           `json:"wins"`
	Share   string        `json:"share"`
}

// FactionStats summarizes winners over the whole log.
type FactionStats struct {
	TotalMatches int          `json:"totalMatches"`
	Factions     []FactionRow `json:"factions"`
}

// Factions counts match winners per faction.
func Factions(matches []model.Match) FactionStats {
	counts := make(map[model.Faction]int, len(model.Factions))
	for _, m := range matches {
		counts[m.Winner]++
	}
	out := FactionStats{TotalMatches: len(matches)}
	for _, f := range model.Factions {
		out.Factions = append(out.Factions, FactionRow{
			Faction: f,
			Wins:    counts[f],
			Share:   FormatRate(counts[f], len(matches)),
		})
	}
	return out
}

// SortMatchesNewestFirst orders by date descending, ties by id.
func SortMatchesNewestFirst(matches []model.Match) {
	slices.SortStableFunc(matches, func(a, b model.Match) int {
		return cmp.Or(b.Date.Compare(a.Date), strings.Compare(b.ID, a.ID))
	})
}

// HistoryEntry is one match from a single player's point of view.
type HistoryEntry struct {
	MatchID string              `json:"matchId"`
	Date    time.Time           `json:"date"`
	Winner  model.Faction       `json:"winner"`
	Role    model.Role          `json:"role"`
	Won     bool                `json:"won"`
	Players []model.Participant `json:"players"`
}

// PlayerHistory is a player's record plus their recent matches.
type PlayerHistory struct {
	Player       model.Player   `json:"player"`
	WinRate      string         `json:"winRate"`
	TotalMatches int            `json:"totalMatches"`
	Form         string         `json:"form"`
	Matches      []HistoryEntry `json:"matches"`
}

// History collects player's matches newest first. limit caps Matches and
// formLimit caps the W/L strip; zero or less means no cap.
func History(player model.Player, matches []model.Match, limit, formLimit int) PlayerHistory {
	var mine []model.Match
	for _, m := range matches {
		if _, ok := m.Participant(player.ID); ok {
			mine = append(mine, m)
		}
	}
	SortMatchesNewestFirst(mine)

	h := PlayerHistory{
		Player:       player,
		WinRate:      FormatRate(player.Wins, player.TotalGames),
		TotalMatches: len(mine),
	}

	var form strings.Builder
	for i, m := range mine {
		p, _ := m.Participant(player.ID)
		won := scoring.Won(m.Winner, p.Role)
		if formLimit <= 0 || i < formLimit {
			if won {
				form.WriteByte('W')
			} else {
				form.WriteByte('L')
			}
		}
		if limit > 0 && i >= limit {
			continue
		}
		h.Matches = append(h.Matches, HistoryEntry{
			MatchID: m.ID,
			Date:    m.Date,
			Winner:  m.Winner,
			Role:    p.Role,
			Won:     won,
			Players: m.Players,
		})
	}
	h.Form = form.String()
	return h
}

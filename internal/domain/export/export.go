// Package export renders the scoreboard as the three CSV files the admin
// panel offers for download.
//
// Rows are joined with commas and lines with "\n" without any quoting, so a
// name containing a comma shifts its columns. Consumers rely on that exact
// byte format.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
)

// Kind names one of the exports.
type Kind string

const (
	KindLeaderboard Kind = "leaderboard"
	KindRoles       Kind = "roles"
	KindMatches     Kind = "matches"
)

// Kinds lists every export.
var Kinds = []Kind{KindLeaderboard, KindRoles, KindMatches}

// ParseKind maps a download name such as "roles" or "roles.csv" to its Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSuffix(strings.ToLower(s), ".csv"))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown export %q", s)
}

// FileName is the download name for kind on day.
func FileName(kind Kind, day time.Time) string {
	name := string(kind)
	if kind == KindRoles {
		name = "role_stats"
	}
	return fmt.Sprintf("%s_%s.csv", name, day.UTC().Format("2006-01-02"))
}

var (
	leaderboardHeader = []string{"Name", "TotalGames", "Wins", "Losses", "PenaltyCount", "Elo"}
	rolesHeader       = []string{"Name", "LiberalGames", "LiberalWins", "FascistGames", "FascistWins", "HitlerGames", "HitlerWins"}
	matchesHeader     = []string{"Date", "Winner", "Players"}
)

// WriteLeaderboard writes one line per player in the given order.
func WriteLeaderboard(w io.Writer, players []model.Player) error {
	rows := make([][]string, 0, len(players))
	for _, p := range players {
		rows = append(rows, []string{
			p.Name,
			strconv.Itoa(p.TotalGames),
			strconv.Itoa(p.Wins),
			strconv.Itoa(p.Losses()),
			strconv.Itoa(p.PenaltyCount),
			strconv.Itoa(p.Elo),
		})
	}
	return write(w, leaderboardHeader, rows)
}

// WriteRoleStats writes the per-role counters of each player.
func WriteRoleStats(w io.Writer, players []model.Player) error {
	rows := make([][]string, 0, len(players))
	for _, p := range players {
		rows = append(rows, []string{
			p.Name,
			strconv.Itoa(p.LiberalGames),
			strconv.Itoa(p.LiberalWins),
			strconv.Itoa(p.FascistGames),
			strconv.Itoa(p.FascistWins),
			strconv.Itoa(p.HitlerGames),
			strconv.Itoa(p.HitlerWins),
		})
	}
	return write(w, rolesHeader, rows)
}

// WriteMatches writes one line per match in the given order.
func WriteMatches(w io.Writer, matches []model.Match) error {
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{
			m.Date.UTC().Format(time.RFC3339),
			string(m.Winner),
			Participants(m.Players),
		})
	}
	return write(w, matchesHeader, rows)
}

// Participants renders "Name (Role)" pairs joined by "; ".
func Participants(ps []model.Participant) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = fmt.Sprintf("%s (%s)", p.PlayerName, p.Role)
	}
	return strings.Join(parts, "; ")
}

func write(w io.Writer, header []string, rows [][]string) error {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(header, ","))
	for _, r := range rows {
		lines = append(lines, strings.Join(r, ","))
	}
	if _, err := io.WriteString(w, strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

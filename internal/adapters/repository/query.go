package repository

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/okian/scoreboard/internal/domain/model"
)

// Sort keys accepted by Query.OrderBy.
const (
	OrderByName       = "name"
	OrderByWins       = "wins"
	OrderByElo        = "elo"
	OrderByTotalGames = "totalGames"
	OrderByCreatedAt  = "createdAt"
	OrderByDate       = "date"
)

var (
	playerOrderKeys = []string{OrderByName, OrderByWins, OrderByElo, OrderByTotalGames, OrderByCreatedAt}
	matchOrderKeys  = []string{OrderByDate}
)

// Query selects a window of a list. Ties on OrderBy are broken by id, so the
// order is total. Limit 0 means no limit.
type Query struct {
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// PlayerQuery validates q for players and fills the default sort key.
func PlayerQuery(q Query) (Query, error) {
	return q.normalize(playerOrderKeys, OrderByName)
}

// MatchQuery validates q for matches and fills the default sort key.
func MatchQuery(q Query) (Query, error) {
	return q.normalize(matchOrderKeys, OrderByDate)
}

func (q Query) normalize(allowed []string, def string) (Query, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return q, fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}
	if q.OrderBy == "" {
		q.OrderBy = def
		return q, nil
	}
	for _, k := range allowed {
		if strings.EqualFold(q.OrderBy, k) {
			q.OrderBy = k
			return q, nil
		}
	}
	return q, fmt.Errorf("%w: unknown sort key %q", ErrInvalidQuery, q.OrderBy)
}

// window applies Offset and Limit to a slice length.
func (q Query) window(n int) (lo, hi int) {
	lo = min(q.Offset, n)
	hi = n
	if q.Limit > 0 && lo+q.Limit < hi {
		hi = lo + q.Limit
	}
	return lo, hi
}

func comparePlayers(key string, a, b model.Player) int {
	switch key {
	case OrderByWins:
		return cmp.Compare(a.Wins, b.Wins)
	case OrderByElo:
		return cmp.Compare(a.Elo, b.Elo)
	case OrderByTotalGames:
		return cmp.Compare(a.TotalGames, b.TotalGames)
	case OrderByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return strings.Compare(a.Name, b.Name)
	}
}

func sortPlayers(ps []model.Player, q Query) {
	slices.SortStableFunc(ps, func(a, b model.Player) int {
		c := cmp.Or(comparePlayers(q.OrderBy, a, b), strings.Compare(a.ID, b.ID))
		if q.Desc {
			return -c
		}
		return c
	})
}

func sortMatches(ms []model.Match, q Query) {
	slices.SortStableFunc(ms, func(a, b model.Match) int {
		c := cmp.Or(a.Date.Compare(b.Date), strings.Compare(a.ID, b.ID))
		if q.Desc {
			return -c
		}
		return c
	})
}

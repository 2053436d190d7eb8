package simulate

import (
	"math/rand/v2"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/scoring"
)

// Table sizes the game is played at.
const (
	minTable = 5
	maxTable = 10
)

// matchInput is the body of POST /api/admin/matches.
type matchInput struct {
	Winner  model.Faction            `json:"winner"`
	Players []model.ParticipantInput `json:"players"`
}

// tally is what a player's row should read once every match has landed.
type tally struct {
	games int
	wins  int
}

// generator deals random tables from a fixed player pool.
type generator struct {
	rng *rand.Rand
	ids []string
}

func newGenerator(seed uint64, ids []string) *generator {
	return &generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), ids: ids}
}

// fascists returns how many plain Fascists sit at a table of n next to Hitler.
func fascists(n int) int {
	if n < minTable {
		return 0
	}
	return (n - 3) / 2
}

// next deals one match: a shuffled table with one Hitler, the usual number
// of Fascists and Liberals in the remaining seats.
func (g *generator) next() matchInput {
	n := len(g.ids)
	if n > minTable {
		n = minTable + g.rng.IntN(min(maxTable, len(g.ids))-minTable+1)
	}
	seats := make([]string, len(g.ids))
	copy(seats, g.ids)
	g.rng.Shuffle(len(seats), func(i, j int) { seats[i], seats[j] = seats[j], seats[i] })
	seats = seats[:n]

	players := make([]model.ParticipantInput, n)
	f := fascists(n)
	for i, id := range seats {
		role := model.RoleLiberal
		switch {
		case i == 0:
			role = model.RoleHitler
		case i <= f:
			role = model.RoleFascist
		}
		players[i] = model.ParticipantInput{PlayerID: id, Role: role}
	}

	winner := model.FactionLiberal
	if g.rng.IntN(2) == 1 {
		winner = model.FactionFascist
	}
	return matchInput{Winner: winner, Players: players}
}

// expect folds recorded matches into per-player tallies.
func expect(matches []matchInput) map[string]tally {
	out := make(map[string]tally)
	for _, m := range matches {
		for _, p := range m.Players {
			t := out[p.PlayerID]
			t.games++
			if scoring.Won(m.Winner, p.Role) {
				t.wins++
			}
			out[p.PlayerID] = t
		}
	}
	return out
}

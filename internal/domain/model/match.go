package model

import (
	"fmt"
	"strings"
	"time"
)

// Participant is one player's role assignment within a match. PlayerName is
// a snapshot taken when the match was recorded.
type Participant struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Role       Role   `json:"role"`
}

// Match is an immutable result record.
type Match struct {
	ID      string        `json:"id"`
	Date    time.Time     `json:"date"`
	Winner  Faction       `json:"winner"`
	Players []Participant `json:"players"`
}

// Participant looks up playerID in the match.
func (m Match) Participant(playerID string) (Participant, bool) {
	for _, p := range m.Players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return Participant{}, false
}

// ParticipantInput is what an administrator submits per player.
type ParticipantInput struct {
	PlayerID string `json:"playerId"`
	Role     Role   `json:"role"`
}

// ValidateMatchInput checks everything that can be checked without the store.
func ValidateMatchInput(winner Faction, participants []ParticipantInput) error {
	fields := map[string]string{}
	if !winner.Valid() {
		fields["winner"] = "must be Liberal or Fascist"
	}
	if len(participants) == 0 {
		fields["players"] = "at least one player is required"
	}

	seen := make(map[string]struct{}, len(participants))
	for i, p := range participants {
		key := fmt.Sprintf("players[%d]", i)
		id := strings.TrimSpace(p.PlayerID)
		switch {
		case id == "":
			fields[key] = "missing player id"
		case !p.Role.Valid():
			fields[key] = fmt.Sprintf("invalid role %q", p.Role)
		default:
			if _, dup := seen[id]; dup {
				fields[key] = fmt.Sprintf("player %s appears twice", id)
			}
			seen[id] = struct{}{}
		}
	}

	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

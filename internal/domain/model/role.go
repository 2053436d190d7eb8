// Package model contains the domain types shared by the scoreboard layers.
package model

import (
	"fmt"
	"strings"
)

// Faction is the side that wins a match.
type Faction string

const (
	FactionLiberal Faction = "Liberal"
	FactionFascist Faction = "Fascist"
)

// Factions lists every faction in display order.
var Factions = []Faction{FactionLiberal, FactionFascist}

// Valid reports whether f is one of the enumerated factions.
func (f Faction) Valid() bool {
	return f == FactionLiberal || f == FactionFascist
}

// ParseFaction accepts the canonical names case-insensitively, plus the
// Turkish spelling used by older exports.
func ParseFaction(s string) (Faction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "liberal":
		return FactionLiberal, nil
	case "fascist", "faşist", "fasist":
		return FactionFascist, nil
	}
	return "", fmt.Errorf("unknown faction %q", s)
}

// Role is the secret role a participant plays in one match.
type Role string

const (
	RoleLiberal Role = "Liberal"
	RoleFascist Role = "Fascist"
	RoleHitler  Role = "Hitler"
)

// Roles lists every role in display order.
var Roles = []Role{RoleLiberal, RoleFascist, RoleHitler}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleLiberal, RoleFascist, RoleHitler:
		return true
	}
	return false
}

// Faction returns the side the role plays for.
func (r Role) Faction() Faction {
	if r == RoleLiberal {
		return FactionLiberal
	}
	return FactionFascist
}

// ParseRole accepts role names case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "liberal":
		return RoleLiberal, nil
	case "fascist", "faşist", "fasist":
		return RoleFascist, nil
	case "hitler":
		return RoleHitler, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Package repository defines the aggregate store interface, its in-memory
// implementation and the change feed live views are built on.
package repository

import (
	"context"

	"github.com/okian/scoreboard/internal/domain/model"
)

// Store persists players and matches. Implementations must be safe for
// concurrent use; player counters only change through IncrementPlayer.
type Store interface {
	// CreatePlayer inserts p, generating an id when p.ID is empty.
	CreatePlayer(ctx context.Context, p model.Player) (model.Player, error)
	// GetPlayer returns ErrNotFound if the player is unknown.
	GetPlayer(ctx context.Context, id string) (model.Player, error)
	ListPlayers(ctx context.Context, q Query) ([]model.Player, error)
	CountPlayers(ctx context.Context) (int, error)
	// IncrementPlayer adds d to the stored counters in one atomic update and
	// returns the new row.
	IncrementPlayer(ctx context.Context, id string, d model.Delta) (model.Player, error)

	// CreateMatch inserts m, generating an id when m.ID is empty. An
	// existing id is kept so a deleted record can be restored verbatim.
	CreateMatch(ctx context.Context, m model.Match) (model.Match, error)
	GetMatch(ctx context.Context, id string) (model.Match, error)
	DeleteMatch(ctx context.Context, id string) error
	ListMatches(ctx context.Context, q Query) ([]model.Match, error)
	CountMatches(ctx context.Context) (int, error)

	// Subscribe registers fn for every committed write. The returned func
	// unregisters it.
	Subscribe(fn func(Change)) (cancel func())

	Close() error
}

// Entity is what a Change touched.
type Entity string

const (
	EntityPlayer Entity = "player"
	EntityMatch  Entity = "match"
)

// Op is the kind of write.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes one committed write.
type Change struct {
	Entity Entity
	Op     Op
	ID     string
}

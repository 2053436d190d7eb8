package model

// Field names a compared aggregate column.
type Field string

const (
	FieldTotalGames   Field = "totalGames"
	FieldWins         Field = "wins"
	FieldLiberalGames Field = "liberalGames"
	FieldLiberalWins  Field = "liberalWins"
	FieldFascistGames Field = "fascistGames"
	FieldFascistWins  Field = "fascistWins"
	FieldHitlerGames  Field = "hitlerGames"
	FieldHitlerWins   Field = "hitlerWins"
	FieldElo          Field = "elo"

	// FieldOrphan marks match contributions whose player row does not exist.
	FieldOrphan Field = "orphan"
)

// CheckedFields is the comparison order used by the consistency checker.
var CheckedFields = []Field{
	FieldTotalGames,
	FieldWins,
	FieldLiberalGames,
	FieldLiberalWins,
	FieldFascistGames,
	FieldFascistWins,
	FieldHitlerGames,
	FieldHitlerWins,
	FieldElo,
}

// Value reads the counter named by f.
func (p Player) Value(f Field) int {
	switch f {
	case FieldTotalGames:
		return p.TotalGames
	case FieldWins:
		return p.Wins
	case FieldLiberalGames:
		return p.LiberalGames
	case FieldLiberalWins:
		return p.LiberalWins
	case FieldFascistGames:
		return p.FascistGames
	case FieldFascistWins:
		return p.FascistWins
	case FieldHitlerGames:
		return p.HitlerGames
	case FieldHitlerWins:
		return p.HitlerWins
	case FieldElo:
		return p.Elo
	}
	return 0
}

// Discrepancy is a stored aggregate that disagrees with its recomputation.
type Discrepancy struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Field      Field  `json:"field"`
	Stored     int    `json:"storedValue"`
	Calculated int    `json:"calculatedValue"`
}

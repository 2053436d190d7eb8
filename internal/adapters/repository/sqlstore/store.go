package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
)

const playerColumns = `id, name, created_at, total_games, wins, elo,
	liberal_games, liberal_wins, fascist_games, fascist_wins,
	hitler_games, hitler_wins, penalty_count`

// Store is a repository.Store backed by a SQL database.
type Store struct {
	repository.Feed

	db      *sql.DB
	dialect Dialect
	logger  logger.Logger
	newID   func() (string, error)
	now     func() time.Time
}

var _ repository.Store = (*Store)(nil)

// Open connects to dsn, applies migrations and returns a ready store.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	s := &Store{
		dialect: dialect,
		newID:   repository.NewID,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("sqlstore")
	}

	db, err := openDB(ctx, dialect, dsn, s.logger)
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

func (s *Store) backend() string { return string(s.dialect) }

func (s *Store) observe(op string, start time.Time, err *error) {
	repository.Observe(s.backend(), op, start, err)
}

// rebind turns ? placeholders into $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isDuplicate(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (model.Player, error) {
	var (
		p       model.Player
		created int64
	)
	err := row.Scan(&p.ID, &p.Name, &created, &p.TotalGames, &p.Wins, &p.Elo,
		&p.LiberalGames, &p.LiberalWins, &p.FascistGames, &p.FascistWins,
		&p.HitlerGames, &p.HitlerWins, &p.PenaltyCount)
	if err != nil {
		return model.Player{}, err
	}
	p.CreatedAt = time.UnixMilli(created).UTC()
	return p, nil
}

func (s *Store) CreatePlayer(ctx context.Context, p model.Player) (_ model.Player, err error) {
	defer s.observe("create_player", time.Now(), &err)

	if p.ID == "" {
		if p.ID, err = s.newID(); err != nil {
			return model.Player{}, fmt.Errorf("generate id: %w", err)
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.CreatedAt = time.UnixMilli(p.CreatedAt.UnixMilli()).UTC()

	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO players (`+playerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Name, p.CreatedAt.UnixMilli(), p.TotalGames, p.Wins, p.Elo,
		p.LiberalGames, p.LiberalWins, p.FascistGames, p.FascistWins,
		p.HitlerGames, p.HitlerWins, p.PenaltyCount)
	if err != nil {
		if isDuplicate(err) {
			return model.Player{}, fmt.Errorf("%w: player %s", repository.ErrDuplicateID, p.ID)
		}
		return model.Player{}, fmt.Errorf("insert player: %w", err)
	}

	s.Publish(repository.Change{Entity: repository.EntityPlayer, Op: repository.OpCreate, ID: p.ID})
	return p, nil
}

func (s *Store) GetPlayer(ctx context.Context, id string) (_ model.Player, err error) {
	defer s.observe("get_player", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+playerColumns+` FROM players WHERE id = ?`), id)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

func (s *Store) playerOrderColumn(key string) string {
	switch key {
	case repository.OrderByWins:
		return "wins"
	case repository.OrderByElo:
		return "elo"
	case repository.OrderByTotalGames:
		return "total_games"
	case repository.OrderByCreatedAt:
		return "created_at"
	}
	if s.dialect == DialectPostgres {
		return `name COLLATE "C"`
	}
	return "name"
}

// limitClause renders LIMIT/OFFSET; sqlite needs a LIMIT before OFFSET.
func (s *Store) limitClause(q repository.Query) (string, []any) {
	switch {
	case q.Limit > 0:
		return " LIMIT ? OFFSET ?", []any{q.Limit, q.Offset}
	case q.Offset > 0 && s.dialect == DialectSQLite:
		return " LIMIT -1 OFFSET ?", []any{q.Offset}
	case q.Offset > 0:
		return " OFFSET ?", []any{q.Offset}
	}
	return "", nil
}

func direction(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}

func (s *Store) ListPlayers(ctx context.Context, q repository.Query) (_ []model.Player, err error) {
	defer s.observe("list_players", time.Now(), &err)
	if q, err = repository.PlayerQuery(q); err != nil {
		return nil, err
	}

	dir := direction(q.Desc)
	limit, args := s.limitClause(q)
	query := fmt.Sprintf(`SELECT %s FROM players ORDER BY %s %s, id %s%s`,
		playerColumns, s.playerOrderColumn(q.OrderBy), dir, dir, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	out := []model.Player{}
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return out, nil
}

func (s *Store) CountPlayers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return n, nil
}

// IncrementPlayer adds d in a single UPDATE so concurrent writers never
// overwrite each other.
func (s *Store) IncrementPlayer(ctx context.Context, id string, d model.Delta) (_ model.Player, err error) {
	defer s.observe("increment_player", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, s.rebind(`UPDATE players SET
		total_games = total_games + ?,
		wins = wins + ?,
		elo = elo + ?,
		liberal_games = liberal_games + ?,
		liberal_wins = liberal_wins + ?,
		fascist_games = fascist_games + ?,
		fascist_wins = fascist_wins + ?,
		hitler_games = hitler_games + ?,
		hitler_wins = hitler_wins + ?,
		penalty_count = penalty_count + ?
		WHERE id = ?
		RETURNING `+playerColumns),
		d.TotalGames, d.Wins, d.Elo, d.LiberalGames, d.LiberalWins,
		d.FascistGames, d.FascistWins, d.HitlerGames, d.HitlerWins,
		d.PenaltyCount, id)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("increment player: %w", err)
	}

	s.Publish(repository.Change{Entity: repository.EntityPlayer, Op: repository.OpUpdate, ID: id})
	return p, nil
}

func (s *Store) CreateMatch(ctx context.Context, m model.Match) (_ model.Match, err error) {
	defer s.observe("create_match", time.Now(), &err)

	if m.ID == "" {
		if m.ID, err = s.newID(); err != nil {
			return model.Match{}, fmt.Errorf("generate id: %w", err)
		}
	}
	if m.Date.IsZero() {
		m.Date = s.now()
	}
	m.Date = time.UnixMilli(m.Date.UnixMilli()).UTC()
	m.Players = append([]model.Participant(nil), m.Players...)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Match{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO matches (id, played_at, winner) VALUES (?, ?, ?)`),
		m.ID, m.Date.UnixMilli(), string(m.Winner))
	if err != nil {
		if isDuplicate(err) {
			return model.Match{}, fmt.Errorf("%w: match %s", repository.ErrDuplicateID, m.ID)
		}
		return model.Match{}, fmt.Errorf("insert match: %w", err)
	}

	insert := s.rebind(`INSERT INTO match_participants (match_id, position, player_id, player_name, role) VALUES (?, ?, ?, ?, ?)`)
	for i, p := range m.Players {
		if _, err := tx.ExecContext(ctx, insert, m.ID, i, p.PlayerID, p.PlayerName, string(p.Role)); err != nil {
			return model.Match{}, fmt.Errorf("insert participant %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Match{}, fmt.Errorf("commit match: %w", err)
	}

	s.Publish(repository.Change{Entity: repository.EntityMatch, Op: repository.OpCreate, ID: m.ID})
	return m, nil
}

func (s *Store) GetMatch(ctx context.Context, id string) (_ model.Match, err error) {
	defer s.observe("get_match", time.Now(), &err)

	ms, err := s.queryMatches(ctx, `SELECT id, played_at, winner FROM matches WHERE id = ?`, []any{id}, "")
	if err != nil {
		return model.Match{}, fmt.Errorf("get match: %w", err)
	}
	if len(ms) == 0 {
		return model.Match{}, repository.ErrNotFound
	}
	return ms[0], nil
}

func (s *Store) DeleteMatch(ctx context.Context, id string) (err error) {
	defer s.observe("delete_match", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM match_participants WHERE match_id = ?`), id); err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM matches WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	s.Publish(repository.Change{Entity: repository.EntityMatch, Op: repository.OpDelete, ID: id})
	return nil
}

func (s *Store) ListMatches(ctx context.Context, q repository.Query) (_ []model.Match, err error) {
	defer s.observe("list_matches", time.Now(), &err)
	if q, err = repository.MatchQuery(q); err != nil {
		return nil, err
	}

	dir := direction(q.Desc)
	limit, args := s.limitClause(q)
	window := fmt.Sprintf(`SELECT id, played_at, winner FROM matches ORDER BY played_at %s, id %s%s`, dir, dir, limit)
	ms, err := s.queryMatches(ctx, window, args, fmt.Sprintf("m.played_at %s, m.id %s, ", dir, dir))
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return ms, nil
}

// queryMatches joins the match rows selected by inner with their
// participants. order prefixes the participant position in ORDER BY.
func (s *Store) queryMatches(ctx context.Context, inner string, args []any, order string) ([]model.Match, error) {
	query := `SELECT m.id, m.played_at, m.winner, p.player_id, p.player_name, p.role
		FROM (` + inner + `) m
		LEFT JOIN match_participants p ON p.match_id = m.id
		ORDER BY ` + order + `p.position`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Match{}
	for rows.Next() {
		var (
			id, winner           string
			playedAt             int64
			playerID, name, role sql.NullString
		)
		if err := rows.Scan(&id, &playedAt, &winner, &playerID, &name, &role); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, model.Match{
				ID:     id,
				Date:   time.UnixMilli(playedAt).UTC(),
				Winner: model.Faction(winner),
			})
		}
		if playerID.Valid {
			m := &out[len(out)-1]
			m.Players = append(m.Players, model.Participant{
				PlayerID:   playerID.String,
				PlayerName: name.String,
				Role:       model.Role(role.String),
			})
		}
	}
	return out, rows.Err()
}

func (s *Store) CountMatches(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	return n, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

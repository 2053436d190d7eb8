// Package sqlstore implements repository.Store on database/sql for sqlite
// (mattn/go-sqlite3) and postgres (pgx stdlib driver).
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/okian/scoreboard/pkg/logger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// Dialect selects the SQL flavour and driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite3"
}

func (d Dialect) gooseDialect() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// ParseDialect accepts "sqlite", "sqlite3", "postgres" and "postgresql".
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unknown sql dialect %q", s)
}

// openDB connects, tunes and migrates the database.
func openDB(ctx context.Context, dialect Dialect, dsn string, log logger.Logger) (*sql.DB, error) {
	log.Info(ctx, "connecting to database", logger.String("dialect", string(dialect)))

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == DialectSQLite {
		// One connection: an in-memory database exists per connection, and
		// sqlite serializes writers anyway.
		db.SetMaxOpenConns(1)
		if err := optimizeSQLite(ctx, db, log); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to optimize SQLite: %w", err)
		}
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(ctx, db, dialect, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info(ctx, "database connection established")
	return db, nil
}

func runMigrations(ctx context.Context, db *sql.DB, dialect Dialect, log logger.Logger) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{ctx: ctx, log: log})

	if err := goose.SetDialect(dialect.gooseDialect()); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

func optimizeSQLite(ctx context.Context, db *sql.DB, log logger.Logger) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "ON"},
		{"temp_store", "MEMORY"},
	}

	for _, pragma := range pragmas {
		query := fmt.Sprintf("PRAGMA %s = %s", pragma.name, pragma.value)
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to set PRAGMA %s: %w", pragma.name, err)
		}
		log.Debug(ctx, "SQLite pragma set",
			logger.String("pragma", pragma.name),
			logger.String("value", pragma.value),
		)
	}
	return nil
}

// gooseLogger routes goose output through the service logger.
type gooseLogger struct {
	ctx context.Context
	log logger.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Info(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Fatal(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

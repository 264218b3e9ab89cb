package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	Driver string // "sqlite" | "postgres"
	Path   string // sqlite file, e.g. "./data/gate.db"
	DSN    string // postgres connection string
	Env    string // "dev" | "prod"
}

// Open connects to the configured database, verifies the connection and
// applies pending migrations. It returns the dialect the rest of the
// storage layer should speak.
func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	dialect := ParseDialect(cfg.Driver)
	if cfg.Env == "" {
		cfg.Env = "dev"
	}

	var (
		conn *sql.DB
		err  error
	)
	switch dialect {
	case DialectPostgres:
		conn, err = openPostgres(cfg)
	default:
		conn, err = openSQLite(cfg)
	}
	if err != nil {
		return nil, dialect, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, dialect, fmt.Errorf("db ping: %w", err)
	}

	if err := Migrate(ctx, conn, dialect); err != nil {
		_ = conn.Close()
		return nil, dialect, err
	}

	return conn, dialect, nil
}

func openSQLite(cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/gate.db"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	// Per-connection PRAGMAs: foreign keys on, WAL, NORMAL sync and a busy
	// timeout so a slow writer does not surface SQLITE_BUSY to requests.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		cfg.Path,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open sqlite: %w", err)
	}

	// Single connection; writes are serialized by Worker anyway.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	return conn, nil
}

func openPostgres(cfg Config) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres driver selected but no DSN configured")
	}
	conn, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open pgx: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(30 * time.Minute)
	return conn, nil
}

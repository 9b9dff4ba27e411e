package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// DefaultDirPermissions is used when creating the database directory.
const DefaultDirPermissions = 0o755

// SQLiteStore is the default file-backed outcome journal.
type SQLiteStore struct {
	sqlJournal
}

// NewSQLiteStore opens the SQLite database at the configured path, creating its directory
// when missing, and applies migrations.
func NewSQLiteStore(ctx context.Context, opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between concurrent journal writes.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if err := migrate(ctx, db, goose.DialectSQLite3, "migrations/sqlite"); err != nil {
		db.Close()
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore ready", "path", dsn)

	return &SQLiteStore{sqlJournal: newSQLJournal(db, "SQLiteStore", squirrel.Question)}, nil
}

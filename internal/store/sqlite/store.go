// Package sqlite persists bars, indicator snapshots and alert definitions
// in a single SQLite database.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol     TEXT    NOT NULL,
	timeframe  TEXT    NOT NULL,
	open_time  INTEGER NOT NULL,
	open       REAL    NOT NULL,
	high       REAL    NOT NULL,
	low        REAL    NOT NULL,
	close      REAL    NOT NULL,
	volume     REAL    NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, timeframe, open_time)
);

CREATE TABLE IF NOT EXISTS indicator_snapshots (
	symbol     TEXT    NOT NULL,
	timeframe  TEXT    NOT NULL,
	ts         INTEGER NOT NULL,
	data       TEXT    NOT NULL,
	PRIMARY KEY (symbol, timeframe, ts)
);

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT    PRIMARY KEY,
	name         TEXT    NOT NULL,
	symbol       TEXT    NOT NULL,
	comparator   TEXT    NOT NULL,
	threshold    REAL    NOT NULL,
	timeframe    TEXT    NOT NULL DEFAULT '',
	is_active    INTEGER NOT NULL DEFAULT 1,
	is_triggered INTEGER NOT NULL DEFAULT 0,
	triggered_at INTEGER,
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts (symbol, is_active);
`

// Store implements model.BarStore and model.AlertStore.
type Store struct {
	db  *sqlx.DB
	log *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral database.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log = log.With("component", "sqlite")
	log.Info("database opened", "path", path)
	return &Store{db: db, log: log}, nil
}

// Ping checks the connection, for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Opens a SQLite database, creates the schema and hands the connection to
  sqlstore, which holds every query. The PostgreSQL store uses the same
  queries with a different driver and schema.

INTERFACES IMPLEMENTED:
  generic.Store:     Settings, members, fee overrides, payments, arrears runs
  generic.Resetter:  Demo scenario loading

KEY TABLES:
  club_settings:        Singleton row, CHECK (id = 1)
  members:              Member records
  member_fee_settings:  One row per member, FK members(id)
  fee_payments:         PRIMARY KEY (member_id, year), FK members(id)
  arrears_runs:         Scheduler history

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

  ":memory:" databases are limited to a single connection, since every
  new connection would otherwise see its own empty database.

USAGE:
  store, err := sqlite.New("./data/motohub.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  calc := dues.NewCalculator(store, generic.SystemClock{})

MIGRATION:
  Schema is auto-migrated on New(). PostgreSQL deployments use the goose
  migrations in store/postgres instead.

SEE ALSO:
  - store/sqlstore: Queries
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mouros/motohub/store/sqlstore"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	*sqlstore.Store
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{Store: sqlstore.New(db, sqlstore.SQLite)}, nil
}

// migrate creates the database schema.
func migrate(db *sql.DB) error {
	schema := `
	-- Club settings (singleton)
	CREATE TABLE IF NOT EXISTS club_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL DEFAULT '',
		short_name TEXT NOT NULL DEFAULT '',
		founding_date TEXT,
		annual_fee TEXT NOT NULL DEFAULT '60',
		currency TEXT NOT NULL DEFAULT 'EUR',
		fee_start_date TEXT,
		inactive_periods TEXT NOT NULL DEFAULT '[]',
		updated_at TIMESTAMP NOT NULL
	);

	-- Members
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		member_number TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT,
		member_type TEXT NOT NULL DEFAULT 'adult',
		join_date TEXT,
		honorary BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_number
		ON members(member_number);

	-- Per-member fee overrides, created lazily
	CREATE TABLE IF NOT EXISTS member_fee_settings (
		member_id TEXT PRIMARY KEY REFERENCES members(id) ON DELETE CASCADE,
		join_date TEXT,
		exempt_periods TEXT NOT NULL DEFAULT '[]',
		updated_at TIMESTAMP NOT NULL
	);

	-- Payment ledger: at most one row per member and year
	CREATE TABLE IF NOT EXISTS fee_payments (
		member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		year INTEGER NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		paid_date TEXT,
		amount TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL DEFAULT 'EUR',
		receipt_number TEXT,
		notes TEXT,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (member_id, year)
	);

	-- Arrears scheduler runs
	CREATE TABLE IF NOT EXISTS arrears_runs (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		members_checked INTEGER NOT NULL DEFAULT 0,
		members_in_arrears INTEGER NOT NULL DEFAULT 0,
		total_outstanding TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL DEFAULT 'EUR',
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_arrears_runs_started
		ON arrears_runs(started_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the capacity ledger store and the booking repository using
  SQLite. The same patterns apply to PostgreSQL (see store/postgres) with
  row locks instead of a single writer.

INTERFACES IMPLEMENTED:
  generic.CapacityStore: Pool counters and reservations
  booking.Repository:    Contracts, rates, bookings, booking rooms

KEY TABLES:
  pools:          One row per allocation pool, holds current_bookings
  reservations:   One row per (booking, pool) hold
  contracts:      Contract header + JSON config
  rates:          Rate header + JSON config
  bookings:       Booking header
  booking_rooms:  Booking lines (rate, pool, quantity, price)

ATOMICITY:
  WithTx opens the transaction with BEGIN IMMEDIATE (_txlock=immediate), so
  the write lock is taken before the pool rows are read. Check and
  increment therefore happen under the same lock and two commits cannot
  both see the last room.

CONCURRENCY:
  Uses sync.RWMutex for in-process ordering and a single connection, which
  also keeps ":memory:" databases consistent across calls.

USAGE:
  store, err := sqlite.New("./data/engine.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store)
  svc := booking.NewService(store, ledger, quotes, events, logger, cfg)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - generic/store.go: CapacityStore contract
  - booking/repository.go: Repository contract
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Allocation pools (the capacity ledger)
	CREATE TABLE IF NOT EXISTS pools (
		key TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		contract_id TEXT NOT NULL DEFAULT '',
		total_capacity INTEGER NOT NULL CHECK (total_capacity >= 0),
		allows_overbooking BOOLEAN NOT NULL DEFAULT FALSE,
		overbooking_limit INTEGER NOT NULL DEFAULT 0,
		waitlist_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		waitlist_max_size INTEGER NOT NULL DEFAULT 0,
		current_bookings INTEGER NOT NULL DEFAULT 0 CHECK (current_bookings >= 0),
		waitlist_size INTEGER NOT NULL DEFAULT 0 CHECK (waitlist_size >= 0),
		version INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pools_contract
		ON pools(contract_id);

	-- Reservations (one booking's hold on one pool)
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL,
		pool_key TEXT NOT NULL REFERENCES pools(key),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		state TEXT NOT NULL,
		created_at TEXT NOT NULL,
		released_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_booking
		ON reservations(booking_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_booking_pool
		ON reservations(booking_id, pool_key);
	CREATE INDEX IF NOT EXISTS idx_reservations_pool_state
		ON reservations(pool_key, state);

	-- Contracts
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		supplier_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		currency TEXT NOT NULL,
		config_json TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Rates
	CREATE TABLE IF NOT EXISTS rates (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL REFERENCES contracts(id),
		room_group_id TEXT NOT NULL,
		occupancy TEXT NOT NULL,
		board_type TEXT NOT NULL,
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rates_contract
		ON rates(contract_id);

	-- Bookings
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		reference TEXT,
		customer TEXT,
		contract_id TEXT NOT NULL,
		check_in TEXT NOT NULL,
		check_out TEXT NOT NULL,
		status TEXT NOT NULL,
		waitlisted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		cancelled_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_contract
		ON bookings(contract_id);

	-- Booking rooms
	CREATE TABLE IF NOT EXISTS booking_rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		rate_id TEXT NOT NULL,
		pool_key TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		occupancy TEXT NOT NULL,
		price_per_room TEXT NOT NULL,
		total_price TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_booking_rooms_booking
		ON booking_rooms(booking_id);
	CREATE INDEX IF NOT EXISTS idx_booking_rooms_status
		ON booking_rooms(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes all data. Used by tests and the demo reset endpoint.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		DELETE FROM booking_rooms;
		DELETE FROM bookings;
		DELETE FROM reservations;
		DELETE FROM pools;
		DELETE FROM rates;
		DELETE FROM contracts;
	`)
	return err
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

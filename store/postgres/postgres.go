/*
Package postgres provides a PostgreSQL-backed generic.CapacityStore.

PURPOSE:
  Same ledger contract as store/sqlite, for deployments where several
  engine processes share one database. SQLite serializes writers on the
  whole file; here only the pool rows a transaction touches are locked.

ATOMICITY:
  LockPool reads with SELECT ... FOR UPDATE, so the row stays locked until
  the surrounding transaction commits or rolls back. The ledger locks pools
  in sorted key order, which keeps two multi-pool reservations from
  deadlocking each other.

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  ledger := generic.NewLedger(store)

SEE ALSO:
  - store/sqlite: the single-file variant that also holds contracts and bookings
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/warp/allocation-engine/generic"
)

// uniqueViolation is the SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// Store implements generic.CapacityStore using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens the connection pool, pings the server and migrates the schema.
func New(ctx context.Context, connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Minute * 5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS pools (
		key                TEXT PRIMARY KEY,
		label              TEXT NOT NULL DEFAULT '',
		contract_id        TEXT NOT NULL DEFAULT '',
		total_capacity     INTEGER NOT NULL CHECK (total_capacity >= 0),
		allows_overbooking BOOLEAN NOT NULL DEFAULT FALSE,
		overbooking_limit  INTEGER NOT NULL DEFAULT 0,
		waitlist_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
		waitlist_max_size  INTEGER NOT NULL DEFAULT 0,
		current_bookings   INTEGER NOT NULL DEFAULT 0 CHECK (current_bookings >= 0),
		waitlist_size      INTEGER NOT NULL DEFAULT 0 CHECK (waitlist_size >= 0),
		version            BIGINT NOT NULL DEFAULT 0,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_pools_contract ON pools (contract_id);

	CREATE TABLE IF NOT EXISTS reservations (
		id          TEXT PRIMARY KEY,
		booking_id  TEXT NOT NULL,
		pool_key    TEXT NOT NULL REFERENCES pools (key),
		quantity    INTEGER NOT NULL CHECK (quantity > 0),
		state       TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		released_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_booking    ON reservations (booking_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_booking_pool ON reservations (booking_id, pool_key);
	CREATE INDEX IF NOT EXISTS idx_reservations_pool_state ON reservations (pool_key, state);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// POOLS
// =============================================================================

const poolColumns = `key, label, contract_id, total_capacity, allows_overbooking, overbooking_limit,
	waitlist_enabled, waitlist_max_size, current_bookings, waitlist_size, version`

// SavePool upserts the static configuration; counters of an existing row
// are left alone.
func (s *Store) SavePool(ctx context.Context, p generic.PoolCapacity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pools (key, label, contract_id, total_capacity, allows_overbooking, overbooking_limit,
			waitlist_enabled, waitlist_max_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (key) DO UPDATE SET
			label = EXCLUDED.label,
			contract_id = EXCLUDED.contract_id,
			total_capacity = EXCLUDED.total_capacity,
			allows_overbooking = EXCLUDED.allows_overbooking,
			overbooking_limit = EXCLUDED.overbooking_limit,
			waitlist_enabled = EXCLUDED.waitlist_enabled,
			waitlist_max_size = EXCLUDED.waitlist_max_size,
			updated_at = NOW()`,
		string(p.Key), p.Label, string(p.ContractID), p.TotalCapacity, p.AllowsOverbooking, p.OverbookingLimit,
		p.WaitlistEnabled, p.WaitlistMaxSize,
	)
	return err
}

func (s *Store) GetPool(ctx context.Context, key generic.AllocationKey) (generic.PoolCapacity, error) {
	return getPool(ctx, s.db, key, "")
}

func (s *Store) ListPools(ctx context.Context) ([]generic.PoolCapacity, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+poolColumns+" FROM pools ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []generic.PoolCapacity
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// WithTx runs fn in a READ COMMITTED transaction. Row locks taken by
// LockPool are released on commit or rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx generic.CapacityTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&capacityTx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner) (generic.PoolCapacity, error) {
	var p generic.PoolCapacity
	var key, contractID string
	err := row.Scan(&key, &p.Label, &contractID, &p.TotalCapacity, &p.AllowsOverbooking, &p.OverbookingLimit,
		&p.WaitlistEnabled, &p.WaitlistMaxSize, &p.CurrentBookings, &p.WaitlistSize, &p.Version)
	if err != nil {
		return generic.PoolCapacity{}, err
	}
	p.Key = generic.AllocationKey(key)
	p.ContractID = generic.ContractID(contractID)
	return p, nil
}

func getPool(ctx context.Context, q queryer, key generic.AllocationKey, suffix string) (generic.PoolCapacity, error) {
	p, err := scanPool(q.QueryRowContext(ctx, "SELECT "+poolColumns+" FROM pools WHERE key = $1"+suffix, string(key)))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.PoolCapacity{}, fmt.Errorf("%w: %s", generic.ErrPoolNotFound, key)
	}
	return p, err
}

// =============================================================================
// TRANSACTION
// =============================================================================

type capacityTx struct {
	tx *sql.Tx
}

func (c *capacityTx) LockPool(ctx context.Context, key generic.AllocationKey) (generic.PoolCapacity, error) {
	return getPool(ctx, c.tx, key, " FOR UPDATE")
}

func (c *capacityTx) UpdateCounters(ctx context.Context, key generic.AllocationKey, currentBookings, waitlistSize int) error {
	res, err := c.tx.ExecContext(ctx,
		`UPDATE pools SET current_bookings = $1, waitlist_size = $2, version = version + 1, updated_at = NOW() WHERE key = $3`,
		currentBookings, waitlistSize, string(key),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrPoolNotFound, key)
	}
	return nil
}

func (c *capacityTx) Reservations(ctx context.Context, bookingID generic.BookingID) ([]generic.Reservation, error) {
	rows, err := c.tx.QueryContext(ctx,
		`SELECT id, booking_id, pool_key, quantity, state, created_at, released_at
		 FROM reservations WHERE booking_id = $1 ORDER BY pool_key`, string(bookingID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.Reservation
	for rows.Next() {
		var r generic.Reservation
		var bookingID, key, state string
		var releasedAt sql.NullTime
		if err := rows.Scan(&r.ID, &bookingID, &key, &r.Quantity, &state, &r.CreatedAt, &releasedAt); err != nil {
			return nil, err
		}
		r.BookingID = generic.BookingID(bookingID)
		r.Key = generic.AllocationKey(key)
		r.State = generic.ReservationState(state)
		if releasedAt.Valid {
			t := releasedAt.Time.UTC()
			r.ReleasedAt = &t
		}
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *capacityTx) InsertReservation(ctx context.Context, r generic.Reservation) error {
	_, err := c.tx.ExecContext(ctx,
		`INSERT INTO reservations (id, booking_id, pool_key, quantity, state, created_at, released_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, string(r.BookingID), string(r.Key), r.Quantity, string(r.State), r.CreatedAt, nullTime(r.ReleasedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: reservation %s", generic.ErrDuplicateIdempotencyKey, r.ID)
	}
	return err
}

// TransitionReservation is a conditional UPDATE. Under READ COMMITTED a
// second caller blocks on the row lock, re-evaluates the state predicate
// after the first commits and updates nothing.
func (c *capacityTx) TransitionReservation(ctx context.Context, id string, from, to generic.ReservationState, at time.Time) (bool, error) {
	var releasedAt sql.NullTime
	if to == generic.ReservationReleased {
		releasedAt = nullTime(&at)
	}
	res, err := c.tx.ExecContext(ctx,
		`UPDATE reservations SET state = $1, released_at = COALESCE($2, released_at)
		 WHERE id = $3 AND state = $4`,
		string(to), releasedAt, id, string(from),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *capacityTx) SumHeld(ctx context.Context, key generic.AllocationKey, state generic.ReservationState) (int, error) {
	var sum int
	err := c.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM reservations WHERE pool_key = $1 AND state = $2`,
		string(key), string(state),
	).Scan(&sum)
	return sum, err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

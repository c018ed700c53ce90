package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// CAPACITY STORE (generic.CapacityStore interface)
// =============================================================================

const poolColumns = `key, label, contract_id, total_capacity, allows_overbooking, overbooking_limit,
	waitlist_enabled, waitlist_max_size, current_bookings, waitlist_size, version`

// SavePool inserts a pool or updates its configuration. Counters and
// version of an existing pool are left alone.
func (s *Store) SavePool(ctx context.Context, p generic.PoolCapacity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO pools (key, label, contract_id, total_capacity, allows_overbooking, overbooking_limit,
			waitlist_enabled, waitlist_max_size, current_bookings, waitlist_size, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?)
		ON CONFLICT(key) DO UPDATE SET
			label = excluded.label,
			contract_id = excluded.contract_id,
			total_capacity = excluded.total_capacity,
			allows_overbooking = excluded.allows_overbooking,
			overbooking_limit = excluded.overbooking_limit,
			waitlist_enabled = excluded.waitlist_enabled,
			waitlist_max_size = excluded.waitlist_max_size,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(p.Key), p.Label, string(p.ContractID), p.TotalCapacity, p.AllowsOverbooking, p.OverbookingLimit,
		p.WaitlistEnabled, p.WaitlistMaxSize, formatTime(time.Now()),
	)
	return err
}

func (s *Store) GetPool(ctx context.Context, key generic.AllocationKey) (generic.PoolCapacity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPool(ctx, s.db, key)
}

func (s *Store) ListPools(ctx context.Context) ([]generic.PoolCapacity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

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

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx generic.CapacityTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&capacityTx{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
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

func getPool(ctx context.Context, q queryer, key generic.AllocationKey) (generic.PoolCapacity, error) {
	p, err := scanPool(q.QueryRowContext(ctx, "SELECT "+poolColumns+" FROM pools WHERE key = ?", string(key)))
	if errors.Is(err, sql.ErrNoRows) {
		return generic.PoolCapacity{}, fmt.Errorf("%w: %s", generic.ErrPoolNotFound, key)
	}
	return p, err
}

// capacityTx implements generic.CapacityTx. The immediate transaction
// already holds the database write lock, so LockPool is a plain read.
type capacityTx struct {
	tx *sql.Tx
}

func (c *capacityTx) LockPool(ctx context.Context, key generic.AllocationKey) (generic.PoolCapacity, error) {
	return getPool(ctx, c.tx, key)
}

func (c *capacityTx) UpdateCounters(ctx context.Context, key generic.AllocationKey, currentBookings, waitlistSize int) error {
	res, err := c.tx.ExecContext(ctx,
		`UPDATE pools SET current_bookings = ?, waitlist_size = ?, version = version + 1, updated_at = ? WHERE key = ?`,
		currentBookings, waitlistSize, formatTime(time.Now()), string(key),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrPoolNotFound, key)
	}
	return nil
}

func (c *capacityTx) Reservations(ctx context.Context, bookingID generic.BookingID) ([]generic.Reservation, error) {
	rows, err := c.tx.QueryContext(ctx,
		`SELECT id, booking_id, pool_key, quantity, state, created_at, released_at
		 FROM reservations WHERE booking_id = ? ORDER BY pool_key`, string(bookingID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.Reservation
	for rows.Next() {
		var r generic.Reservation
		var bookingID, key, state, createdAt string
		var releasedAt sql.NullString
		if err := rows.Scan(&r.ID, &bookingID, &key, &r.Quantity, &state, &createdAt, &releasedAt); err != nil {
			return nil, err
		}
		r.BookingID = generic.BookingID(bookingID)
		r.Key = generic.AllocationKey(key)
		r.State = generic.ReservationState(state)
		r.CreatedAt = parseTime(createdAt)
		r.ReleasedAt = parseNullTime(releasedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *capacityTx) InsertReservation(ctx context.Context, r generic.Reservation) error {
	_, err := c.tx.ExecContext(ctx,
		`INSERT INTO reservations (id, booking_id, pool_key, quantity, state, created_at, released_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.BookingID), string(r.Key), r.Quantity, string(r.State), formatTime(r.CreatedAt), nullTime(r.ReleasedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: reservation %s", generic.ErrDuplicateIdempotencyKey, r.ID)
	}
	return err
}

func (c *capacityTx) TransitionReservation(ctx context.Context, id string, from, to generic.ReservationState, at time.Time) (bool, error) {
	var releasedAt sql.NullString
	if to == generic.ReservationReleased {
		releasedAt = nullTime(&at)
	}
	res, err := c.tx.ExecContext(ctx,
		`UPDATE reservations SET state = ?, released_at = COALESCE(?, released_at)
		 WHERE id = ? AND state = ?`,
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
		`SELECT COALESCE(SUM(quantity), 0) FROM reservations WHERE pool_key = ? AND state = ?`,
		string(key), string(state),
	).Scan(&sum)
	return sum, err
}

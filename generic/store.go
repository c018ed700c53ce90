/*
store.go - Persistence interface for pool capacity and reservations

PURPOSE:
  Defines the interface between the ledger and the database. The ledger
  owns the rules (admission, idempotency, all-or-nothing); the store owns
  atomicity and row locking.

KEY INTERFACES:
  CapacityStore: Pool configuration + transactional access
  CapacityTx:    Operations valid only inside WithTx (pool rows are locked)

LOCKING CONTRACT:
  LockPool must give the caller exclusive access to the pool row until
  the surrounding WithTx returns:
  - generic/store/memory.go: one mutex around the whole transaction
  - store/sqlite:            BEGIN IMMEDIATE (single writer)
  - store/postgres:          SELECT ... FOR UPDATE

  Callers lock multiple pools in sorted key order to avoid deadlocks.

ATOMIC BATCHES:
  If fn passed to WithTx returns an error, every write made through the
  CapacityTx is rolled back. A multi-room booking is therefore admitted
  completely or not at all.

SEE ALSO:
  - ledger.go: The only caller of CapacityTx
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// RESERVATION - One booking's hold on one pool
// =============================================================================

type ReservationState string

const (
	ReservationActive     ReservationState = "active"
	ReservationWaitlisted ReservationState = "waitlisted"
	ReservationReleased   ReservationState = "released"
)

type Reservation struct {
	ID         string
	BookingID  BookingID
	Key        AllocationKey
	Quantity   int
	State      ReservationState
	CreatedAt  time.Time
	ReleasedAt *time.Time
}

// Holds reports whether the reservation still consumes a counter.
func (r Reservation) Holds() bool {
	return r.State == ReservationActive || r.State == ReservationWaitlisted
}

// =============================================================================
// CAPACITY STORE
// =============================================================================

// CapacityStore persists pool capacity entries and reservations.
type CapacityStore interface {
	// SavePool creates a pool or updates its static configuration.
	// Counters of an existing pool are preserved.
	SavePool(ctx context.Context, pool PoolCapacity) error

	// GetPool returns ErrPoolNotFound if the key is unknown. Read-only, unlocked.
	GetPool(ctx context.Context, key AllocationKey) (PoolCapacity, error)

	// ListPools returns all pools ordered by key.
	ListPools(ctx context.Context) ([]PoolCapacity, error)

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(CapacityTx) error) error
}

// CapacityTx is the transactional view handed to WithTx callbacks.
type CapacityTx interface {
	// LockPool reads the pool and holds its row until the transaction ends.
	LockPool(ctx context.Context, key AllocationKey) (PoolCapacity, error)

	// UpdateCounters writes the mutable counters and bumps Version.
	UpdateCounters(ctx context.Context, key AllocationKey, currentBookings, waitlistSize int) error

	// Reservations returns every reservation recorded for a booking.
	Reservations(ctx context.Context, bookingID BookingID) ([]Reservation, error)

	// InsertReservation records a new hold.
	InsertReservation(ctx context.Context, r Reservation) error

	// TransitionReservation moves a reservation from one state to another
	// and reports whether this transaction made the move. The row stays
	// claimed until the transaction ends; a concurrent caller that expected
	// the same from-state gets false once the first one commits.
	TransitionReservation(ctx context.Context, id string, from, to ReservationState, at time.Time) (bool, error)

	// SumHeld returns the total quantity of reservations in the given state for a pool.
	SumHeld(ctx context.Context, key AllocationKey, state ReservationState) (int, error)
}

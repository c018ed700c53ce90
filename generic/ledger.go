/*
ledger.go - Capacity accounting for shared pools

PURPOSE:
  The AllocationLedger is the single source of truth for how much of a pool
  is sold. Availability checks, dashboards and commits all read the same
  counter; nothing else is allowed to scan bookings and decide on its own.

CRITICAL INVARIANTS:
  1. CONSERVATION: booked <= capacity + overbooking_limit (if allowed, else 0)
  2. ALL-OR-NOTHING: a booking spanning several pools is admitted whole or not at all
  3. IDEMPOTENT RELEASE: release tracks per-booking reservation state, so a
     second release (or a release of an unknown booking) changes nothing
  4. ROUND-TRIP: release(reserve(q)) restores available spots exactly

TWO PHASES:
  Quoting reads Status() without locks (may be slightly stale).
  Committing calls Reserve(), which re-validates capacity inside the same
  locked transaction that increments the counter.

EXAMPLE FLOW:
  Pool capacity 10 shared by Double+Twin, overbooking off.
  1. Reserve booking b1: 6 on pool            -> booked 6
  2. Reserve booking b2: 5 on pool            -> InsufficientCapacity (11 > 10)
  3. Release b1                               -> booked 0
  4. Release b1 again                         -> no-op

SEE ALSO:
  - store.go: Locking contract
  - capacity.go: Admission and health rules
*/
package generic

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER INTERFACE
// =============================================================================

type AllocationLedger interface {
	// Register creates a pool or updates its static configuration.
	Register(ctx context.Context, pool PoolCapacity) (PoolCapacity, error)

	// Reserve admits every line of the request or none of them.
	Reserve(ctx context.Context, req ReserveRequest) ([]Reservation, error)

	// Release returns all capacity held by a booking. Returns the quantity
	// released; zero for unknown or already released bookings.
	Release(ctx context.Context, bookingID BookingID) (int, error)

	// Pool returns the raw capacity entry.
	Pool(ctx context.Context, key AllocationKey) (PoolCapacity, error)

	// Status returns the dashboard view of a pool.
	Status(ctx context.Context, key AllocationKey) (PoolStatus, error)

	// List returns the dashboard view of every pool.
	List(ctx context.Context) ([]PoolStatus, error)

	// Reconcile compares the stored counter with an independent scan.
	Reconcile(ctx context.Context, key AllocationKey, scanned int) (ReconcileReport, error)

	// Repair resets counters from the recorded reservations.
	Repair(ctx context.Context, key AllocationKey) (PoolCapacity, error)
}

// ReserveLine requests Quantity units from one pool.
type ReserveLine struct {
	Key      AllocationKey
	Quantity int
}

type ReserveRequest struct {
	BookingID     BookingID
	Lines         []ReserveLine
	AllowWaitlist bool
}

// ReconcileReport explains the difference between the stored counter and
// the other two views of the same pool.
type ReconcileReport struct {
	Key          AllocationKey
	Stored       int // PoolCapacity.CurrentBookings
	Reservations int // sum of active reservations
	Scanned      int // sum of active booking rooms (caller supplied)
}

// Consistent reports whether all three views agree.
func (r ReconcileReport) Consistent() bool {
	return r.Stored == r.Reservations && r.Stored == r.Scanned
}

// Drift is Scanned - Stored.
func (r ReconcileReport) Drift() int { return r.Scanned - r.Stored }

// =============================================================================
// DEFAULT LEDGER - Implementation using CapacityStore
// =============================================================================

type DefaultLedger struct {
	Store CapacityStore
	Now   func() time.Time
}

func NewLedger(store CapacityStore) *DefaultLedger {
	return &DefaultLedger{Store: store, Now: time.Now}
}

func (l *DefaultLedger) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now().UTC()
}

func (l *DefaultLedger) Register(ctx context.Context, pool PoolCapacity) (PoolCapacity, error) {
	if pool.Key == "" {
		return PoolCapacity{}, fmt.Errorf("%w: pool key is required", ErrInvalidAllocationConfig)
	}
	if pool.TotalCapacity < 0 || pool.OverbookingLimit < 0 || pool.WaitlistMaxSize < 0 {
		return PoolCapacity{}, fmt.Errorf("%w: negative capacity or limit on pool %s", ErrInvalidAllocationConfig, pool.Key)
	}
	if err := l.Store.SavePool(ctx, pool); err != nil {
		return PoolCapacity{}, err
	}
	return l.Store.GetPool(ctx, pool.Key)
}

func (l *DefaultLedger) Reserve(ctx context.Context, req ReserveRequest) ([]Reservation, error) {
	if req.BookingID == "" {
		return nil, fmt.Errorf("%w: booking id is required", ErrInvalidQuantity)
	}
	totals, err := aggregateLines(req.Lines)
	if err != nil {
		return nil, err
	}

	keys := make([]AllocationKey, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	now := l.now()
	var created []Reservation

	err = l.Store.WithTx(ctx, func(tx CapacityTx) error {
		created = nil

		// Phase 1: lock every pool and decide. Nothing is written yet.
		type decision struct {
			pool  PoolCapacity
			qty   int
			state ReservationState
		}
		plan := make([]decision, 0, len(keys))
		for _, key := range keys {
			qty := totals[key]
			pool, err := tx.LockPool(ctx, key)
			if err != nil {
				return err
			}
			switch {
			case pool.CanAdmit(qty):
				plan = append(plan, decision{pool: pool, qty: qty, state: ReservationActive})
			case req.AllowWaitlist && pool.CanWaitlist(qty):
				plan = append(plan, decision{pool: pool, qty: qty, state: ReservationWaitlisted})
			default:
				return &InsufficientCapacityError{
					Key:               key,
					Requested:         qty,
					Booked:            pool.CurrentBookings,
					Capacity:          pool.TotalCapacity,
					OverbookingLimit:  pool.EffectiveOverbookingLimit(),
					WaitlistAvailable: pool.CanWaitlist(qty),
				}
			}
		}

		// Read after the pool locks so a concurrent Reserve of the same
		// booking has either committed or not yet started.
		existing, err := tx.Reservations(ctx, req.BookingID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: booking %s already holds capacity", ErrDuplicateIdempotencyKey, req.BookingID)
		}

		// Phase 2: apply.
		for _, d := range plan {
			booked, waitlist := d.pool.CurrentBookings, d.pool.WaitlistSize
			if d.state == ReservationActive {
				booked += d.qty
			} else {
				waitlist += d.qty
			}
			if err := tx.UpdateCounters(ctx, d.pool.Key, booked, waitlist); err != nil {
				return err
			}
			r := Reservation{
				ID:        uuid.NewString(),
				BookingID: req.BookingID,
				Key:       d.pool.Key,
				Quantity:  d.qty,
				State:     d.state,
				CreatedAt: now,
			}
			if err := tx.InsertReservation(ctx, r); err != nil {
				return err
			}
			created = append(created, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (l *DefaultLedger) Release(ctx context.Context, bookingID BookingID) (int, error) {
	now := l.now()
	released := 0

	err := l.Store.WithTx(ctx, func(tx CapacityTx) error {
		released = 0

		rs, err := tx.Reservations(ctx, bookingID)
		if err != nil {
			return err
		}
		held := make([]Reservation, 0, len(rs))
		for _, r := range rs {
			if r.Holds() {
				held = append(held, r)
			}
		}
		sort.Slice(held, func(i, j int) bool { return held[i].Key < held[j].Key })

		for _, r := range held {
			claimed, err := tx.TransitionReservation(ctx, r.ID, r.State, ReservationReleased, now)
			if err != nil {
				return err
			}
			if !claimed {
				continue // released by a concurrent call
			}
			pool, err := tx.LockPool(ctx, r.Key)
			if err != nil {
				return err
			}
			booked, waitlist := pool.CurrentBookings, pool.WaitlistSize
			if r.State == ReservationActive {
				booked = max(booked-r.Quantity, 0)
				released += r.Quantity
			} else {
				waitlist = max(waitlist-r.Quantity, 0)
			}
			if err := tx.UpdateCounters(ctx, r.Key, booked, waitlist); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

func (l *DefaultLedger) Pool(ctx context.Context, key AllocationKey) (PoolCapacity, error) {
	return l.Store.GetPool(ctx, key)
}

func (l *DefaultLedger) Status(ctx context.Context, key AllocationKey) (PoolStatus, error) {
	pool, err := l.Store.GetPool(ctx, key)
	if err != nil {
		return PoolStatus{}, err
	}
	return StatusOf(pool), nil
}

func (l *DefaultLedger) List(ctx context.Context) ([]PoolStatus, error) {
	pools, err := l.Store.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PoolStatus, len(pools))
	for i, p := range pools {
		out[i] = StatusOf(p)
	}
	return out, nil
}

func (l *DefaultLedger) Reconcile(ctx context.Context, key AllocationKey, scanned int) (ReconcileReport, error) {
	report := ReconcileReport{Key: key, Scanned: scanned}
	err := l.Store.WithTx(ctx, func(tx CapacityTx) error {
		pool, err := tx.LockPool(ctx, key)
		if err != nil {
			return err
		}
		sum, err := tx.SumHeld(ctx, key, ReservationActive)
		if err != nil {
			return err
		}
		report.Stored = pool.CurrentBookings
		report.Reservations = sum
		return nil
	})
	return report, err
}

func (l *DefaultLedger) Repair(ctx context.Context, key AllocationKey) (PoolCapacity, error) {
	err := l.Store.WithTx(ctx, func(tx CapacityTx) error {
		if _, err := tx.LockPool(ctx, key); err != nil {
			return err
		}
		active, err := tx.SumHeld(ctx, key, ReservationActive)
		if err != nil {
			return err
		}
		waiting, err := tx.SumHeld(ctx, key, ReservationWaitlisted)
		if err != nil {
			return err
		}
		return tx.UpdateCounters(ctx, key, active, waiting)
	})
	if err != nil {
		return PoolCapacity{}, err
	}
	return l.Store.GetPool(ctx, key)
}

// aggregateLines sums quantities per pool so two rooms of the same shared
// pool are checked against the counter together.
func aggregateLines(lines []ReserveLine) (map[AllocationKey]int, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no lines to reserve", ErrInvalidQuantity)
	}
	totals := make(map[AllocationKey]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %d on pool %s", ErrInvalidQuantity, line.Quantity, line.Key)
		}
		if line.Key == "" {
			return nil, fmt.Errorf("%w: line without pool key", ErrInvalidAllocationConfig)
		}
		totals[line.Key] += line.Quantity
	}
	return totals, nil
}

package generic_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestLedger(t *testing.T, pools ...generic.PoolCapacity) *generic.DefaultLedger {
	t.Helper()
	ledger := generic.NewLedger(store.NewMemory())
	for _, p := range pools {
		_, err := ledger.Register(context.Background(), p)
		require.NoError(t, err)
	}
	return ledger
}

func pool(key string, capacity int) generic.PoolCapacity {
	return generic.PoolCapacity{Key: generic.AllocationKey(key), TotalCapacity: capacity}
}

func reserve(t *testing.T, l generic.AllocationLedger, booking string, key string, qty int) error {
	t.Helper()
	_, err := l.Reserve(context.Background(), generic.ReserveRequest{
		BookingID: generic.BookingID(booking),
		Lines:     []generic.ReserveLine{{Key: generic.AllocationKey(key), Quantity: qty}},
	})
	return err
}

// =============================================================================
// ADMISSION
// =============================================================================

func TestReserve_SharedPool_RejectsOversell(t *testing.T) {
	// GIVEN: Pool of 10 shared by Double and Twin, 6 Double booked
	// WHEN: Requesting 5 Twin from the same pool
	// THEN: InsufficientCapacity (6 + 5 = 11 > 10)
	ctx := context.Background()
	ledger := newTestLedger(t, pool("double-twin", 10))

	require.NoError(t, reserve(t, ledger, "b-double", "double-twin", 6))

	err := reserve(t, ledger, "b-twin", "double-twin", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrInsufficientCapacity)

	var capErr *generic.InsufficientCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 6, capErr.Booked)
	assert.Equal(t, 10, capErr.Capacity)
	assert.Equal(t, 4, capErr.Remaining())

	status, err := ledger.Status(ctx, "double-twin")
	require.NoError(t, err)
	assert.Equal(t, 6, status.CurrentBookings, "rejected request must not change the counter")
}

func TestReserve_Overbooking_AllowsUpToLimit(t *testing.T) {
	p := pool("ob", 10)
	p.AllowsOverbooking = true
	p.OverbookingLimit = 2
	ledger := newTestLedger(t, p)

	require.NoError(t, reserve(t, ledger, "b1", "ob", 12))
	assert.ErrorIs(t, reserve(t, ledger, "b2", "ob", 1), generic.ErrInsufficientCapacity)

	status, err := ledger.Status(context.Background(), "ob")
	require.NoError(t, err)
	assert.Equal(t, -2, status.AvailableSpots)
	assert.Equal(t, generic.StateOverbooked, status.State)
	assert.Equal(t, generic.HealthOverbooked, status.Health)
}

func TestReserve_OverbookingLimitIgnoredWhenNotAllowed(t *testing.T) {
	p := pool("no-ob", 10)
	p.OverbookingLimit = 5
	ledger := newTestLedger(t, p)

	assert.ErrorIs(t, reserve(t, ledger, "b1", "no-ob", 11), generic.ErrInsufficientCapacity)
}

func TestReserve_MultiPool_AllOrNothing(t *testing.T) {
	// GIVEN: Two pools, the second one almost full
	// WHEN: One booking asks for rooms from both
	// THEN: Nothing is reserved in either pool
	ctx := context.Background()
	ledger := newTestLedger(t, pool("a", 10), pool("b", 1))

	_, err := ledger.Reserve(ctx, generic.ReserveRequest{
		BookingID: "multi",
		Lines: []generic.ReserveLine{
			{Key: "a", Quantity: 3},
			{Key: "b", Quantity: 2},
		},
	})
	assert.ErrorIs(t, err, generic.ErrInsufficientCapacity)

	a, _ := ledger.Status(ctx, "a")
	b, _ := ledger.Status(ctx, "b")
	assert.Equal(t, 0, a.CurrentBookings)
	assert.Equal(t, 0, b.CurrentBookings)

	// A later release of the failed booking is a no-op.
	n, err := ledger.Release(ctx, "multi")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReserve_LinesOnSamePoolAreAggregated(t *testing.T) {
	ledger := newTestLedger(t, pool("p", 5))

	_, err := ledger.Reserve(context.Background(), generic.ReserveRequest{
		BookingID: "b",
		Lines: []generic.ReserveLine{
			{Key: "p", Quantity: 3},
			{Key: "p", Quantity: 3},
		},
	})
	assert.ErrorIs(t, err, generic.ErrInsufficientCapacity)
}

func TestReserve_DuplicateBookingRejected(t *testing.T) {
	ledger := newTestLedger(t, pool("p", 5))

	require.NoError(t, reserve(t, ledger, "b", "p", 1))
	assert.ErrorIs(t, reserve(t, ledger, "b", "p", 1), generic.ErrDuplicateIdempotencyKey)
}

func TestReserve_InvalidInput(t *testing.T) {
	ledger := newTestLedger(t, pool("p", 5))

	assert.ErrorIs(t, reserve(t, ledger, "b", "p", 0), generic.ErrInvalidQuantity)
	assert.ErrorIs(t, reserve(t, ledger, "", "p", 1), generic.ErrInvalidQuantity)
	assert.ErrorIs(t, reserve(t, ledger, "b", "missing", 1), generic.ErrPoolNotFound)
}

// =============================================================================
// RELEASE
// =============================================================================

func TestRelease_CancelRestoresCapacity(t *testing.T) {
	// GIVEN: Pool capacity 10 with 8 booked (6 + 2)
	// WHEN: The booking of 2 is cancelled
	// THEN: Booked 6, available 4
	ctx := context.Background()
	ledger := newTestLedger(t, pool("p", 10))
	require.NoError(t, reserve(t, ledger, "b6", "p", 6))
	require.NoError(t, reserve(t, ledger, "b2", "p", 2))

	n, err := ledger.Release(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	status, err := ledger.Status(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 6, status.CurrentBookings)
	assert.Equal(t, 4, status.AvailableSpots)
}

func TestRelease_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, pool("p", 10))
	require.NoError(t, reserve(t, ledger, "b", "p", 3))

	_, err := ledger.Release(ctx, "b")
	require.NoError(t, err)
	n, err := ledger.Release(ctx, "b")
	require.NoError(t, err)
	assert.Zero(t, n, "second release must not free capacity again")

	n, err = ledger.Release(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, n)

	status, _ := ledger.Status(ctx, "p")
	assert.Equal(t, 0, status.CurrentBookings)
}

func TestReserveRelease_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for q := 1; q <= 7; q++ {
		t.Run(fmt.Sprintf("q=%d", q), func(t *testing.T) {
			ledger := newTestLedger(t, pool("p", 7))
			require.NoError(t, reserve(t, ledger, "seed", "p", 1))
			before, _ := ledger.Status(ctx, "p")

			if err := reserve(t, ledger, "b", "p", q); err != nil {
				assert.ErrorIs(t, err, generic.ErrInsufficientCapacity)
				return
			}
			_, err := ledger.Release(ctx, "b")
			require.NoError(t, err)

			after, _ := ledger.Status(ctx, "p")
			assert.Equal(t, before.AvailableSpots, after.AvailableSpots)
		})
	}
}

// =============================================================================
// WAITLIST
// =============================================================================

func TestReserve_Waitlist(t *testing.T) {
	ctx := context.Background()
	p := pool("w", 2)
	p.WaitlistEnabled = true
	p.WaitlistMaxSize = 3
	ledger := newTestLedger(t, p)
	require.NoError(t, reserve(t, ledger, "full", "w", 2))

	// Without opting in the caller gets the capacity error with a hint.
	err := reserve(t, ledger, "late", "w", 2)
	var capErr *generic.InsufficientCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.True(t, capErr.WaitlistAvailable)

	rs, err := ledger.Reserve(ctx, generic.ReserveRequest{
		BookingID:     "late",
		Lines:         []generic.ReserveLine{{Key: "w", Quantity: 2}},
		AllowWaitlist: true,
	})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, generic.ReservationWaitlisted, rs[0].State)

	status, _ := ledger.Status(ctx, "w")
	assert.Equal(t, 2, status.CurrentBookings)
	assert.Equal(t, 2, status.WaitlistSize)
	assert.Equal(t, generic.StateWaitlisted, status.State)

	// Waitlist bounded by max size.
	_, err = ledger.Reserve(ctx, generic.ReserveRequest{
		BookingID:     "later",
		Lines:         []generic.ReserveLine{{Key: "w", Quantity: 2}},
		AllowWaitlist: true,
	})
	assert.ErrorIs(t, err, generic.ErrInsufficientCapacity)

	// Releasing a waitlisted booking frees the waitlist, not the capacity.
	n, err := ledger.Release(ctx, "late")
	require.NoError(t, err)
	assert.Zero(t, n)
	status, _ = ledger.Status(ctx, "w")
	assert.Equal(t, 2, status.CurrentBookings)
	assert.Equal(t, 0, status.WaitlistSize)
}

// =============================================================================
// CONCURRENCY - Capacity conservation
// =============================================================================

func TestReserve_ConcurrentRequests_NeverOversell(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, pool("hot", 25))

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := reserve(t, ledger, fmt.Sprintf("b-%d", i), "hot", 1+i%3)
			if err == nil {
				mu.Lock()
				admitted += 1 + i%3
				mu.Unlock()
				return
			}
			if !errors.Is(err, generic.ErrInsufficientCapacity) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	status, err := ledger.Status(ctx, "hot")
	require.NoError(t, err)
	assert.LessOrEqual(t, status.CurrentBookings, 25)
	assert.Equal(t, admitted, status.CurrentBookings)
}

// =============================================================================
// REGISTER / RECONCILE
// =============================================================================

func TestRegister_PreservesCounters(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, pool("p", 10))
	require.NoError(t, reserve(t, ledger, "b", "p", 4))

	updated := pool("p", 12)
	updated.Label = "renamed"
	p, err := ledger.Register(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, 4, p.CurrentBookings)
	assert.Equal(t, 12, p.TotalCapacity)
	assert.Equal(t, "renamed", p.Label)
}

func TestRegister_RejectsNegativeLimits(t *testing.T) {
	ledger := newTestLedger(t)
	_, err := ledger.Register(context.Background(), pool("p", -1))
	assert.ErrorIs(t, err, generic.ErrInvalidAllocationConfig)
}

func TestReconcile_ReportsDrift(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, pool("p", 10))
	require.NoError(t, reserve(t, ledger, "b", "p", 4))

	report, err := ledger.Reconcile(ctx, "p", 4)
	require.NoError(t, err)
	assert.True(t, report.Consistent())

	report, err = ledger.Reconcile(ctx, "p", 6)
	require.NoError(t, err)
	assert.False(t, report.Consistent())
	assert.Equal(t, 2, report.Drift())
}

func TestRepair_RecomputesFromReservations(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	ledger := generic.NewLedger(mem)
	_, err := ledger.Register(ctx, pool("p", 10))
	require.NoError(t, err)
	require.NoError(t, reserve(t, ledger, "b", "p", 3))

	// Corrupt the counter behind the ledger's back.
	require.NoError(t, mem.WithTx(ctx, func(tx generic.CapacityTx) error {
		return tx.UpdateCounters(ctx, "p", 9, 0)
	}))

	p, err := ledger.Repair(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 3, p.CurrentBookings)
}

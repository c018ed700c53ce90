package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/booking"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
	"github.com/warp/allocation-engine/store/sqlite"
)

var (
	_ generic.CapacityStore = (*sqlite.Store)(nil)
	_ booking.Repository    = (*sqlite.Store)(nil)
)

const contractJSON = `{
  "id": "c-summer",
  "supplier_id": "hotel-del-mar",
  "start_date": "2025-06-10",
  "end_date": "2025-09-30",
  "currency": "EUR",
  "tax_rate": "0.10",
  "city_tax_per_person_per_night": "2",
  "resort_fee_per_night": "5",
  "supplier_commission_rate": "0.10",
  "pre_shoulder_rates": ["100", "110"],
  "min_nights": 1,
  "max_nights": 14,
  "room_allocations": [
    {"label": "standard", "room_group_ids": ["double", "twin"], "quantity": 10,
     "occupancy_rates": {"double": "150"}},
    {"label": "suites", "room_group_ids": ["suite"], "quantity": 2, "base_rate": "400"}
  ]
}`

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newService(t *testing.T, store *sqlite.Store) (*booking.Service, hotel.Contract) {
	t.Helper()
	f := factory.NewContractFactory()
	c, err := f.ParseContract(contractJSON)
	require.NoError(t, err)
	rates := f.GenerateRates(c, factory.RateDefaults{
		Markup:         generic.MustFraction("0.60"),
		ShoulderMarkup: generic.MustFraction("0.20"),
	})

	svc := booking.NewService(store, generic.NewLedger(store), booking.NewMemoryQuoteStore(), booking.NopPublisher{}, nil, booking.Config{QuoteTTL: time.Minute})
	_, err = svc.RegisterContract(context.Background(), c, rates)
	require.NoError(t, err)
	return svc, c
}

func quote(t *testing.T, svc *booking.Service, group string, qty int) booking.Quote {
	t.Helper()
	stay, err := generic.NewStay(generic.MustParseDate("2025-07-01"), generic.MustParseDate("2025-07-04"))
	require.NoError(t, err)
	q, err := svc.Quote(context.Background(), booking.QuoteRequest{
		ContractID:  "c-summer",
		RoomGroupID: generic.RoomGroupID(group),
		Occupancy:   hotel.OccupancyDouble,
		Stay:        stay,
		Quantity:    qty,
	})
	require.NoError(t, err)
	return q
}

// =============================================================================
// CATALOG
// =============================================================================

func TestContract_SaveAndLoad(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, c := newService(t, store)

	loaded, err := store.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "hotel-del-mar", loaded.SupplierID)
	assert.Equal(t, "2025-09-30", loaded.Period.End.String())
	assert.Equal(t, "0.1", loaded.TaxRate.String())
	require.Len(t, loaded.PreShoulderRates, 2)
	require.Len(t, loaded.RoomAllocations, 2)
	assert.Equal(t, []generic.RoomGroupID{"double", "twin"}, loaded.RoomAllocations[0].RoomGroupIDs)

	all, err := store.ListContracts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = store.GetContract(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestRate_SaveAndList(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	newService(t, store)

	rates, err := store.ListRates(ctx, "c-summer")
	require.NoError(t, err)
	require.Len(t, rates, 3, "double and twin from occupancy rates, suite from base rate")

	id := factory.RateID("c-summer", "double", hotel.OccupancyDouble, hotel.BoardRoomOnly)
	r, err := store.GetRate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "150", r.Rate.String())
	assert.Equal(t, "0.6", r.MarkupPercentage.String())

	_, err = store.GetRate(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

// =============================================================================
// BOOKINGS
// =============================================================================

func TestBooking_RoundTripAndCancel(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	newService(t, store)

	b := hotel.Booking{
		ID:         "b-1",
		Customer:   "Ada",
		ContractID: "c-summer",
		Stay:       generic.Stay{CheckIn: generic.MustParseDate("2025-07-01"), CheckOut: generic.MustParseDate("2025-07-04")},
		Status:     hotel.StatusConfirmed,
		CreatedAt:  time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		Rooms: []hotel.BookingRoom{{
			BookingID:    "b-1",
			RateID:       "c-summer:double:double:room_only",
			PoolKey:      "pool-x",
			Quantity:     2,
			Occupancy:    hotel.OccupancyDouble,
			PricePerRoom: generic.NewMoneyFromDecimal(generic.MustParseDecimal("758.40"), "EUR"),
			TotalPrice:   generic.NewMoneyFromDecimal(generic.MustParseDecimal("1516.80"), "EUR"),
			Status:       hotel.StatusConfirmed,
		}},
	}
	require.NoError(t, store.SaveBooking(ctx, b))

	err := store.SaveBooking(ctx, b)
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	loaded, err := store.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", loaded.Customer)
	assert.Equal(t, "", loaded.Reference)
	assert.True(t, b.CreatedAt.Equal(loaded.CreatedAt))
	require.Len(t, loaded.Rooms, 1)
	assert.Equal(t, "1516.80 EUR", loaded.Rooms[0].TotalPrice.String())
	assert.Nil(t, loaded.CancelledAt)

	at := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CancelBooking(ctx, "b-1", at))

	loaded, err = store.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, hotel.StatusCancelled, loaded.Status)
	assert.Equal(t, hotel.StatusCancelled, loaded.Rooms[0].Status)
	require.NotNil(t, loaded.CancelledAt)
	assert.True(t, at.Equal(*loaded.CancelledAt))

	assert.ErrorIs(t, store.CancelBooking(ctx, "missing", at), generic.ErrNotFound)
	_, err = store.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

// =============================================================================
// END TO END
// =============================================================================

func TestService_SharedPoolOnSQLite(t *testing.T) {
	// GIVEN: the standard pool of 10 with 6 doubles committed
	store := newStore(t)
	ctx := context.Background()
	svc, _ := newService(t, store)

	res, err := svc.Commit(ctx, booking.CommitRequest{QuoteIDs: []generic.QuoteID{quote(t, svc, "double", 6).ID}})
	require.NoError(t, err)

	// WHEN: 5 twins are requested
	q := quote(t, svc, "twin", 5)
	_, err = svc.Commit(ctx, booking.CommitRequest{QuoteIDs: []generic.QuoteID{q.ID}})

	// THEN: rejected, and the counters survive a reload
	assert.ErrorIs(t, err, generic.ErrInsufficientCapacity)
	av, err := svc.Availability(ctx, "c-summer", "twin")
	require.NoError(t, err)
	assert.Equal(t, 6, av.Booked)
	assert.Equal(t, 4, av.Available)

	reports, err := svc.Reconcile(ctx, false)
	require.NoError(t, err)
	for _, r := range reports {
		assert.True(t, r.Consistent(), "pool %s", r.Key)
	}

	// Cancelling restores the pool.
	_, err = svc.Cancel(ctx, res.Booking.ID)
	require.NoError(t, err)
	av, err = svc.Availability(ctx, "c-summer", "double")
	require.NoError(t, err)
	assert.Equal(t, 0, av.Booked)
}

func TestService_ConcurrentLastRoomsOnSQLite(t *testing.T) {
	// GIVEN: 10 single-room quotes against the 2-room suite pool
	store := newStore(t)
	ctx := context.Background()
	svc, _ := newService(t, store)

	quotes := make([]booking.Quote, 10)
	for i := range quotes {
		quotes[i] = quote(t, svc, "suite", 1)
	}

	// WHEN: all commit at once
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for _, q := range quotes {
		wg.Add(1)
		go func(id generic.QuoteID) {
			defer wg.Done()
			if _, err := svc.Commit(ctx, booking.CommitRequest{QuoteIDs: []generic.QuoteID{id}}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(q.ID)
	}
	wg.Wait()

	// THEN: exactly the capacity was sold
	assert.Equal(t, 2, succeeded)
	av, err := svc.Availability(ctx, "c-summer", "suite")
	require.NoError(t, err)
	assert.Equal(t, 2, av.Booked)
}

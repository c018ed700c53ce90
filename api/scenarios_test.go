package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/booking"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/store/sqlite"
)

func newSQLiteRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := booking.NewService(store, generic.NewLedger(store), nil, nil, nil, booking.Config{QuoteTTL: time.Minute})
	h := NewHandler(svc, nil)
	h.Resetter = store
	return NewRouter(h, RouterOptions{})
}

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenarios_AllLoad(t *testing.T) {
	router := newSQLiteRouter(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(scenarios))

	for _, s := range list {
		t.Run(s.ID, func(t *testing.T) {
			loadScenario(t, router, s.ID)

			rec := do(t, router, http.MethodGet, "/api/scenarios/current", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, s.ID, decode[ScenarioDTO](t, rec).ID)
		})
	}
}

func TestScenarios_LoadResetsPreviousData(t *testing.T) {
	router := newSQLiteRouter(t)
	loadScenario(t, router, "shared-pool")
	loadScenario(t, router, "overbooking")

	rec := do(t, router, http.MethodGet, "/api/contracts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	contracts := decode[[]ContractDTO](t, rec)
	require.Len(t, contracts, 1)
	assert.Equal(t, "demo-suites", contracts[0].ID)
}

func TestScenarios_UnknownID(t *testing.T) {
	router := newSQLiteRouter(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenarios_LinkedContractsShareOnePool(t *testing.T) {
	router := newSQLiteRouter(t)
	loadScenario(t, router, "linked-contracts")

	// GIVEN: 4 rooms booked on the main contract
	rec := do(t, router, http.MethodPost, "/api/quotes", QuoteRequest{
		ContractID: "demo-main", RoomGroupID: "double", Occupancy: "double",
		CheckIn: "2025-07-10", CheckOut: "2025-07-12", Quantity: 4,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	q := decode[QuoteDTO](t, rec)
	assert.Equal(t, "pool:demo-block", q.PoolKey)

	rec = do(t, router, http.MethodPost, "/api/bookings", CommitRequest{QuoteIDs: []string{q.ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: the late contract checks availability
	rec = do(t, router, http.MethodGet, "/api/contracts/demo-late/availability?room_group_id=double", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: it sees the same pool
	av := decode[AvailabilityDTO](t, rec)
	assert.Equal(t, 6, av.Capacity)
	assert.Equal(t, 4, av.Booked)
	assert.Equal(t, 2, av.Available)
}

func TestScenarios_OverbookingThenWaitlist(t *testing.T) {
	router := newSQLiteRouter(t)
	loadScenario(t, router, "overbooking")

	book := func(qty int) QuoteDTO {
		rec := do(t, router, http.MethodPost, "/api/quotes", QuoteRequest{
			ContractID: "demo-suites", RoomGroupID: "suite", Occupancy: "double",
			CheckIn: "2025-08-01", CheckOut: "2025-08-03", Quantity: qty,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[QuoteDTO](t, rec)
	}

	// 3 rooms: 2 real plus 1 overbooked
	q := book(3)
	require.True(t, q.Available)
	rec := do(t, router, http.MethodPost, "/api/bookings", CommitRequest{QuoteIDs: []string{q.ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Next room only fits the waitlist
	q = book(1)
	assert.False(t, q.Available)
	assert.True(t, q.Waitlistable)

	rec = do(t, router, http.MethodPost, "/api/bookings", CommitRequest{QuoteIDs: []string{q.ID}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	q = book(1)
	rec = do(t, router, http.MethodPost, "/api/bookings", CommitRequest{QuoteIDs: []string{q.ID}, AllowWaitlist: true})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	b := decode[BookingDTO](t, rec)
	assert.True(t, b.Waitlisted)
	assert.Equal(t, "waitlisted", b.Status)

	rec = do(t, router, http.MethodGet, "/api/pools/"+q.PoolKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[PoolDTO](t, rec)
	assert.Equal(t, 3, p.CurrentBookings)
	assert.Equal(t, 1, p.WaitlistSize)
}

func TestReset_NotSupportedWithoutResetter(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/reset", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

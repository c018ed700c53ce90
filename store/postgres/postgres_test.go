package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/generic"
)

var _ generic.CapacityStore = (*Store)(nil)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: uniqueViolation}
	assert.True(t, isUniqueViolation(dup))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

func TestNullTime(t *testing.T) {
	assert.False(t, nullTime(nil).Valid)

	at := time.Date(2025, 7, 1, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	nt := nullTime(&at)
	require.True(t, nt.Valid)
	assert.Equal(t, time.UTC, nt.Time.Location())
	assert.True(t, at.Equal(nt.Time))
}

// TestLedger_AgainstDatabase runs only when DATABASE_URL points at a
// disposable PostgreSQL database.
func TestLedger_AgainstDatabase(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := New(ctx, url)
	require.NoError(t, err)
	defer store.Close()

	key := generic.AllocationKey(fmt.Sprintf("test-%d", time.Now().UnixNano()))
	ledger := generic.NewLedger(store)
	_, err = ledger.Register(ctx, generic.PoolCapacity{Key: key, TotalCapacity: 10})
	require.NoError(t, err)

	// GIVEN: 6 rooms held
	_, err = ledger.Reserve(ctx, generic.ReserveRequest{
		BookingID: generic.BookingID(string(key) + "-a"),
		Lines:     []generic.ReserveLine{{Key: key, Quantity: 6}},
	})
	require.NoError(t, err)

	// WHEN: 5 more are requested
	_, err = ledger.Reserve(ctx, generic.ReserveRequest{
		BookingID: generic.BookingID(string(key) + "-b"),
		Lines:     []generic.ReserveLine{{Key: key, Quantity: 5}},
	})

	// THEN: rejected and the counter is unchanged
	assert.ErrorIs(t, err, generic.ErrInsufficientCapacity)
	p, err := ledger.Pool(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 6, p.CurrentBookings)

	released, err := ledger.Release(ctx, generic.BookingID(string(key)+"-a"))
	require.NoError(t, err)
	assert.Equal(t, 6, released)
}

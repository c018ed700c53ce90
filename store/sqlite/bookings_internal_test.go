package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

func TestGetBooking_CorruptPriceIsAnError(t *testing.T) {
	// GIVEN: a stored booking whose room price was damaged outside the app
	s, err := New(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SaveBooking(ctx, hotel.Booking{
		ID:         "b-1",
		ContractID: "c-summer",
		Stay:       generic.Stay{CheckIn: generic.MustParseDate("2025-07-01"), CheckOut: generic.MustParseDate("2025-07-04")},
		Status:     hotel.StatusConfirmed,
		CreatedAt:  time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		Rooms: []hotel.BookingRoom{{
			BookingID:    "b-1",
			RateID:       "r-double",
			PoolKey:      "pool-x",
			Quantity:     1,
			Occupancy:    hotel.OccupancyDouble,
			PricePerRoom: generic.NewMoneyFromDecimal(generic.MustParseDecimal("474.00"), "EUR"),
			TotalPrice:   generic.NewMoneyFromDecimal(generic.MustParseDecimal("474.00"), "EUR"),
			Status:       hotel.StatusConfirmed,
		}},
	}))
	_, err = s.db.ExecContext(ctx, `UPDATE booking_rooms SET total_price = 'n/a' WHERE booking_id = 'b-1'`)
	require.NoError(t, err)

	// WHEN: it is loaded
	_, err = s.GetBooking(ctx, "b-1")

	// THEN: the bad amount surfaces instead of reading as zero
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total_price")
}

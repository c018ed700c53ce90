package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

func eur(s string) generic.Money {
	return generic.NewMoneyFromDecimal(generic.MustParseDecimal(s), "EUR")
}

func sampleQuote(id string) Quote {
	created := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	return Quote{
		ID:          generic.QuoteID(id),
		Kind:        generic.KindHotel,
		ContractID:  "c-summer",
		RoomGroupID: "double",
		RateID:      "r-double",
		Occupancy:   hotel.OccupancyDouble,
		BoardType:   hotel.BoardRoomOnly,
		Stay: generic.Stay{
			CheckIn:  generic.MustParseDate("2025-06-09"),
			CheckOut: generic.MustParseDate("2025-06-11"),
		},
		Quantity:  2,
		PoolKey:   "pool:c-summer:standard",
		Available: true,
		Remaining: 8,
		Nights:    2,
		Currency:  "EUR",
		Nightly: []hotel.NightlyRate{
			{Date: generic.MustParseDate("2025-06-09"), Type: hotel.NightPreShoulder, BaseRate: generic.MustParseDecimal("135.50"), Offset: 1},
			{Date: generic.MustParseDate("2025-06-10"), Type: hotel.NightContract, BaseRate: generic.MustParseDecimal("150")},
		},
		PerRoom: hotel.Breakdown{
			Nights: 2, RegularNights: 1, ShoulderNights: 1,
			TotalBaseRate: eur("285.50"),
			SellingPrice:  eur("474.00"),
			VAT:           eur("28.55"),
		},
		Total: hotel.Breakdown{
			Nights: 2, RegularNights: 1, ShoulderNights: 1,
			TotalBaseRate: eur("571.00"),
			SellingPrice:  eur("948.00"),
		},
		CreatedAt: created,
		ExpiresAt: created.Add(15 * time.Minute),
	}
}

func assertSameQuote(t *testing.T, want, got Quote) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Kind, got.Kind)
	assert.Equal(t, want.PoolKey, got.PoolKey)
	assert.Equal(t, want.Quantity, got.Quantity)
	assert.True(t, want.Stay.CheckIn.Equal(got.Stay.CheckIn), "check-in %s != %s", want.Stay.CheckIn, got.Stay.CheckIn)
	assert.True(t, want.Stay.CheckOut.Equal(got.Stay.CheckOut), "check-out %s != %s", want.Stay.CheckOut, got.Stay.CheckOut)
	assert.Equal(t, want.Stay.Nights(), got.Stay.Nights())

	require.Len(t, got.Nightly, len(want.Nightly))
	for i := range want.Nightly {
		assert.True(t, want.Nightly[i].Date.Equal(got.Nightly[i].Date))
		assert.Equal(t, want.Nightly[i].Type, got.Nightly[i].Type)
		assert.True(t, want.Nightly[i].BaseRate.Equal(got.Nightly[i].BaseRate), "night %d base %s != %s", i, want.Nightly[i].BaseRate, got.Nightly[i].BaseRate)
		assert.Equal(t, want.Nightly[i].Offset, got.Nightly[i].Offset)
	}

	assert.Equal(t, want.PerRoom.ShoulderNights, got.PerRoom.ShoulderNights)
	assert.True(t, want.PerRoom.SellingPrice.Equal(got.PerRoom.SellingPrice), "per room %s != %s", want.PerRoom.SellingPrice, got.PerRoom.SellingPrice)
	assert.True(t, want.PerRoom.VAT.Equal(got.PerRoom.VAT))
	assert.True(t, want.Total.SellingPrice.Equal(got.Total.SellingPrice), "total %s != %s", want.Total.SellingPrice, got.Total.SellingPrice)
	assert.True(t, want.Total.TotalBaseRate.Equal(got.Total.TotalBaseRate))
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
}

// =============================================================================
// ENCODING
// =============================================================================

func TestQuote_JSONRoundTrip(t *testing.T) {
	// GIVEN: a quote with a shoulder night and decimal amounts
	q := sampleQuote("q-json")

	// WHEN: encoded the way the Redis store keeps it
	body, err := json.Marshal(q)
	require.NoError(t, err)
	var got Quote
	require.NoError(t, json.Unmarshal(body, &got))

	// THEN: dates, nights and money survive unchanged
	assertSameQuote(t, q, got)
	assert.Equal(t, "EUR", got.Total.SellingPrice.Currency)
}

// =============================================================================
// MEMORY STORE
// =============================================================================

func TestMemoryQuoteStore_TakeOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryQuoteStore()
	require.NoError(t, s.Put(ctx, sampleQuote("q1"), time.Minute))

	got, err := s.Take(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, generic.QuoteID("q1"), got.ID)

	_, err = s.Take(ctx, "q1")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestMemoryQuoteStore_Expired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	s := NewMemoryQuoteStore()
	s.Now = func() time.Time { return now }
	require.NoError(t, s.Put(ctx, sampleQuote("q1"), time.Minute))

	now = now.Add(time.Minute)
	_, err := s.Take(ctx, "q1")

	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.Empty(t, s.quotes)
}

func TestMemoryQuoteStore_ConcurrentTake(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryQuoteStore()
	require.NoError(t, s.Put(ctx, sampleQuote("q1"), time.Minute))

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Take(ctx, "q1"); err == nil {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, taken)
}

// =============================================================================
// REDIS STORE
// =============================================================================

// TestRedisQuoteStore_AgainstServer runs only when REDIS_ADDR points at a
// disposable Redis.
func TestRedisQuoteStore_AgainstServer(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, RedisOptions{Addr: addr})
	require.NoError(t, err)
	defer client.Close()
	s := NewRedisQuoteStore(client)

	id := fmt.Sprintf("test-%d", time.Now().UnixNano())
	q := sampleQuote(id)

	// GIVEN: a stored quote
	require.NoError(t, s.Put(ctx, q, time.Minute))
	ttl, err := client.TTL(ctx, quoteKey(q.ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// WHEN: taken twice
	got, err := s.Take(ctx, q.ID)
	require.NoError(t, err)
	_, again := s.Take(ctx, q.ID)

	// THEN: the first gets the quote intact, the second finds nothing
	assertSameQuote(t, q, got)
	assert.ErrorIs(t, again, generic.ErrNotFound)

	_, err = s.Take(ctx, generic.QuoteID(id+"-missing"))
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

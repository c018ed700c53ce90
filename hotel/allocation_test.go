package hotel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

func TestFindAllocation(t *testing.T) {
	c := summerContract()

	a, err := hotel.FindAllocation(c, "twin")
	require.NoError(t, err)
	assert.Equal(t, "standard", a.Label)
	assert.True(t, a.IsShared())

	_, err = hotel.FindAllocation(c, "penthouse")
	assert.ErrorIs(t, err, generic.ErrInvalidAllocationConfig)
	assert.True(t, generic.IsConfigError(err))
}

func TestFindAllocation_OverlapIsConfigError(t *testing.T) {
	// GIVEN: two allocations both claim "twin"
	c := summerContract()
	c.RoomAllocations = append(c.RoomAllocations, hotel.RoomAllocation{
		RoomGroupIDs: []generic.RoomGroupID{"twin"}, Quantity: 3, Label: "twins",
	})

	// WHEN: resolving
	_, err := hotel.FindAllocation(c, "twin")

	// THEN: no silent pick
	var cfgErr *generic.InvalidAllocationConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"standard", "twins"}, cfgErr.Matches)

	assert.ErrorIs(t, hotel.ValidateAllocations(c), generic.ErrInvalidAllocationConfig)
}

func TestValidateAllocations(t *testing.T) {
	assert.NoError(t, hotel.ValidateAllocations(summerContract()))

	c := summerContract()
	c.RoomAllocations[1].RoomGroupIDs = nil
	assert.ErrorIs(t, hotel.ValidateAllocations(c), generic.ErrInvalidAllocationConfig)

	c = summerContract()
	c.RoomAllocations[0].Quantity = -1
	assert.ErrorIs(t, hotel.ValidateAllocations(c), generic.ErrInvalidAllocationConfig)
}

func TestAvailable_SharedPool(t *testing.T) {
	// GIVEN: 6 doubles booked and 2 twins cancelled in a pool of 10
	c := summerContract()
	twin := doubleRate()
	twin.ID, twin.RoomGroupID = "r-twin", "twin"
	foreign := doubleRate()
	foreign.ID, foreign.ContractID = "r-other", "c-other"
	rates := map[generic.RateID]hotel.Rate{"r-double": doubleRate(), "r-twin": twin, "r-other": foreign}
	rooms := []hotel.BookingRoom{
		{RateID: "r-double", Quantity: 6, Status: hotel.StatusConfirmed},
		{RateID: "r-twin", Quantity: 2, Status: hotel.StatusCancelled},
		{RateID: "r-other", Quantity: 4, Status: hotel.StatusConfirmed},
	}

	// WHEN: asking availability for twins
	av, err := hotel.Available(c, "twin", rooms, rates)
	require.NoError(t, err)

	// THEN: doubles count against the twin category
	assert.Equal(t, 10, av.Capacity)
	assert.Equal(t, 6, av.Booked)
	assert.Equal(t, 4, av.Available)
	assert.False(t, av.CanBook(5))
	assert.True(t, av.CanBook(4))
	assert.Equal(t, generic.HealthHealthy, av.Health)
	assert.Equal(t, []generic.RoomGroupID{"double", "twin"}, av.RoomGroupIDs)
}

func TestAllocationKey_ExplicitPool(t *testing.T) {
	c := summerContract()
	implicit := c.RoomAllocations[0].Key(c.ID)

	c.RoomAllocations[0].AllocationPoolID = "block-2025"
	p := c.RoomAllocations[0].PoolCapacity(c.ID)

	assert.NotEqual(t, implicit, p.Key)
	assert.Equal(t, generic.PoolKey("block-2025"), p.Key)
	assert.Empty(t, p.ContractID)
}

type stubCatalog struct {
	contract hotel.Contract
	rates    []hotel.Rate
}

func (s stubCatalog) GetContract(_ context.Context, id generic.ContractID) (hotel.Contract, error) {
	if id != s.contract.ID {
		return hotel.Contract{}, generic.ErrNotFound
	}
	return s.contract, nil
}

func (s stubCatalog) ListRates(context.Context, generic.ContractID) ([]hotel.Rate, error) {
	return s.rates, nil
}

func TestItemType_Strategies(t *testing.T) {
	// GIVEN: a registry with the hotel variant
	reg := generic.NewRegistry()
	reg.Register(hotel.NewItemType(stubCatalog{contract: summerContract(), rates: []hotel.Rate{doubleRate()}}, hotel.ShoulderFallback))

	it, err := reg.Lookup(generic.KindHotel)
	require.NoError(t, err)
	req := generic.ItemRequest{
		Kind: generic.KindHotel, ContractID: "c-summer", Category: "double", Variant: "double",
		Stay: stay(t, "2025-07-01", "2025-07-04"), Quantity: 2,
	}

	// WHEN: pricing and resolving through the interfaces
	res, err := it.Pricing().Price(context.Background(), req)
	require.NoError(t, err)
	key, err := it.Allocation().ResolvePool(context.Background(), req)
	require.NoError(t, err)

	// THEN
	assertMoney(t, "1516.80", res.TotalSelling, "selling")
	assert.Equal(t, 3, res.Units)
	assert.Equal(t, summerContract().RoomAllocations[0].Key("c-summer"), key)

	_, err = reg.Lookup(generic.KindTransfer)
	assert.ErrorIs(t, err, generic.ErrUnsupportedItemType)
}

func TestFindRate(t *testing.T) {
	bb := doubleRate()
	bb.ID, bb.BoardType = "r-double-bb", hotel.BoardBedBreakfast
	rates := []hotel.Rate{bb, doubleRate()}

	r, err := hotel.FindRate(rates, "double", hotel.OccupancyDouble, hotel.BoardBedBreakfast)
	require.NoError(t, err)
	assert.Equal(t, generic.RateID("r-double-bb"), r.ID)

	r, err = hotel.FindRate(rates, "double", hotel.OccupancyDouble, "")
	require.NoError(t, err)
	assert.Equal(t, generic.RateID("r-double"), r.ID)

	_, err = hotel.FindRate(rates, "double", hotel.OccupancySingle, "")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

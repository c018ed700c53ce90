package hotel_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

func d(s string) decimal.Decimal { return generic.MustParseDecimal(s) }

func assertMoney(t *testing.T, want string, got generic.Money, label string) {
	t.Helper()
	assert.Equal(t, want, got.Amount.StringFixed(2), label)
}

// summerContract runs 2025-06-10..2025-09-30 with the terms used throughout.
func summerContract() hotel.Contract {
	return hotel.Contract{
		ID:                       "c-summer",
		Period:                   generic.Period{Start: generic.MustParseDate("2025-06-10"), End: generic.MustParseDate("2025-09-30")},
		Currency:                 "EUR",
		TaxRate:                  generic.MustFraction("0.10"),
		CityTaxPerPersonPerNight: d("2"),
		ResortFeePerNight:        d("5"),
		SupplierCommissionRate:   generic.MustFraction("0.10"),
		PreShoulderRates:         []decimal.Decimal{d("100"), d("110"), d("120")},
		PostShoulderRates:        []decimal.Decimal{d("90")},
		MinNights:                1,
		RoomAllocations: []hotel.RoomAllocation{
			{RoomGroupIDs: []generic.RoomGroupID{"double", "twin"}, Quantity: 10, Label: "standard"},
			{RoomGroupIDs: []generic.RoomGroupID{"suite"}, Quantity: 2, Label: "suites"},
		},
	}
}

func doubleRate() hotel.Rate {
	return hotel.Rate{
		ID:                       "r-double",
		ContractID:               "c-summer",
		RoomGroupID:              "double",
		Occupancy:                hotel.OccupancyDouble,
		BoardType:                hotel.BoardRoomOnly,
		Rate:                     d("150"),
		MarkupPercentage:         generic.MustFraction("0.60"),
		ShoulderMarkupPercentage: generic.MustFraction("0.20"),
	}
}

func stay(t *testing.T, in, out string) generic.Stay {
	t.Helper()
	s, err := generic.NewStay(generic.MustParseDate(in), generic.MustParseDate(out))
	require.NoError(t, err)
	return s
}

func TestPriceStay_ContractNights(t *testing.T) {
	// GIVEN: 3 contract nights, double at 150, board excluded, markup 60%
	pricer := hotel.NewPricer(hotel.ShoulderFallback)

	// WHEN: pricing one room
	q, err := pricer.PriceStay(hotel.StayRequest{
		Contract: summerContract(),
		Rate:     doubleRate(),
		Stay:     stay(t, "2025-07-01", "2025-07-04"),
		Quantity: 1,
	})
	require.NoError(t, err)

	// THEN: every step of the breakdown matches
	b := q.PerRoom
	assert.Equal(t, 3, b.Nights)
	assert.Equal(t, 0, b.ShoulderNights)
	assertMoney(t, "450.00", b.TotalBaseRate, "base")
	assertMoney(t, "0.00", b.TotalBoardCost, "board")
	assertMoney(t, "45.00", b.Commission, "commission")
	assertMoney(t, "405.00", b.NetRate, "net")
	assertMoney(t, "15.00", b.ResortFee, "resort fee")
	assertMoney(t, "420.00", b.SubtotalBeforeVAT, "subtotal")
	assertMoney(t, "42.00", b.VAT, "vat")
	assertMoney(t, "12.00", b.CityTax, "city tax")
	assertMoney(t, "474.00", b.TotalCost, "total cost")
	assertMoney(t, "758.40", b.SellingPrice, "selling")
	assertMoney(t, "284.40", b.MarkupAmount, "markup")
	assert.NoError(t, b.Validate())
}

func TestPriceStay_ScalesByQuantity(t *testing.T) {
	pricer := hotel.NewPricer(hotel.ShoulderFallback)

	q, err := pricer.PriceStay(hotel.StayRequest{
		Contract: summerContract(),
		Rate:     doubleRate(),
		Stay:     stay(t, "2025-07-01", "2025-07-04"),
		Quantity: 3,
	})
	require.NoError(t, err)

	assertMoney(t, "1422.00", q.Total.TotalCost, "total cost")
	assertMoney(t, "2275.20", q.Total.SellingPrice, "selling")
	assert.NoError(t, q.Total.Validate())
}

func TestShoulder_PreShoulderLookup(t *testing.T) {
	// GIVEN: contract starts 2025-06-10, check-in two nights earlier
	c := summerContract()
	resolver := hotel.ShoulderResolver{Policy: hotel.ShoulderFallback}

	// WHEN: resolving the nights
	nightly, err := resolver.StayRates(c, doubleRate(), stay(t, "2025-06-08", "2025-06-11"))
	require.NoError(t, err)

	// THEN: offset 2 uses index 1, offset 1 uses index 0, then the contract rate
	require.Len(t, nightly, 3)
	assert.Equal(t, hotel.NightPreShoulder, nightly[0].Type)
	assert.Equal(t, 2, nightly[0].Offset)
	assert.True(t, d("110").Equal(nightly[0].BaseRate))
	assert.True(t, d("100").Equal(nightly[1].BaseRate))
	assert.Equal(t, hotel.NightContract, nightly[2].Type)
	assert.True(t, d("150").Equal(nightly[2].BaseRate))
}

func TestShoulder_PostShoulderLookup(t *testing.T) {
	c := summerContract()
	resolver := hotel.ShoulderResolver{}

	nr, err := resolver.NightlyRate(c, doubleRate(), generic.MustParseDate("2025-10-01"))
	require.NoError(t, err)
	assert.Equal(t, hotel.NightPostShoulder, nr.Type)
	assert.Equal(t, 1, nr.Offset)
	assert.True(t, d("90").Equal(nr.BaseRate))
	assert.False(t, nr.Fallback)
}

func TestShoulder_MissingRate(t *testing.T) {
	// GIVEN: the post-shoulder table only covers one night
	c := summerContract()
	night := generic.MustParseDate("2025-10-02")

	// WHEN/THEN: fallback prices at the contract rate and flags it
	nr, err := hotel.ShoulderResolver{Policy: hotel.ShoulderFallback}.NightlyRate(c, doubleRate(), night)
	require.NoError(t, err)
	assert.True(t, nr.Fallback)
	assert.True(t, d("150").Equal(nr.BaseRate))

	// WHEN/THEN: strict refuses
	_, err = hotel.ShoulderResolver{Policy: hotel.ShoulderStrict}.NightlyRate(c, doubleRate(), night)
	assert.ErrorIs(t, err, generic.ErrMissingShoulderRate)
}

func TestSplitMarkup_AverageCost(t *testing.T) {
	// GIVEN: no fees, 1 contract night and 2 shoulder nights, all at 100
	c := summerContract()
	c.TaxRate = generic.Fraction{}
	c.SupplierCommissionRate = generic.Fraction{}
	c.CityTaxPerPersonPerNight = decimal.Zero
	c.ResortFeePerNight = decimal.Zero
	c.PreShoulderRates = []decimal.Decimal{d("100"), d("100")}
	r := doubleRate()
	r.Rate = d("100")
	r.MarkupPercentage = generic.MustFraction("0.5")

	// WHEN: pricing
	q, err := hotel.NewPricer(hotel.ShoulderStrict).PriceStay(hotel.StayRequest{
		Contract: c, Rate: r, Stay: stay(t, "2025-06-08", "2025-06-11"), Quantity: 1,
	})
	require.NoError(t, err)

	// THEN: 100 * 1.5 + 200 * 1.2
	assert.Equal(t, 1, q.PerRoom.RegularNights)
	assert.Equal(t, 2, q.PerRoom.ShoulderNights)
	assertMoney(t, "100.00", q.PerRoom.RegularCostShare, "regular share")
	assertMoney(t, "200.00", q.PerRoom.ShoulderCostShare, "shoulder share")
	assertMoney(t, "390.00", q.PerRoom.SellingPrice, "selling")
}

func TestSplitMarkup_UnevenDivisionStaysConsistent(t *testing.T) {
	total := generic.NewMoneyFromDecimal(d("100"), "EUR")

	regular, shoulder, selling := hotel.SplitMarkup(total, 2, 1, generic.MustFraction("0.1"), generic.MustFraction("0.1"))

	assert.True(t, total.Amount.Equal(regular.Add(shoulder).Amount), "shares must add up to the cost")
	assertMoney(t, "110.00", selling, "selling")
}

func TestBoardCost(t *testing.T) {
	r := doubleRate()
	override := d("7")

	assert.True(t, decimal.Zero.Equal(hotel.BoardCostPerNight(r, r.Occupancy, nil)))
	assert.True(t, override.Equal(hotel.BoardCostPerNight(r, r.Occupancy, &override)))

	r.IncludesBoard = true
	r.BoardCostPerPerson = d("20")
	assert.True(t, d("40").Equal(hotel.BoardCostPerNight(r, r.Occupancy, &override)))
}

func TestPriceStay_BoardExcludedFromCommission(t *testing.T) {
	r := doubleRate()
	r.IncludesBoard = true
	r.BoardCostPerPerson = d("10")

	q, err := hotel.NewPricer(hotel.ShoulderFallback).PriceStay(hotel.StayRequest{
		Contract: summerContract(), Rate: r, Stay: stay(t, "2025-07-01", "2025-07-04"), Quantity: 1,
	})
	require.NoError(t, err)

	assertMoney(t, "60.00", q.PerRoom.TotalBoardCost, "board")
	assertMoney(t, "45.00", q.PerRoom.Commission, "commission")
	assertMoney(t, "465.00", q.PerRoom.NetRate, "net")
}

func TestValidateNights(t *testing.T) {
	c := summerContract()
	c.MinNights, c.MaxNights = 2, 7
	r := doubleRate()

	assert.NoError(t, hotel.ValidateNights(c, r, stay(t, "2025-07-01", "2025-07-03")))

	err := hotel.ValidateNights(c, r, stay(t, "2025-07-01", "2025-07-09"))
	var nightsErr *generic.NightsOutOfRangeError
	require.ErrorAs(t, err, &nightsErr)
	assert.Equal(t, 8, nightsErr.Nights)
	assert.Equal(t, 7, nightsErr.Max)

	// rate-level minimum overrides the contract
	r.MinNights = 3
	err = hotel.ValidateNights(c, r, stay(t, "2025-07-01", "2025-07-03"))
	assert.ErrorIs(t, err, generic.ErrNightsOutOfRange)
}

func TestPriceStay_RejectsBeforePricing(t *testing.T) {
	c := summerContract()
	c.MaxNights = 2
	pricer := hotel.NewPricer(hotel.ShoulderFallback)

	_, err := pricer.PriceStay(hotel.StayRequest{Contract: c, Rate: doubleRate(), Stay: stay(t, "2025-07-01", "2025-07-04"), Quantity: 1})
	assert.ErrorIs(t, err, generic.ErrNightsOutOfRange)

	_, err = pricer.PriceStay(hotel.StayRequest{Contract: summerContract(), Rate: doubleRate(), Stay: stay(t, "2025-07-01", "2025-07-02"), Quantity: 0})
	assert.ErrorIs(t, err, generic.ErrInvalidQuantity)

	_, err = pricer.PriceStay(hotel.StayRequest{Contract: summerContract(), Rate: doubleRate(), Stay: stay(t, "2026-01-01", "2026-01-02"), Quantity: 1})
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}

func TestPriceStay_ShoulderOnlyStayRejected(t *testing.T) {
	// GIVEN: 3 pre-shoulder rates covering 2025-06-07..09, contract from 06-10
	c := summerContract()
	pricer := hotel.NewPricer(hotel.ShoulderFallback)
	only := stay(t, "2025-06-07", "2025-06-10")
	for _, night := range only.NightDates() {
		n, err := pricer.Shoulder.NightlyRate(c, doubleRate(), night)
		require.NoError(t, err)
		require.Equal(t, hotel.NightPreShoulder, n.Type)
	}

	// WHEN: every night is a shoulder night
	_, err := pricer.PriceStay(hotel.StayRequest{Contract: c, Rate: doubleRate(), Stay: only, Quantity: 1})

	// THEN: no contract night anchors the rate
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
	assert.False(t, hotel.OverlapsValidity(c, doubleRate(), only))

	// One contract night is enough
	anchored := stay(t, "2025-06-07", "2025-06-11")
	assert.True(t, hotel.OverlapsValidity(c, doubleRate(), anchored))
	q, err := pricer.PriceStay(hotel.StayRequest{Contract: c, Rate: doubleRate(), Stay: anchored, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, q.PerRoom.ShoulderNights)
	assert.Equal(t, 1, q.PerRoom.RegularNights)
}

/*
pricing.go - Cost and selling-price breakdown for a stay

PURPOSE:
  Turns the nightly base rates of a stay into a cost breakdown (what we
  pay the supplier, taxes and fees included) and a selling price (cost
  plus markup). Computed per room, then scaled by quantity.

ALGORITHM (per room):
   1. total_base_rate      = sum(nightly base rate)
   2. total_board_cost     = board_cost_per_night * nights
   3. commission           = total_base_rate * supplier_commission_rate
   4. net_rate             = (total_base_rate - commission) + total_board_cost
   5. resort_fee           = resort_fee_per_night * nights
   6. subtotal_before_vat  = net_rate + resort_fee
   7. vat                  = subtotal_before_vat * tax_rate
   8. city_tax             = city_tax_per_person_per_night * people * nights
   9. total_cost           = subtotal_before_vat + vat + city_tax
  10. selling_price        = SplitMarkup(total_cost, ...)
  11. markup_amount        = selling_price - total_cost

  Board cost is excluded from commission. Amounts stay exact (decimal);
  rounding happens only at presentation.

EXAMPLE (3 nights double at 150, commission 10%, tax 10%, city tax 2,
resort fee 5, markup 60%):
  base 450, commission 45, net 405, resort 15, subtotal 420, vat 42,
  city tax 12, total cost 474, selling 758.40
*/
package hotel

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/generic"
)

// Terms are the contract's financial terms used in pricing.
type Terms struct {
	Currency                 string
	SupplierCommissionRate   generic.Fraction
	TaxRate                  generic.Fraction
	CityTaxPerPersonPerNight decimal.Decimal
	ResortFeePerNight        decimal.Decimal
}

// TermsOf extracts the pricing terms of a contract.
func TermsOf(c Contract) Terms {
	return Terms{
		Currency:                 c.Currency,
		SupplierCommissionRate:   c.SupplierCommissionRate,
		TaxRate:                  c.TaxRate,
		CityTaxPerPersonPerNight: c.CityTaxPerPersonPerNight,
		ResortFeePerNight:        c.ResortFeePerNight,
	}
}

type PriceInput struct {
	Nightly           []NightlyRate
	Quantity          int
	PeoplePerRoom     int
	BoardCostPerNight decimal.Decimal
	Terms             Terms
	Markup            generic.Fraction
	ShoulderMarkup    generic.Fraction
}

// Breakdown holds every intermediate figure of the calculation.
type Breakdown struct {
	Nights         int
	RegularNights  int
	ShoulderNights int

	TotalBaseRate     generic.Money
	TotalBoardCost    generic.Money
	Commission        generic.Money
	NetRate           generic.Money
	ResortFee         generic.Money
	SubtotalBeforeVAT generic.Money
	VAT               generic.Money
	CityTax           generic.Money
	TotalCost         generic.Money

	RegularCostShare  generic.Money
	ShoulderCostShare generic.Money
	SellingPrice      generic.Money
	MarkupAmount      generic.Money
}

// Scale multiplies every amount by quantity.
func (b Breakdown) Scale(quantity int) Breakdown {
	q := decimal.NewFromInt(int64(quantity))
	b.TotalBaseRate = b.TotalBaseRate.Mul(q)
	b.TotalBoardCost = b.TotalBoardCost.Mul(q)
	b.Commission = b.Commission.Mul(q)
	b.NetRate = b.NetRate.Mul(q)
	b.ResortFee = b.ResortFee.Mul(q)
	b.SubtotalBeforeVAT = b.SubtotalBeforeVAT.Mul(q)
	b.VAT = b.VAT.Mul(q)
	b.CityTax = b.CityTax.Mul(q)
	b.TotalCost = b.TotalCost.Mul(q)
	b.RegularCostShare = b.RegularCostShare.Mul(q)
	b.ShoulderCostShare = b.ShoulderCostShare.Mul(q)
	b.SellingPrice = b.SellingPrice.Mul(q)
	b.MarkupAmount = b.MarkupAmount.Mul(q)
	return b
}

// Validate checks the identities every breakdown must satisfy.
func (b Breakdown) Validate() error {
	if !b.SubtotalBeforeVAT.Add(b.VAT).Add(b.CityTax).Amount.Equal(b.TotalCost.Amount) {
		return fmt.Errorf("total cost %s != subtotal + vat + city tax", b.TotalCost)
	}
	if !b.SellingPrice.Sub(b.TotalCost).Amount.Equal(b.MarkupAmount.Amount) {
		return fmt.Errorf("markup %s != selling - cost", b.MarkupAmount)
	}
	if b.RegularNights+b.ShoulderNights != b.Nights {
		return fmt.Errorf("night counts %d + %d != %d", b.RegularNights, b.ShoulderNights, b.Nights)
	}
	return nil
}

// Quote is the priced result for Quantity rooms.
type Quote struct {
	RateID   generic.RateID
	Quantity int
	Nightly  []NightlyRate
	PerRoom  Breakdown
	Total    Breakdown
}

// MarkupSplitter computes the selling price from the total cost.
// SplitMarkup is the default; a per-night weighted variant can replace it.
type MarkupSplitter func(totalCost generic.Money, regularNights, shoulderNights int, markup, shoulderMarkup generic.Fraction) (regularShare, shoulderShare, selling generic.Money)

// SplitMarkup divides the cost by night type using the AVERAGE cost per
// night, then applies markup to the regular share and shoulder markup to
// the shoulder share. It does not weight by the actual nightly cost of
// shoulder vs contract nights.
func SplitMarkup(totalCost generic.Money, regularNights, shoulderNights int, markup, shoulderMarkup generic.Fraction) (generic.Money, generic.Money, generic.Money) {
	nights := regularNights + shoulderNights
	if nights == 0 {
		zero := totalCost.Zero()
		return zero, zero, zero
	}
	// average * regular, multiplied before dividing to stay exact
	regular := totalCost.MulInt(regularNights).Div(nights)
	shoulder := totalCost.Sub(regular)
	selling := regular.Mul(markup.OnePlus()).Add(shoulder.Mul(shoulderMarkup.OnePlus()))
	return regular, shoulder, selling
}

// Calculator produces breakdowns. The zero value uses SplitMarkup.
type Calculator struct {
	Splitter MarkupSplitter
}

// Calculate runs the algorithm for one room and scales it by quantity.
func (calc Calculator) Calculate(in PriceInput) (Quote, error) {
	nights := len(in.Nightly)
	if nights == 0 {
		return Quote{}, fmt.Errorf("%w: no nights to price", generic.ErrInvalidPeriod)
	}
	if in.Quantity <= 0 {
		return Quote{}, fmt.Errorf("%w: %d rooms", generic.ErrInvalidQuantity, in.Quantity)
	}
	if in.PeoplePerRoom <= 0 {
		return Quote{}, fmt.Errorf("%w: %d people per room", generic.ErrInvalidQuantity, in.PeoplePerRoom)
	}
	if err := validateAmounts(in); err != nil {
		return Quote{}, err
	}

	cur := in.Terms.Currency
	n := decimal.NewFromInt(int64(nights))
	people := decimal.NewFromInt(int64(in.PeoplePerRoom))

	base := generic.ZeroMoney(cur)
	for _, night := range in.Nightly {
		base = base.Add(generic.NewMoneyFromDecimal(night.BaseRate, cur))
	}
	board := generic.NewMoneyFromDecimal(in.BoardCostPerNight.Mul(n), cur)
	commission := base.Mul(in.Terms.SupplierCommissionRate.Decimal)
	net := base.Sub(commission).Add(board)
	resort := generic.NewMoneyFromDecimal(in.Terms.ResortFeePerNight.Mul(n), cur)
	subtotal := net.Add(resort)
	vat := subtotal.Mul(in.Terms.TaxRate.Decimal)
	cityTax := generic.NewMoneyFromDecimal(in.Terms.CityTaxPerPersonPerNight.Mul(people).Mul(n), cur)
	totalCost := subtotal.Add(vat).Add(cityTax)

	regularNights, shoulderNights := CountNights(in.Nightly)
	split := calc.Splitter
	if split == nil {
		split = SplitMarkup
	}
	regularShare, shoulderShare, selling := split(totalCost, regularNights, shoulderNights, in.Markup, in.ShoulderMarkup)

	perRoom := Breakdown{
		Nights:            nights,
		RegularNights:     regularNights,
		ShoulderNights:    shoulderNights,
		TotalBaseRate:     base,
		TotalBoardCost:    board,
		Commission:        commission,
		NetRate:           net,
		ResortFee:         resort,
		SubtotalBeforeVAT: subtotal,
		VAT:               vat,
		CityTax:           cityTax,
		TotalCost:         totalCost,
		RegularCostShare:  regularShare,
		ShoulderCostShare: shoulderShare,
		SellingPrice:      selling,
		MarkupAmount:      selling.Sub(totalCost),
	}

	return Quote{
		Quantity: in.Quantity,
		Nightly:  in.Nightly,
		PerRoom:  perRoom,
		Total:    perRoom.Scale(in.Quantity),
	}, nil
}

func validateAmounts(in PriceInput) error {
	if in.BoardCostPerNight.IsNegative() ||
		in.Terms.CityTaxPerPersonPerNight.IsNegative() ||
		in.Terms.ResortFeePerNight.IsNegative() {
		return fmt.Errorf("%w: negative fee or board cost", generic.ErrInvalidQuantity)
	}
	for _, night := range in.Nightly {
		if night.BaseRate.IsNegative() {
			return fmt.Errorf("%w: negative base rate on %s", generic.ErrInvalidQuantity, night.Date)
		}
	}
	return nil
}

// BoardCostPerNight resolves board cost: included board is charged per
// person, otherwise an explicit override applies, otherwise zero.
func BoardCostPerNight(r Rate, occupancy OccupancyType, override *decimal.Decimal) decimal.Decimal {
	if r.IncludesBoard {
		return r.BoardCostPerPerson.Mul(decimal.NewFromInt(int64(occupancy.Headcount())))
	}
	if override != nil {
		return *override
	}
	return decimal.Zero
}

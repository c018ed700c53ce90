package hotel

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/generic"
)

// StayRequest is everything needed to price one rate for a stay.
type StayRequest struct {
	Contract          Contract
	Rate              Rate
	Stay              generic.Stay
	Quantity          int
	BoardCostOverride *decimal.Decimal
}

// Pricer chains nights validation, shoulder resolution and the price
// calculation. Availability is not its concern.
type Pricer struct {
	Shoulder   ShoulderResolver
	Calculator Calculator
}

func NewPricer(policy ShoulderPolicy) Pricer {
	return Pricer{Shoulder: ShoulderResolver{Policy: policy}}
}

// PriceStay validates the stay length and returns the breakdown per room
// and for the whole quantity.
func (p Pricer) PriceStay(req StayRequest) (Quote, error) {
	c, r := req.Contract, req.Rate
	if r.ContractID != "" && r.ContractID != c.ID {
		return Quote{}, fmt.Errorf("%w: rate %s belongs to contract %s, not %s", generic.ErrInvalidAllocationConfig, r.ID, r.ContractID, c.ID)
	}
	if err := ValidateNights(c, r, req.Stay); err != nil {
		return Quote{}, err
	}
	if !OverlapsValidity(c, r, req.Stay) {
		return Quote{}, fmt.Errorf("%w: stay %s does not overlap rate validity %s", generic.ErrInvalidPeriod, req.Stay, r.Validity(c))
	}

	nightly, err := p.Shoulder.StayRates(c, r, req.Stay)
	if err != nil {
		return Quote{}, err
	}

	q, err := p.Calculator.Calculate(PriceInput{
		Nightly:           nightly,
		Quantity:          req.Quantity,
		PeoplePerRoom:     r.Occupancy.Headcount(),
		BoardCostPerNight: BoardCostPerNight(r, r.Occupancy, req.BoardCostOverride),
		Terms:             TermsOf(c),
		Markup:            r.MarkupPercentage,
		ShoulderMarkup:    r.ShoulderMarkupPercentage,
	})
	if err != nil {
		return Quote{}, err
	}
	q.RateID = r.ID
	return q, nil
}

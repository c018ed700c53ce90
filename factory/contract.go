/*
Package factory provides JSON to Go contract conversion.

PURPOSE:
  Converts JSON contract and rate definitions into hotel.Contract and
  hotel.Rate values. Supplier contracts are loaded by operators or an admin
  tool as JSON; the factory validates them before anything is sold:

  - Percentages are fractions in [0, 1] ("0.10", never "10")
  - Dates are YYYY-MM-DD and end is not before start
  - Room allocations are disjoint (a room group sells from one pool only)
  - min_nights <= max_nights when both are set

JSON SCHEMA:
  {
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
    "post_shoulder_rates": ["90"],
    "min_nights": 1,
    "max_nights": 14,
    "room_allocations": [
      {
        "label": "standard",
        "room_group_ids": ["double", "twin"],
        "quantity": 10,
        "occupancy_rates": {"single": "120", "double": "150"}
      }
    ]
  }

  Amounts accept JSON numbers or strings; strings are preferred since they
  survive the round trip without float rounding.

USAGE:
  f := factory.NewContractFactory()
  contract, err := f.ParseContract(jsonStr)
  rates := f.GenerateRates(contract, factory.RateDefaults{Markup: generic.MustFraction("0.3")})

SEE ALSO:
  - hotel/types.go: Contract and Rate definitions
  - hotel/allocation.go: ValidateAllocations
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ContractJSON is the JSON representation of a contract.
type ContractJSON struct {
	ID                       string               `json:"id"`
	SupplierID               string               `json:"supplier_id,omitempty"`
	Name                     string               `json:"name,omitempty"`
	StartDate                string               `json:"start_date"`
	EndDate                  string               `json:"end_date"`
	Currency                 string               `json:"currency"`
	TaxRate                  decimal.Decimal      `json:"tax_rate"`
	CityTaxPerPersonPerNight decimal.Decimal      `json:"city_tax_per_person_per_night"`
	ResortFeePerNight        decimal.Decimal      `json:"resort_fee_per_night"`
	SupplierCommissionRate   decimal.Decimal      `json:"supplier_commission_rate"`
	PreShoulderRates         []decimal.Decimal    `json:"pre_shoulder_rates,omitempty"`
	PostShoulderRates        []decimal.Decimal    `json:"post_shoulder_rates,omitempty"`
	MinNights                int                  `json:"min_nights,omitempty"`
	MaxNights                int                  `json:"max_nights,omitempty"`
	RoomAllocations          []RoomAllocationJSON `json:"room_allocations"`
}

// RoomAllocationJSON represents one pool of rooms.
type RoomAllocationJSON struct {
	Label             string                     `json:"label,omitempty"`
	RoomGroupIDs      []string                   `json:"room_group_ids"`
	Quantity          int                        `json:"quantity"`
	OccupancyRates    map[string]decimal.Decimal `json:"occupancy_rates,omitempty"`
	BaseRate          *decimal.Decimal           `json:"base_rate,omitempty"`
	AllocationPoolID  string                     `json:"allocation_pool_id,omitempty"`
	AllowsOverbooking bool                       `json:"allows_overbooking,omitempty"`
	OverbookingLimit  int                        `json:"overbooking_limit,omitempty"`
	WaitlistEnabled   bool                       `json:"waitlist_enabled,omitempty"`
	WaitlistMaxSize   int                        `json:"waitlist_max_size,omitempty"`
}

// RateJSON is the JSON representation of a rate.
type RateJSON struct {
	ID                       string          `json:"id"`
	ContractID               string          `json:"contract_id"`
	RoomGroupID              string          `json:"room_group_id"`
	OccupancyType            string          `json:"occupancy_type"`
	BoardType                string          `json:"board_type,omitempty"`
	Rate                     decimal.Decimal `json:"rate"`
	MarkupPercentage         decimal.Decimal `json:"markup_percentage"`
	ShoulderMarkupPercentage decimal.Decimal `json:"shoulder_markup_percentage"`
	ValidFrom                string          `json:"valid_from,omitempty"`
	ValidTo                  string          `json:"valid_to,omitempty"`
	MinNights                int             `json:"min_nights,omitempty"`
	MaxNights                int             `json:"max_nights,omitempty"`
	IncludesBoard            bool            `json:"includes_board,omitempty"`
	BoardCostPerPerson       decimal.Decimal `json:"board_cost_per_person,omitempty"`
}

// =============================================================================
// CONTRACT FACTORY
// =============================================================================

// ContractFactory converts JSON contracts and rates to Go structs.
type ContractFactory struct{}

func NewContractFactory() *ContractFactory {
	return &ContractFactory{}
}

// ParseContract parses a JSON string into a validated Contract.
func (f *ContractFactory) ParseContract(jsonStr string) (hotel.Contract, error) {
	var cj ContractJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return hotel.Contract{}, fmt.Errorf("failed to parse contract JSON: %w", err)
	}
	return f.ContractFromJSON(cj)
}

// ContractFromJSON converts and validates a ContractJSON.
func (f *ContractFactory) ContractFromJSON(cj ContractJSON) (hotel.Contract, error) {
	if cj.ID == "" {
		return hotel.Contract{}, fmt.Errorf("%w: contract id is required", generic.ErrInvalidAllocationConfig)
	}
	if cj.Currency == "" {
		return hotel.Contract{}, fmt.Errorf("%w: contract %s has no currency", generic.ErrInvalidAllocationConfig, cj.ID)
	}
	period, err := parsePeriod(cj.StartDate, cj.EndDate)
	if err != nil {
		return hotel.Contract{}, fmt.Errorf("contract %s: %w", cj.ID, err)
	}

	c := hotel.Contract{
		ID:                       generic.ContractID(cj.ID),
		SupplierID:               cj.SupplierID,
		Name:                     cj.Name,
		Period:                   period,
		Currency:                 cj.Currency,
		CityTaxPerPersonPerNight: cj.CityTaxPerPersonPerNight,
		ResortFeePerNight:        cj.ResortFeePerNight,
		PreShoulderRates:         cj.PreShoulderRates,
		PostShoulderRates:        cj.PostShoulderRates,
		MinNights:                cj.MinNights,
		MaxNights:                cj.MaxNights,
	}
	if c.TaxRate, err = fraction("tax_rate", cj.TaxRate); err != nil {
		return hotel.Contract{}, err
	}
	if c.SupplierCommissionRate, err = fraction("supplier_commission_rate", cj.SupplierCommissionRate); err != nil {
		return hotel.Contract{}, err
	}
	if err := nonNegative("city_tax_per_person_per_night", cj.CityTaxPerPersonPerNight); err != nil {
		return hotel.Contract{}, err
	}
	if err := nonNegative("resort_fee_per_night", cj.ResortFeePerNight); err != nil {
		return hotel.Contract{}, err
	}
	for i, r := range append(append([]decimal.Decimal{}, cj.PreShoulderRates...), cj.PostShoulderRates...) {
		if err := nonNegative(fmt.Sprintf("shoulder rate #%d", i), r); err != nil {
			return hotel.Contract{}, err
		}
	}
	if err := validateNightsRange(cj.MinNights, cj.MaxNights); err != nil {
		return hotel.Contract{}, fmt.Errorf("contract %s: %w", cj.ID, err)
	}

	for _, aj := range cj.RoomAllocations {
		a, err := parseAllocation(aj)
		if err != nil {
			return hotel.Contract{}, fmt.Errorf("contract %s: %w", cj.ID, err)
		}
		c.RoomAllocations = append(c.RoomAllocations, a)
	}
	if err := hotel.ValidateAllocations(c); err != nil {
		return hotel.Contract{}, err
	}

	return c, nil
}

// ContractToJSON converts a Contract back to its JSON form.
func (f *ContractFactory) ContractToJSON(c hotel.Contract) ContractJSON {
	cj := ContractJSON{
		ID:                       string(c.ID),
		SupplierID:               c.SupplierID,
		Name:                     c.Name,
		StartDate:                c.Period.Start.String(),
		EndDate:                  c.Period.End.String(),
		Currency:                 c.Currency,
		TaxRate:                  c.TaxRate.Decimal,
		CityTaxPerPersonPerNight: c.CityTaxPerPersonPerNight,
		ResortFeePerNight:        c.ResortFeePerNight,
		SupplierCommissionRate:   c.SupplierCommissionRate.Decimal,
		PreShoulderRates:         c.PreShoulderRates,
		PostShoulderRates:        c.PostShoulderRates,
		MinNights:                c.MinNights,
		MaxNights:                c.MaxNights,
	}
	for _, a := range c.RoomAllocations {
		aj := RoomAllocationJSON{
			Label:             a.Label,
			Quantity:          a.Quantity,
			BaseRate:          a.BaseRate,
			AllocationPoolID:  string(a.AllocationPoolID),
			AllowsOverbooking: a.AllowsOverbooking,
			OverbookingLimit:  a.OverbookingLimit,
			WaitlistEnabled:   a.WaitlistEnabled,
			WaitlistMaxSize:   a.WaitlistMaxSize,
		}
		for _, g := range a.RoomGroupIDs {
			aj.RoomGroupIDs = append(aj.RoomGroupIDs, string(g))
		}
		if len(a.OccupancyRates) > 0 {
			aj.OccupancyRates = make(map[string]decimal.Decimal, len(a.OccupancyRates))
			for o, r := range a.OccupancyRates {
				aj.OccupancyRates[string(o)] = r
			}
		}
		cj.RoomAllocations = append(cj.RoomAllocations, aj)
	}
	return cj
}

// =============================================================================
// RATES
// =============================================================================

// ParseRate parses a JSON string into a Rate.
func (f *ContractFactory) ParseRate(jsonStr string) (hotel.Rate, error) {
	var rj RateJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return hotel.Rate{}, fmt.Errorf("failed to parse rate JSON: %w", err)
	}
	return f.RateFromJSON(rj)
}

// RateFromJSON converts and validates a RateJSON. Contract membership is
// checked by the caller that owns the contract.
func (f *ContractFactory) RateFromJSON(rj RateJSON) (hotel.Rate, error) {
	if rj.ID == "" || rj.ContractID == "" || rj.RoomGroupID == "" {
		return hotel.Rate{}, fmt.Errorf("%w: rate requires id, contract_id and room_group_id", generic.ErrInvalidAllocationConfig)
	}
	occupancy, err := hotel.ParseOccupancy(rj.OccupancyType)
	if err != nil {
		return hotel.Rate{}, fmt.Errorf("%w: rate %s: %v", generic.ErrInvalidAllocationConfig, rj.ID, err)
	}
	board := hotel.BoardType(rj.BoardType)
	if board == "" {
		board = hotel.BoardRoomOnly
	}

	r := hotel.Rate{
		ID:                 generic.RateID(rj.ID),
		ContractID:         generic.ContractID(rj.ContractID),
		RoomGroupID:        generic.RoomGroupID(rj.RoomGroupID),
		Occupancy:          occupancy,
		BoardType:          board,
		Rate:               rj.Rate,
		MinNights:          rj.MinNights,
		MaxNights:          rj.MaxNights,
		IncludesBoard:      rj.IncludesBoard,
		BoardCostPerPerson: rj.BoardCostPerPerson,
	}
	if err := nonNegative("rate", rj.Rate); err != nil {
		return hotel.Rate{}, err
	}
	if err := nonNegative("board_cost_per_person", rj.BoardCostPerPerson); err != nil {
		return hotel.Rate{}, err
	}
	if r.MarkupPercentage, err = fraction("markup_percentage", rj.MarkupPercentage); err != nil {
		return hotel.Rate{}, err
	}
	if r.ShoulderMarkupPercentage, err = fraction("shoulder_markup_percentage", rj.ShoulderMarkupPercentage); err != nil {
		return hotel.Rate{}, err
	}
	if rj.ValidFrom != "" {
		if r.ValidFrom, err = generic.ParseDate(rj.ValidFrom); err != nil {
			return hotel.Rate{}, fmt.Errorf("%w: valid_from: %v", generic.ErrInvalidPeriod, err)
		}
	}
	if rj.ValidTo != "" {
		if r.ValidTo, err = generic.ParseDate(rj.ValidTo); err != nil {
			return hotel.Rate{}, fmt.Errorf("%w: valid_to: %v", generic.ErrInvalidPeriod, err)
		}
	}
	if !r.ValidFrom.IsZero() && !r.ValidTo.IsZero() && r.ValidTo.Before(r.ValidFrom) {
		return hotel.Rate{}, fmt.Errorf("%w: rate %s valid_to before valid_from", generic.ErrInvalidPeriod, rj.ID)
	}
	if err := validateNightsRange(rj.MinNights, rj.MaxNights); err != nil {
		return hotel.Rate{}, fmt.Errorf("rate %s: %w", rj.ID, err)
	}
	return r, nil
}

// RateToJSON converts a Rate back to its JSON form.
func (f *ContractFactory) RateToJSON(r hotel.Rate) RateJSON {
	rj := RateJSON{
		ID:                       string(r.ID),
		ContractID:               string(r.ContractID),
		RoomGroupID:              string(r.RoomGroupID),
		OccupancyType:            string(r.Occupancy),
		BoardType:                string(r.BoardType),
		Rate:                     r.Rate,
		MarkupPercentage:         r.MarkupPercentage.Decimal,
		ShoulderMarkupPercentage: r.ShoulderMarkupPercentage.Decimal,
		MinNights:                r.MinNights,
		MaxNights:                r.MaxNights,
		IncludesBoard:            r.IncludesBoard,
		BoardCostPerPerson:       r.BoardCostPerPerson,
	}
	if !r.ValidFrom.IsZero() {
		rj.ValidFrom = r.ValidFrom.String()
	}
	if !r.ValidTo.IsZero() {
		rj.ValidTo = r.ValidTo.String()
	}
	return rj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parsePeriod(start, end string) (generic.Period, error) {
	s, err := generic.ParseDate(start)
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: start_date: %v", generic.ErrInvalidPeriod, err)
	}
	e, err := generic.ParseDate(end)
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: end_date: %v", generic.ErrInvalidPeriod, err)
	}
	return generic.NewPeriod(s, e)
}

func parseAllocation(aj RoomAllocationJSON) (hotel.RoomAllocation, error) {
	a := hotel.RoomAllocation{
		Label:             aj.Label,
		Quantity:          aj.Quantity,
		BaseRate:          aj.BaseRate,
		AllocationPoolID:  generic.PoolID(aj.AllocationPoolID),
		AllowsOverbooking: aj.AllowsOverbooking,
		OverbookingLimit:  aj.OverbookingLimit,
		WaitlistEnabled:   aj.WaitlistEnabled,
		WaitlistMaxSize:   aj.WaitlistMaxSize,
	}
	for _, g := range aj.RoomGroupIDs {
		a.RoomGroupIDs = append(a.RoomGroupIDs, generic.RoomGroupID(g))
	}
	if len(aj.OccupancyRates) > 0 {
		a.OccupancyRates = make(map[hotel.OccupancyType]decimal.Decimal, len(aj.OccupancyRates))
		for k, v := range aj.OccupancyRates {
			o, err := hotel.ParseOccupancy(k)
			if err != nil {
				return hotel.RoomAllocation{}, fmt.Errorf("%w: %v", generic.ErrInvalidAllocationConfig, err)
			}
			if err := nonNegative("occupancy rate "+k, v); err != nil {
				return hotel.RoomAllocation{}, err
			}
			a.OccupancyRates[o] = v
		}
	}
	return a, nil
}

func fraction(field string, d decimal.Decimal) (generic.Fraction, error) {
	f, err := generic.NewFraction(d)
	if err != nil {
		return generic.Fraction{}, fmt.Errorf("%s: %w", field, err)
	}
	return f, nil
}

func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s is negative (%s)", generic.ErrInvalidQuantity, field, d)
	}
	return nil
}

func validateNightsRange(minN, maxN int) error {
	if minN < 0 || maxN < 0 {
		return fmt.Errorf("%w: negative nights limit", generic.ErrInvalidQuantity)
	}
	if maxN > 0 && minN > maxN {
		return fmt.Errorf("%w: min_nights %d > max_nights %d", generic.ErrInvalidPeriod, minN, maxN)
	}
	return nil
}

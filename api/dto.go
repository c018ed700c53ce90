/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract. Money is rendered as a
  fixed two-decimal string; amounts are never floats on the wire.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Contracts:  ContractDTO (wraps factory.ContractJSON), CreateContractRequest
  Quotes:     QuoteRequest, QuoteDTO, BreakdownDTO, NightDTO
  Bookings:   CommitRequest, BookingDTO, BookingRoomDTO, CancelDTO
  Pools:      PoolDTO, CreatePoolRequest, AvailabilityDTO, ReconcileDTO
  Scenarios:  ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers and the factory, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/contract.go: ContractJSON and RateJSON
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/booking"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

// =============================================================================
// CONTRACTS
// =============================================================================

type ContractDTO struct {
	ID         string               `json:"id"`
	SupplierID string               `json:"supplier_id,omitempty"`
	Name       string               `json:"name,omitempty"`
	StartDate  string               `json:"start_date"`
	EndDate    string               `json:"end_date"`
	Currency   string               `json:"currency"`
	Config     factory.ContractJSON `json:"config"`
}

// CreateContractRequest uploads a contract with explicit rates, generated
// rates, or both.
type CreateContractRequest struct {
	Contract      factory.ContractJSON `json:"contract"`
	Rates         []factory.RateJSON   `json:"rates,omitempty"`
	GenerateRates *GenerateRatesDTO    `json:"generate_rates,omitempty"`
}

type GenerateRatesDTO struct {
	BoardType      string          `json:"board_type,omitempty"`
	Markup         decimal.Decimal `json:"markup_percentage"`
	ShoulderMarkup decimal.Decimal `json:"shoulder_markup_percentage"`
}

type CreateContractResponse struct {
	Contract ContractDTO `json:"contract"`
	Rates    int         `json:"rates"`
	Pools    []PoolDTO   `json:"pools"`
}

// =============================================================================
// QUOTES
// =============================================================================

type QuoteRequest struct {
	Kind        string `json:"kind,omitempty"`
	ContractID  string `json:"contract_id"`
	RoomGroupID string `json:"room_group_id"`
	Occupancy   string `json:"occupancy"`
	BoardType   string `json:"board_type,omitempty"`
	CheckIn     string `json:"check_in"`
	CheckOut    string `json:"check_out"`
	Quantity    int    `json:"quantity"`
	BoardCost   string `json:"board_cost,omitempty"`
}

type NightDTO struct {
	Date     string `json:"date"`
	Type     string `json:"type"`
	BaseRate string `json:"base_rate"`
	Offset   int    `json:"offset,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// BreakdownDTO mirrors hotel.Breakdown with rounded amounts.
type BreakdownDTO struct {
	Nights            int    `json:"nights"`
	RegularNights     int    `json:"regular_nights"`
	ShoulderNights    int    `json:"shoulder_nights"`
	TotalBaseRate     string `json:"total_base_rate"`
	TotalBoardCost    string `json:"total_board_cost"`
	Commission        string `json:"commission"`
	NetRate           string `json:"net_rate"`
	ResortFee         string `json:"resort_fee"`
	SubtotalBeforeVAT string `json:"subtotal_before_vat"`
	VAT               string `json:"vat"`
	CityTax           string `json:"city_tax"`
	TotalCost         string `json:"total_cost"`
	SellingPrice      string `json:"selling_price"`
	MarkupAmount      string `json:"markup_amount"`
}

type QuoteDTO struct {
	ID           string       `json:"id"`
	ContractID   string       `json:"contract_id"`
	RoomGroupID  string       `json:"room_group_id"`
	RateID       string       `json:"rate_id"`
	Occupancy    string       `json:"occupancy"`
	CheckIn      string       `json:"check_in"`
	CheckOut     string       `json:"check_out"`
	Quantity     int          `json:"quantity"`
	PoolKey      string       `json:"pool_key"`
	Available    bool         `json:"available"`
	Waitlistable bool         `json:"waitlistable"`
	Remaining    int          `json:"remaining"`
	Currency     string       `json:"currency"`
	Nightly      []NightDTO   `json:"nightly"`
	PerRoom      BreakdownDTO `json:"per_room"`
	Total        BreakdownDTO `json:"total"`
	ExpiresAt    string       `json:"expires_at"`
}

// =============================================================================
// BOOKINGS
// =============================================================================

type CommitRequest struct {
	QuoteIDs      []string `json:"quote_ids"`
	Customer      string   `json:"customer,omitempty"`
	Reference     string   `json:"reference,omitempty"`
	AllowWaitlist bool     `json:"allow_waitlist,omitempty"`
}

type BookingRoomDTO struct {
	RateID       string `json:"rate_id"`
	PoolKey      string `json:"pool_key"`
	Quantity     int    `json:"quantity"`
	Occupancy    string `json:"occupancy"`
	PricePerRoom string `json:"price_per_room"`
	TotalPrice   string `json:"total_price"`
	Status       string `json:"status"`
}

type BookingDTO struct {
	ID          string           `json:"id"`
	Reference   string           `json:"reference,omitempty"`
	Customer    string           `json:"customer,omitempty"`
	ContractID  string           `json:"contract_id"`
	CheckIn     string           `json:"check_in"`
	CheckOut    string           `json:"check_out"`
	Status      string           `json:"status"`
	Waitlisted  bool             `json:"waitlisted"`
	Total       string           `json:"total"`
	Currency    string           `json:"currency"`
	Rooms       []BookingRoomDTO `json:"rooms"`
	CreatedAt   string           `json:"created_at"`
	CancelledAt *string          `json:"cancelled_at,omitempty"`
}

type CancelDTO struct {
	BookingID string `json:"booking_id"`
	Cancelled bool   `json:"cancelled"`
	Released  int    `json:"released"`
}

// =============================================================================
// POOLS
// =============================================================================

type PoolDTO struct {
	Key             string `json:"key"`
	Label           string `json:"label,omitempty"`
	TotalCapacity   int    `json:"total_capacity"`
	CurrentBookings int    `json:"current_bookings"`
	AvailableSpots  int    `json:"available_spots"`
	MaxSellable     int    `json:"max_sellable"`
	WaitlistSize    int    `json:"waitlist_size"`
	Health          string `json:"health"`
	State           string `json:"state"`
}

// CreatePoolRequest registers a manual pool that allocations reference by
// allocation_pool_id.
type CreatePoolRequest struct {
	PoolID            string `json:"pool_id"`
	Label             string `json:"label,omitempty"`
	TotalCapacity     int    `json:"total_capacity"`
	AllowsOverbooking bool   `json:"allows_overbooking,omitempty"`
	OverbookingLimit  int    `json:"overbooking_limit,omitempty"`
	WaitlistEnabled   bool   `json:"waitlist_enabled,omitempty"`
	WaitlistMaxSize   int    `json:"waitlist_max_size,omitempty"`
}

type AvailabilityDTO struct {
	PoolKey          string   `json:"pool_key"`
	RoomGroupIDs     []string `json:"room_group_ids"`
	Capacity         int      `json:"capacity"`
	Booked           int      `json:"booked"`
	Available        int      `json:"available"`
	OverbookingLimit int      `json:"overbooking_limit"`
	MaxSellable      int      `json:"max_sellable"`
	Health           string   `json:"health"`
}

type ReconcileDTO struct {
	PoolKey      string `json:"pool_key"`
	Stored       int    `json:"stored"`
	Reservations int    `json:"reservations"`
	Scanned      int    `json:"scanned"`
	Consistent   bool   `json:"consistent"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(m generic.Money) string { return m.Amount.StringFixed(2) }

func toContractDTO(f *factory.ContractFactory, c hotel.Contract) ContractDTO {
	return ContractDTO{
		ID:         string(c.ID),
		SupplierID: c.SupplierID,
		Name:       c.Name,
		StartDate:  c.Period.Start.String(),
		EndDate:    c.Period.End.String(),
		Currency:   c.Currency,
		Config:     f.ContractToJSON(c),
	}
}

func toBreakdownDTO(b hotel.Breakdown) BreakdownDTO {
	return BreakdownDTO{
		Nights:            b.Nights,
		RegularNights:     b.RegularNights,
		ShoulderNights:    b.ShoulderNights,
		TotalBaseRate:     money(b.TotalBaseRate),
		TotalBoardCost:    money(b.TotalBoardCost),
		Commission:        money(b.Commission),
		NetRate:           money(b.NetRate),
		ResortFee:         money(b.ResortFee),
		SubtotalBeforeVAT: money(b.SubtotalBeforeVAT),
		VAT:               money(b.VAT),
		CityTax:           money(b.CityTax),
		TotalCost:         money(b.TotalCost),
		SellingPrice:      money(b.SellingPrice),
		MarkupAmount:      money(b.MarkupAmount),
	}
}

func toQuoteDTO(q booking.Quote) QuoteDTO {
	nightly := make([]NightDTO, len(q.Nightly))
	for i, n := range q.Nightly {
		nightly[i] = NightDTO{
			Date:     n.Date.String(),
			Type:     string(n.Type),
			BaseRate: n.BaseRate.StringFixed(2),
			Offset:   n.Offset,
			Fallback: n.Fallback,
		}
	}
	return QuoteDTO{
		ID:           string(q.ID),
		ContractID:   string(q.ContractID),
		RoomGroupID:  string(q.RoomGroupID),
		RateID:       string(q.RateID),
		Occupancy:    string(q.Occupancy),
		CheckIn:      q.Stay.CheckIn.String(),
		CheckOut:     q.Stay.CheckOut.String(),
		Quantity:     q.Quantity,
		PoolKey:      string(q.PoolKey),
		Available:    q.Available,
		Waitlistable: q.Waitlistable,
		Remaining:    q.Remaining,
		Currency:     q.Currency,
		Nightly:      nightly,
		PerRoom:      toBreakdownDTO(q.PerRoom),
		Total:        toBreakdownDTO(q.Total),
		ExpiresAt:    q.ExpiresAt.Format(time.RFC3339),
	}
}

func toBookingDTO(b hotel.Booking) BookingDTO {
	currency := ""
	rooms := make([]BookingRoomDTO, len(b.Rooms))
	for i, r := range b.Rooms {
		if currency == "" {
			currency = r.TotalPrice.Currency
		}
		rooms[i] = BookingRoomDTO{
			RateID:       string(r.RateID),
			PoolKey:      string(r.PoolKey),
			Quantity:     r.Quantity,
			Occupancy:    string(r.Occupancy),
			PricePerRoom: money(r.PricePerRoom),
			TotalPrice:   money(r.TotalPrice),
			Status:       string(r.Status),
		}
	}
	dto := BookingDTO{
		ID:         string(b.ID),
		Reference:  b.Reference,
		Customer:   b.Customer,
		ContractID: string(b.ContractID),
		CheckIn:    b.Stay.CheckIn.String(),
		CheckOut:   b.Stay.CheckOut.String(),
		Status:     string(b.Status),
		Waitlisted: b.Waitlisted,
		Total:      money(b.TotalPrice(currency)),
		Currency:   currency,
		Rooms:      rooms,
		CreatedAt:  b.CreatedAt.Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		s := b.CancelledAt.Format(time.RFC3339)
		dto.CancelledAt = &s
	}
	return dto
}

func toPoolDTO(p generic.PoolStatus) PoolDTO {
	return PoolDTO{
		Key:             string(p.Key),
		Label:           p.Label,
		TotalCapacity:   p.TotalCapacity,
		CurrentBookings: p.CurrentBookings,
		AvailableSpots:  p.AvailableSpots,
		MaxSellable:     p.MaxSellable,
		WaitlistSize:    p.WaitlistSize,
		Health:          string(p.Health),
		State:           string(p.State),
	}
}

func toPoolDTOs(ps []generic.PoolStatus) []PoolDTO {
	out := make([]PoolDTO, len(ps))
	for i, p := range ps {
		out[i] = toPoolDTO(p)
	}
	return out
}

func toAvailabilityDTO(a hotel.Availability) AvailabilityDTO {
	groups := make([]string, len(a.RoomGroupIDs))
	for i, g := range a.RoomGroupIDs {
		groups[i] = string(g)
	}
	return AvailabilityDTO{
		PoolKey:          string(a.Key),
		RoomGroupIDs:     groups,
		Capacity:         a.Capacity,
		Booked:           a.Booked,
		Available:        a.Available,
		OverbookingLimit: a.OverbookingLimit,
		MaxSellable:      a.MaxSellable,
		Health:           string(a.Health),
	}
}

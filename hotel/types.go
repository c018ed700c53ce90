package hotel

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// OCCUPANCY & BOARD
// =============================================================================

// OccupancyType determines headcount-scaled costs (city tax, board).
// The nightly room rate is already scaled for occupancy and is NOT per person.
type OccupancyType string

const (
	OccupancySingle OccupancyType = "single"
	OccupancyDouble OccupancyType = "double"
	OccupancyTriple OccupancyType = "triple"
	OccupancyQuad   OccupancyType = "quad"
)

var AllOccupancies = []OccupancyType{OccupancySingle, OccupancyDouble, OccupancyTriple, OccupancyQuad}

// Headcount returns people per room, 0 for unknown types.
func (o OccupancyType) Headcount() int {
	switch o {
	case OccupancySingle:
		return 1
	case OccupancyDouble:
		return 2
	case OccupancyTriple:
		return 3
	case OccupancyQuad:
		return 4
	default:
		return 0
	}
}

func ParseOccupancy(s string) (OccupancyType, error) {
	o := OccupancyType(s)
	if o.Headcount() == 0 {
		return "", fmt.Errorf("unknown occupancy type %q", s)
	}
	return o, nil
}

type BoardType string

const (
	BoardRoomOnly     BoardType = "room_only"
	BoardBedBreakfast BoardType = "bed_breakfast"
	BoardHalfBoard    BoardType = "half_board"
	BoardFullBoard    BoardType = "full_board"
	BoardAllInclusive BoardType = "all_inclusive"
)

// =============================================================================
// CONTRACT
// =============================================================================

// Contract is a supplier agreement: a date range, financial terms and the
// room allocations that can be sold under it.
type Contract struct {
	ID         generic.ContractID
	SupplierID string
	Name       string
	Period     generic.Period
	Currency   string

	TaxRate                  generic.Fraction
	CityTaxPerPersonPerNight decimal.Decimal
	ResortFeePerNight        decimal.Decimal
	SupplierCommissionRate   generic.Fraction

	// Index 0 is the night immediately before Period.Start.
	PreShoulderRates []decimal.Decimal
	// Index 0 is the night immediately after Period.End.
	PostShoulderRates []decimal.Decimal

	MinNights int
	MaxNights int // 0 = unbounded

	RoomAllocations []RoomAllocation
}

// RoomAllocation is a pool: Quantity rooms shared by every room group in
// RoomGroupIDs. Room group sets must be disjoint across one contract.
type RoomAllocation struct {
	RoomGroupIDs []generic.RoomGroupID
	Quantity     int
	Label        string

	OccupancyRates map[OccupancyType]decimal.Decimal
	BaseRate       *decimal.Decimal

	// AllocationPoolID links this allocation's inventory to allocations in
	// other contracts (e.g. shoulder contracts selling the same rooms).
	AllocationPoolID generic.PoolID

	AllowsOverbooking bool
	OverbookingLimit  int
	WaitlistEnabled   bool
	WaitlistMaxSize   int
}

// Key returns the ledger key of this allocation within a contract.
func (a RoomAllocation) Key(contractID generic.ContractID) generic.AllocationKey {
	if a.AllocationPoolID != "" {
		return generic.PoolKey(a.AllocationPoolID)
	}
	return generic.NewAllocationKey(contractID, a.RoomGroupIDs)
}

// Covers reports whether the allocation contains the room group.
func (a RoomAllocation) Covers(id generic.RoomGroupID) bool {
	for _, g := range a.RoomGroupIDs {
		if g == id {
			return true
		}
	}
	return false
}

// IsShared is true when more than one room group draws from this allocation.
func (a RoomAllocation) IsShared() bool { return len(a.RoomGroupIDs) > 1 }

// RateFor returns the configured nightly rate for an occupancy, falling
// back to BaseRate.
func (a RoomAllocation) RateFor(o OccupancyType) (decimal.Decimal, bool) {
	if r, ok := a.OccupancyRates[o]; ok {
		return r, true
	}
	if a.BaseRate != nil {
		return *a.BaseRate, true
	}
	return decimal.Zero, false
}

// PoolCapacity is the ledger entry this allocation registers.
func (a RoomAllocation) PoolCapacity(contractID generic.ContractID) generic.PoolCapacity {
	label := a.Label
	if label == "" {
		label = fmt.Sprintf("%s %v", contractID, a.RoomGroupIDs)
	}
	owner := contractID
	if a.AllocationPoolID != "" {
		owner = ""
	}
	return generic.PoolCapacity{
		Key:               a.Key(contractID),
		Label:             label,
		ContractID:        owner,
		TotalCapacity:     a.Quantity,
		AllowsOverbooking: a.AllowsOverbooking,
		OverbookingLimit:  a.OverbookingLimit,
		WaitlistEnabled:   a.WaitlistEnabled,
		WaitlistMaxSize:   a.WaitlistMaxSize,
	}
}

// =============================================================================
// RATE
// =============================================================================

// Rate is a sellable price for one room group, occupancy and board type.
type Rate struct {
	ID          generic.RateID
	ContractID  generic.ContractID
	RoomGroupID generic.RoomGroupID
	Occupancy   OccupancyType
	BoardType   BoardType

	// Nightly price already scaled for the occupancy type.
	Rate decimal.Decimal

	MarkupPercentage         generic.Fraction
	ShoulderMarkupPercentage generic.Fraction

	// Zero values inherit from the contract.
	ValidFrom generic.TimePoint
	ValidTo   generic.TimePoint
	MinNights int
	MaxNights int

	IncludesBoard      bool
	BoardCostPerPerson decimal.Decimal
}

// Validity is the rate's own window, defaulting to the contract dates.
func (r Rate) Validity(c Contract) generic.Period {
	p := c.Period
	if !r.ValidFrom.IsZero() {
		p.Start = r.ValidFrom
	}
	if !r.ValidTo.IsZero() {
		p.End = r.ValidTo
	}
	return p
}

// NightsRange returns [min, max] with rate-level values overriding the contract.
func (r Rate) NightsRange(c Contract) (int, int) {
	minN, maxN := c.MinNights, c.MaxNights
	if r.MinNights > 0 {
		minN = r.MinNights
	}
	if r.MaxNights > 0 {
		maxN = r.MaxNights
	}
	if minN < 1 {
		minN = 1
	}
	return minN, maxN
}

// =============================================================================
// BOOKING
// =============================================================================

type BookingStatus string

const (
	StatusConfirmed  BookingStatus = "confirmed"
	StatusPending    BookingStatus = "pending"
	StatusWaitlisted BookingStatus = "waitlisted"
	StatusCancelled  BookingStatus = "cancelled"
)

// Active is true for statuses that consume capacity. Waitlisted rooms
// hold a waitlist slot, not a room.
func (s BookingStatus) Active() bool { return s == StatusConfirmed || s == StatusPending }

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(s); st {
	case StatusConfirmed, StatusPending, StatusWaitlisted, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown booking status %q", s)
	}
}

type Booking struct {
	ID          generic.BookingID
	Reference   string
	Customer    string
	ContractID  generic.ContractID
	Stay        generic.Stay
	Status      BookingStatus
	Rooms       []BookingRoom
	Waitlisted  bool
	CreatedAt   time.Time
	CancelledAt *time.Time
}

// TotalPrice sums the selling price of all rooms.
func (b Booking) TotalPrice(currency string) generic.Money {
	total := generic.ZeroMoney(currency)
	for _, r := range b.Rooms {
		total = total.Add(r.TotalPrice)
	}
	return total
}

type BookingRoom struct {
	BookingID    generic.BookingID
	RateID       generic.RateID
	PoolKey      generic.AllocationKey
	Quantity     int
	Occupancy    OccupancyType
	PricePerRoom generic.Money
	TotalPrice   generic.Money
	Status       BookingStatus
}

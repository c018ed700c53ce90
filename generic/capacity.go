/*
capacity.go - Pool capacity, allocation keys and health status

PURPOSE:
  A pool is a quantity of physical inventory shared across one or more
  categories. Booking ANY category in the pool consumes from the SAME
  counter. This file defines the key that identifies a pool, the
  materialized capacity entry, and the two derived classifications:

  Health (dashboards):
    healthy     utilization < 75%
    warning     75% <= utilization < 90%
    critical    90% <= utilization <= 100%
    overbooked  utilization > 100%

  State (admission):
    available   spots > 0
    full        spots == 0
    waitlisted  spots <= 0 and waitlist enabled
    overbooked  spots < 0 (only possible when overbooking is allowed)

INVARIANT:
  CurrentBookings == sum of quantities of active reservations on the pool.
  CurrentBookings <= TotalCapacity + OverbookingLimit (if allowed, else 0).

SEE ALSO:
  - ledger.go: The only code path that mutates CurrentBookings
*/
package generic

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION KEY - hash(contract_id, sorted(room_group_ids))
// =============================================================================

// AllocationKey identifies one capacity counter.
type AllocationKey string

// NewAllocationKey derives the key for an allocation that owns its inventory.
// The room group order does not matter.
func NewAllocationKey(contractID ContractID, roomGroupIDs []RoomGroupID) AllocationKey {
	ids := make([]string, len(roomGroupIDs))
	for i, id := range roomGroupIDs {
		ids[i] = string(id)
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(string(contractID) + "|" + strings.Join(ids, ",")))
	return AllocationKey("alloc:" + hex.EncodeToString(sum[:8]))
}

// PoolKey is the key for an explicitly shared pool (allocation_pool_id).
// Allocations in different contracts that name the same pool share a counter.
func PoolKey(id PoolID) AllocationKey {
	return AllocationKey("pool:" + string(id))
}

// IsSharedPool reports whether the key names an explicit pool.
func (k AllocationKey) IsSharedPool() bool {
	return strings.HasPrefix(string(k), "pool:")
}

// =============================================================================
// POOL CAPACITY - Materialized ledger entry
// =============================================================================

type PoolCapacity struct {
	Key        AllocationKey
	Label      string
	ContractID ContractID // empty for manual pools

	// Static configuration (editable)
	TotalCapacity     int
	AllowsOverbooking bool
	OverbookingLimit  int
	WaitlistEnabled   bool
	WaitlistMaxSize   int

	// Counters (mutated only through the ledger)
	CurrentBookings int
	WaitlistSize    int

	// Version increments on every counter change (optimistic readers).
	Version int64
}

// EffectiveOverbookingLimit is 0 when overbooking is not allowed.
func (p PoolCapacity) EffectiveOverbookingLimit() int {
	if !p.AllowsOverbooking || p.OverbookingLimit < 0 {
		return 0
	}
	return p.OverbookingLimit
}

// AvailableSpots is TotalCapacity - CurrentBookings. Negative only when overbooked.
func (p PoolCapacity) AvailableSpots() int {
	return p.TotalCapacity - p.CurrentBookings
}

// MaxSellable is what can still be admitted including the overbooking allowance.
func (p PoolCapacity) MaxSellable() int {
	r := p.TotalCapacity + p.EffectiveOverbookingLimit() - p.CurrentBookings
	if r < 0 {
		return 0
	}
	return r
}

// CanAdmit checks booked + quantity <= capacity + overbooking limit.
func (p PoolCapacity) CanAdmit(quantity int) bool {
	return p.CurrentBookings+quantity <= p.TotalCapacity+p.EffectiveOverbookingLimit()
}

// CanWaitlist checks whether quantity more entries fit on the waitlist.
func (p PoolCapacity) CanWaitlist(quantity int) bool {
	return p.WaitlistEnabled && p.WaitlistSize+quantity <= p.WaitlistMaxSize
}

// Utilization is CurrentBookings / TotalCapacity. A zero-capacity pool with
// bookings is treated as fully overbooked.
func (p PoolCapacity) Utilization() decimal.Decimal {
	if p.TotalCapacity <= 0 {
		if p.CurrentBookings > 0 {
			return decimal.NewFromInt(2)
		}
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(p.CurrentBookings)).Div(decimal.NewFromInt(int64(p.TotalCapacity)))
}

// Health classifies utilization for dashboards.
func (p PoolCapacity) Health() HealthStatus {
	return ClassifyUtilization(p.Utilization())
}

// State is the admission state machine position.
func (p PoolCapacity) State() PoolState {
	spots := p.AvailableSpots()
	switch {
	case spots > 0:
		return StateAvailable
	case spots < 0:
		return StateOverbooked
	case p.WaitlistEnabled:
		return StateWaitlisted
	default:
		return StateFull
	}
}

// =============================================================================
// CLASSIFICATIONS
// =============================================================================

type HealthStatus string

const (
	HealthHealthy    HealthStatus = "healthy"
	HealthWarning    HealthStatus = "warning"
	HealthCritical   HealthStatus = "critical"
	HealthOverbooked HealthStatus = "overbooked"
)

var (
	warningThreshold  = decimal.RequireFromString("0.75")
	criticalThreshold = decimal.RequireFromString("0.90")
)

// ClassifyUtilization maps a utilization ratio to a health status.
func ClassifyUtilization(u decimal.Decimal) HealthStatus {
	switch {
	case u.GreaterThan(one):
		return HealthOverbooked
	case u.GreaterThanOrEqual(criticalThreshold):
		return HealthCritical
	case u.GreaterThanOrEqual(warningThreshold):
		return HealthWarning
	default:
		return HealthHealthy
	}
}

type PoolState string

const (
	StateAvailable  PoolState = "available"
	StateFull       PoolState = "full"
	StateOverbooked PoolState = "overbooked"
	StateWaitlisted PoolState = "waitlisted"
)

// PoolStatus is the dashboard view of a pool.
type PoolStatus struct {
	Key             AllocationKey
	Label           string
	TotalCapacity   int
	CurrentBookings int
	AvailableSpots  int
	MaxSellable     int
	WaitlistSize    int
	Health          HealthStatus
	State           PoolState
}

// StatusOf builds the dashboard view.
func StatusOf(p PoolCapacity) PoolStatus {
	return PoolStatus{
		Key:             p.Key,
		Label:           p.Label,
		TotalCapacity:   p.TotalCapacity,
		CurrentBookings: p.CurrentBookings,
		AvailableSpots:  p.AvailableSpots(),
		MaxSellable:     p.MaxSellable(),
		WaitlistSize:    p.WaitlistSize,
		Health:          p.Health(),
		State:           p.State(),
	}
}

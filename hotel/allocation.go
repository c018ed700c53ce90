/*
allocation.go - Allocation resolution and shared-pool availability

PURPOSE:
  Answers "which pool does this room group sell from, and how much of it
  is left?". A room group must be covered by exactly one allocation of its
  contract. Booking ANY room group of an allocation consumes from the same
  counter.

SHARED-POOL RULE:
  booked    = sum(quantity) of active booking rooms whose rate belongs to
              this contract AND whose room group is in the allocation
  available = allocation.Quantity - booked

  The scan-based figure is used for reconciliation and for callers that
  have no ledger; admission control goes through generic.AllocationLedger.

CONFIGURATION ERRORS:
  - Room group not covered by any allocation
  - Room group covered by more than one allocation (overlapping pools)
  Both block contract activation; the resolver never picks one silently.
*/
package hotel

import (
	"fmt"
	"sort"

	"github.com/warp/allocation-engine/generic"
)

// FindAllocation returns the single allocation covering roomGroupID.
func FindAllocation(c Contract, roomGroupID generic.RoomGroupID) (RoomAllocation, error) {
	var matches []int
	for i, a := range c.RoomAllocations {
		if a.Covers(roomGroupID) {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 1:
		return c.RoomAllocations[matches[0]], nil
	case 0:
		return RoomAllocation{}, &generic.InvalidAllocationConfigError{
			ContractID:  c.ID,
			RoomGroupID: roomGroupID,
			Reason:      "room group is not covered by any allocation",
		}
	default:
		labels := make([]string, len(matches))
		for i, idx := range matches {
			labels[i] = allocationLabel(c.RoomAllocations[idx], idx)
		}
		return RoomAllocation{}, &generic.InvalidAllocationConfigError{
			ContractID:  c.ID,
			RoomGroupID: roomGroupID,
			Reason:      "room group is covered by more than one allocation",
			Matches:     labels,
		}
	}
}

// ValidateAllocations checks the whole contract: every allocation has at
// least one room group, a non-negative quantity and limits, and room group
// sets are pairwise disjoint.
func ValidateAllocations(c Contract) error {
	owner := make(map[generic.RoomGroupID]int)
	for i, a := range c.RoomAllocations {
		label := allocationLabel(a, i)
		if len(a.RoomGroupIDs) == 0 {
			return &generic.InvalidAllocationConfigError{ContractID: c.ID, Reason: "allocation has no room groups", Matches: []string{label}}
		}
		if a.Quantity < 0 || a.OverbookingLimit < 0 || a.WaitlistMaxSize < 0 {
			return &generic.InvalidAllocationConfigError{ContractID: c.ID, Reason: "negative quantity or limit", Matches: []string{label}}
		}
		seen := make(map[generic.RoomGroupID]bool, len(a.RoomGroupIDs))
		for _, g := range a.RoomGroupIDs {
			if seen[g] {
				continue
			}
			seen[g] = true
			if prev, ok := owner[g]; ok {
				return &generic.InvalidAllocationConfigError{
					ContractID:  c.ID,
					RoomGroupID: g,
					Reason:      "room group is covered by more than one allocation",
					Matches:     []string{allocationLabel(c.RoomAllocations[prev], prev), label},
				}
			}
			owner[g] = i
		}
	}
	return nil
}

func allocationLabel(a RoomAllocation, idx int) string {
	if a.Label != "" {
		return a.Label
	}
	return fmt.Sprintf("allocation #%d", idx)
}

// =============================================================================
// AVAILABILITY - Scan-based view
// =============================================================================

type Availability struct {
	Key              generic.AllocationKey
	RoomGroupIDs     []generic.RoomGroupID
	Capacity         int
	Booked           int
	Available        int // Capacity - Booked, before overbooking
	OverbookingLimit int
	MaxSellable      int
	Health           generic.HealthStatus
}

// CanBook reports whether quantity more rooms fit, overbooking included.
func (a Availability) CanBook(quantity int) bool {
	return quantity <= a.MaxSellable
}

// BookedInAllocation sums active booking rooms that draw from the allocation.
// Rates not found in the lookup are ignored.
func BookedInAllocation(c Contract, a RoomAllocation, rooms []BookingRoom, rates map[generic.RateID]Rate) int {
	booked := 0
	for _, room := range rooms {
		if !room.Status.Active() {
			continue
		}
		rate, ok := rates[room.RateID]
		if !ok || rate.ContractID != c.ID {
			continue
		}
		if a.Covers(rate.RoomGroupID) {
			booked += room.Quantity
		}
	}
	return booked
}

// Available computes the scan-based availability of the allocation that
// covers roomGroupID. Pure read.
func Available(c Contract, roomGroupID generic.RoomGroupID, rooms []BookingRoom, rates map[generic.RateID]Rate) (Availability, error) {
	a, err := FindAllocation(c, roomGroupID)
	if err != nil {
		return Availability{}, err
	}
	booked := BookedInAllocation(c, a, rooms, rates)

	p := a.PoolCapacity(c.ID)
	p.CurrentBookings = booked

	groups := append([]generic.RoomGroupID{}, a.RoomGroupIDs...)
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })

	return Availability{
		Key:              p.Key,
		RoomGroupIDs:     groups,
		Capacity:         a.Quantity,
		Booked:           booked,
		Available:        p.AvailableSpots(),
		OverbookingLimit: p.EffectiveOverbookingLimit(),
		MaxSellable:      p.MaxSellable(),
		Health:           p.Health(),
	}, nil
}

// AvailabilityFromPool converts a ledger entry into the same view.
func AvailabilityFromPool(a RoomAllocation, p generic.PoolCapacity) Availability {
	return Availability{
		Key:              p.Key,
		RoomGroupIDs:     a.RoomGroupIDs,
		Capacity:         p.TotalCapacity,
		Booked:           p.CurrentBookings,
		Available:        p.AvailableSpots(),
		OverbookingLimit: p.EffectiveOverbookingLimit(),
		MaxSellable:      p.MaxSellable(),
		Health:           p.Health(),
	}
}

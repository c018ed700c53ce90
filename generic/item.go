/*
item.go - Item types and their capabilities

PURPOSE:
  Inventory comes in several kinds (hotel rooms, tickets, transfers,
  activities). Each kind is one variant of a tagged union identified by
  ItemKind. Behavior is attached through capability interfaces instead of
  type switches, so the booking flow depends only on:

    PricingStrategy:    what does this request cost and sell for?
    AllocationStrategy: which pool does this request consume from?

HOW IT WORKS:
  1. Domain packages implement ItemType for their kind
  2. The application registers them in a Registry at startup
  3. The booking service looks up the strategies by request kind

USAGE:
  reg := generic.NewRegistry()
  reg.Register(hotel.NewItemType(catalog, hotel.ShoulderFallback))

  it, err := reg.Lookup(generic.KindHotel)
  key, err := it.Allocation().ResolvePool(ctx, req)

SEE ALSO:
  - hotel/strategy.go: The hotel variant
*/
package generic

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ITEM KIND - Tagged union discriminator
// =============================================================================

type ItemKind string

const (
	KindHotel    ItemKind = "hotel"
	KindTicket   ItemKind = "ticket"
	KindTransfer ItemKind = "transfer"
	KindActivity ItemKind = "activity"
)

// ParseItemKind validates a kind string. Empty defaults to hotel.
func ParseItemKind(s string) (ItemKind, error) {
	switch k := ItemKind(s); k {
	case "":
		return KindHotel, nil
	case KindHotel, KindTicket, KindTransfer, KindActivity:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedItemType, s)
	}
}

// =============================================================================
// REQUEST / RESULT SHAPES SHARED BY ALL KINDS
// =============================================================================

// ItemRequest is a priced, pool-consuming request for Quantity units.
// Category and Variant are kind-specific (room group + occupancy for hotels).
type ItemRequest struct {
	Kind       ItemKind
	ContractID ContractID
	Category   RoomGroupID
	Variant    string
	Option     string
	Stay       Stay
	Quantity   int

	// ExtraCostPerUnit is an optional per-unit cost supplied by the caller,
	// such as board for a hotel rate without board included.
	ExtraCostPerUnit *decimal.Decimal
}

// PriceResult is the kind-independent summary of a price calculation.
// Detail carries the kind-specific breakdown.
type PriceResult struct {
	Currency       string
	Units          int // nights for hotels, 1 for single-date items
	CostPerUnit    Money
	SellingPerUnit Money
	TotalCost      Money
	TotalSelling   Money
	Detail         any
}

// =============================================================================
// CAPABILITIES
// =============================================================================

type PricingStrategy interface {
	Price(ctx context.Context, req ItemRequest) (PriceResult, error)
}

type AllocationStrategy interface {
	// ResolvePool maps a request to exactly one pool or fails with
	// ErrInvalidAllocationConfig.
	ResolvePool(ctx context.Context, req ItemRequest) (AllocationKey, error)
}

// ItemType is one variant of the union together with its capabilities.
type ItemType interface {
	Kind() ItemKind
	Pricing() PricingStrategy
	Allocation() AllocationStrategy
}

// =============================================================================
// REGISTRY
// =============================================================================

type Registry struct {
	mu    sync.RWMutex
	types map[ItemKind]ItemType
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[ItemKind]ItemType)}
}

// Register adds or replaces the item type for its kind.
func (r *Registry) Register(it ItemType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[it.Kind()] = it
}

// Lookup returns ErrUnsupportedItemType for kinds without strategies.
func (r *Registry) Lookup(kind ItemKind) (ItemType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.types[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedItemType, kind)
	}
	return it, nil
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []ItemKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]ItemKind, 0, len(r.types))
	for k := range r.types {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

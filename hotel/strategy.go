/*
strategy.go - The hotel variant of the item-type union

PURPOSE:
  Adapts hotel pricing and allocation resolution to the kind-independent
  capability interfaces in generic/item.go. The booking flow only sees
  generic.PricingStrategy and generic.AllocationStrategy.

REQUEST MAPPING:
  ItemRequest.Category -> room group
  ItemRequest.Variant  -> occupancy type
  ItemRequest.Option   -> board type (empty picks the first matching rate)
*/
package hotel

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/allocation-engine/generic"
)

// Catalog is the read side of contract and rate persistence.
type Catalog interface {
	GetContract(ctx context.Context, id generic.ContractID) (Contract, error)
	ListRates(ctx context.Context, contractID generic.ContractID) ([]Rate, error)
}

// FindRate selects the rate for a room group, occupancy and board type.
func FindRate(rates []Rate, roomGroupID generic.RoomGroupID, occupancy OccupancyType, board BoardType) (Rate, error) {
	var candidates []Rate
	for _, r := range rates {
		if r.RoomGroupID != roomGroupID || r.Occupancy != occupancy {
			continue
		}
		if board != "" && r.BoardType != board {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return Rate{}, fmt.Errorf("%w: no rate for %s/%s/%s", generic.ErrNotFound, roomGroupID, occupancy, board)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates[0], nil
}

// ItemType implements generic.ItemType for hotel rooms.
type ItemType struct {
	catalog Catalog
	pricer  Pricer
}

func NewItemType(catalog Catalog, policy ShoulderPolicy) *ItemType {
	return &ItemType{catalog: catalog, pricer: NewPricer(policy)}
}

func (it *ItemType) Kind() generic.ItemKind                 { return generic.KindHotel }
func (it *ItemType) Pricing() generic.PricingStrategy       { return it }
func (it *ItemType) Allocation() generic.AllocationStrategy { return it }

// Resolve loads the contract and rate a request refers to.
func (it *ItemType) Resolve(ctx context.Context, req generic.ItemRequest) (Contract, Rate, error) {
	c, err := it.catalog.GetContract(ctx, req.ContractID)
	if err != nil {
		return Contract{}, Rate{}, err
	}
	occupancy, err := ParseOccupancy(req.Variant)
	if err != nil {
		return Contract{}, Rate{}, fmt.Errorf("%w: %v", generic.ErrInvalidQuantity, err)
	}
	rates, err := it.catalog.ListRates(ctx, c.ID)
	if err != nil {
		return Contract{}, Rate{}, err
	}
	r, err := FindRate(rates, req.Category, occupancy, BoardType(req.Option))
	if err != nil {
		return Contract{}, Rate{}, err
	}
	return c, r, nil
}

// Price implements generic.PricingStrategy. Detail holds the hotel Quote.
func (it *ItemType) Price(ctx context.Context, req generic.ItemRequest) (generic.PriceResult, error) {
	c, r, err := it.Resolve(ctx, req)
	if err != nil {
		return generic.PriceResult{}, err
	}
	q, err := it.pricer.PriceStay(StayRequest{Contract: c, Rate: r, Stay: req.Stay, Quantity: req.Quantity, BoardCostOverride: req.ExtraCostPerUnit})
	if err != nil {
		return generic.PriceResult{}, err
	}
	return generic.PriceResult{
		Currency:       c.Currency,
		Units:          q.PerRoom.Nights,
		CostPerUnit:    q.PerRoom.TotalCost,
		SellingPerUnit: q.PerRoom.SellingPrice,
		TotalCost:      q.Total.TotalCost,
		TotalSelling:   q.Total.SellingPrice,
		Detail:         q,
	}, nil
}

// ResolvePool implements generic.AllocationStrategy.
func (it *ItemType) ResolvePool(ctx context.Context, req generic.ItemRequest) (generic.AllocationKey, error) {
	c, err := it.catalog.GetContract(ctx, req.ContractID)
	if err != nil {
		return "", err
	}
	a, err := FindAllocation(c, req.Category)
	if err != nil {
		return "", err
	}
	return a.Key(c.ID), nil
}

package factory

import (
	"fmt"

	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

// RateDefaults are applied to every generated rate.
type RateDefaults struct {
	BoardType      hotel.BoardType
	Markup         generic.Fraction
	ShoulderMarkup generic.Fraction
}

// GenerateRates creates one rate per room group and occupancy from the
// contract's allocation prices. An allocation with only a BaseRate yields
// double-occupancy rates. Rate IDs are deterministic so regeneration
// overwrites instead of duplicating.
func (f *ContractFactory) GenerateRates(c hotel.Contract, defaults RateDefaults) []hotel.Rate {
	board := defaults.BoardType
	if board == "" {
		board = hotel.BoardRoomOnly
	}

	var rates []hotel.Rate
	for _, a := range c.RoomAllocations {
		for _, group := range a.RoomGroupIDs {
			for _, occ := range hotel.AllOccupancies {
				price, ok := a.OccupancyRates[occ]
				if !ok {
					if len(a.OccupancyRates) > 0 || a.BaseRate == nil || occ != hotel.OccupancyDouble {
						continue
					}
					price = *a.BaseRate
				}
				rates = append(rates, hotel.Rate{
					ID:                       RateID(c.ID, group, occ, board),
					ContractID:               c.ID,
					RoomGroupID:              group,
					Occupancy:                occ,
					BoardType:                board,
					Rate:                     price,
					MarkupPercentage:         defaults.Markup,
					ShoulderMarkupPercentage: defaults.ShoulderMarkup,
				})
			}
		}
	}
	return rates
}

// RateID is the deterministic ID of a generated rate.
func RateID(contractID generic.ContractID, group generic.RoomGroupID, occ hotel.OccupancyType, board hotel.BoardType) generic.RateID {
	return generic.RateID(fmt.Sprintf("%s:%s:%s:%s", contractID, group, occ, board))
}

/*
shoulder.go - Nightly base rate resolution with shoulder-night substitution

PURPOSE:
  A stay may start before or end after the contract period. Those nights
  are "shoulder nights" and are priced from separate tables indexed by
  their distance (in days) from the contract boundary:

    night < start:  offset = start - night (>= 1), rate = PreShoulderRates[offset-1]
    night > end:    offset = night - end   (>= 1), rate = PostShoulderRates[offset-1]
    otherwise:      contract rate

  Example: contract starts 2025-06-10; the night of 2025-06-08 is offset 2
  and uses PreShoulderRates[1].

MISSING SHOULDER RATES:
  ShoulderFallback (default) prices the night at the contract rate and
  marks it Fallback=true. ShoulderStrict fails with ErrMissingShoulderRate.
*/
package hotel

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/generic"
)

type NightType string

const (
	NightContract     NightType = "contract"
	NightPreShoulder  NightType = "pre_shoulder"
	NightPostShoulder NightType = "post_shoulder"
)

// IsShoulder is true for nights outside the contract period.
func (t NightType) IsShoulder() bool { return t != NightContract }

// ShoulderPolicy decides what happens when a shoulder index has no rate.
type ShoulderPolicy string

const (
	ShoulderFallback ShoulderPolicy = "fallback"
	ShoulderStrict   ShoulderPolicy = "strict"
)

func ParseShoulderPolicy(s string) (ShoulderPolicy, error) {
	switch p := ShoulderPolicy(s); p {
	case "", ShoulderFallback:
		return ShoulderFallback, nil
	case ShoulderStrict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown shoulder policy %q", s)
	}
}

type NightlyRate struct {
	Date     generic.TimePoint
	Type     NightType
	BaseRate decimal.Decimal
	Offset   int  // days from the contract boundary, 0 for contract nights
	Fallback bool // shoulder night priced at the contract rate
}

// ShoulderResolver picks the base rate of every night.
type ShoulderResolver struct {
	Policy ShoulderPolicy
}

// NightlyRate resolves a single night.
func (sr ShoulderResolver) NightlyRate(c Contract, r Rate, night generic.TimePoint) (NightlyRate, error) {
	switch {
	case night.Before(c.Period.Start):
		offset := generic.DaysBetween(night, c.Period.Start)
		return sr.shoulder(c, r, night, NightPreShoulder, offset, c.PreShoulderRates)
	case night.After(c.Period.End):
		offset := generic.DaysBetween(c.Period.End, night)
		return sr.shoulder(c, r, night, NightPostShoulder, offset, c.PostShoulderRates)
	default:
		return NightlyRate{Date: night, Type: NightContract, BaseRate: r.Rate}, nil
	}
}

func (sr ShoulderResolver) shoulder(c Contract, r Rate, night generic.TimePoint, typ NightType, offset int, table []decimal.Decimal) (NightlyRate, error) {
	nr := NightlyRate{Date: night, Type: typ, Offset: offset}
	if offset-1 < len(table) {
		nr.BaseRate = table[offset-1]
		return nr, nil
	}
	if sr.Policy == ShoulderStrict {
		return NightlyRate{}, fmt.Errorf("%w: %s night %s is %d days from contract %s (table has %d)",
			generic.ErrMissingShoulderRate, typ, night, offset, c.ID, len(table))
	}
	nr.BaseRate = r.Rate
	nr.Fallback = true
	return nr, nil
}

// StayRates resolves every night of the stay, check-in first.
func (sr ShoulderResolver) StayRates(c Contract, r Rate, stay generic.Stay) ([]NightlyRate, error) {
	nights := stay.NightDates()
	out := make([]NightlyRate, 0, len(nights))
	for _, night := range nights {
		nr, err := sr.NightlyRate(c, r, night)
		if err != nil {
			return nil, err
		}
		out = append(out, nr)
	}
	return out, nil
}

// CountNights splits a nightly sequence into contract and shoulder counts.
func CountNights(nightly []NightlyRate) (regular, shoulder int) {
	for _, n := range nightly {
		if n.Type.IsShoulder() {
			shoulder++
		} else {
			regular++
		}
	}
	return regular, shoulder
}

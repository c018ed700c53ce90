/*
Package generic provides the core allocation and capacity engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for selling
  shared, capacity-bounded inventory. Whether the pool holds hotel rooms,
  transfer seats or activity tickets, the same engine handles money math,
  capacity accounting and reservation bookkeeping.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An exact amount in a currency (never float)
  - Fraction: A validated percentage stored as 0..1 (0.60 = 60%)
  - Identifiers: Type-safe IDs for contracts, room groups, pools, bookings

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing pool/booking IDs
  3. Validation at the edge: Fractions reject whole-number percentages

USAGE:
  price := generic.NewMoney(150, "EUR")
  markup := generic.MustFraction("0.60")
  selling := price.Mul(markup.OnePlus())

SEE ALSO:
  - capacity.go: Pool capacity and health status
  - ledger.go: Reserve/release of pool capacity
  - errors.go: Error taxonomy
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact amount with currency
// =============================================================================

type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func NewMoney(value float64, currency string) Money {
	return Money{Amount: decimal.NewFromFloat(value), Currency: currency}
}

func NewMoneyFromDecimal(value decimal.Decimal, currency string) Money {
	return Money{Amount: value, Currency: currency}
}

func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// MustParseDecimal panics on malformed input. Use it for literals only.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("generic: invalid decimal %q: %v", s, err))
	}
	return d
}

func (m Money) Zero() Money                 { return Money{Amount: decimal.Zero, Currency: m.Currency} }
func (m Money) Add(o Money) Money           { return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency} }
func (m Money) Sub(o Money) Money           { return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Amount: m.Amount.Mul(s), Currency: m.Currency} }
func (m Money) MulInt(n int) Money          { return m.Mul(decimal.NewFromInt(int64(n))) }
func (m Money) IsNegative() bool            { return m.Amount.IsNegative() }
func (m Money) IsZero() bool                { return m.Amount.IsZero() }
func (m Money) Equal(o Money) bool          { return m.Amount.Equal(o.Amount) && m.Currency == o.Currency }

// Div divides by a non-zero integer. Division by zero yields zero.
func (m Money) Div(n int) Money {
	if n == 0 {
		return m.Zero()
	}
	return Money{Amount: m.Amount.Div(decimal.NewFromInt(int64(n))), Currency: m.Currency}
}

// Round returns the amount rounded to minor units for display.
func (m Money) Round() Money { return Money{Amount: m.Amount.Round(2), Currency: m.Currency} }

func (m Money) String() string { return m.Amount.StringFixed(2) + " " + m.Currency }

// =============================================================================
// FRACTION - Percentages are always stored as 0..1
// =============================================================================

// Fraction is a percentage expressed as a fraction of one.
// 0.60 means 60%. Values outside [0, 1] are rejected at construction.
type Fraction struct {
	decimal.Decimal
}

var one = decimal.NewFromInt(1)

// NewFraction validates and wraps d.
func NewFraction(d decimal.Decimal) (Fraction, error) {
	if d.IsNegative() || d.GreaterThan(one) {
		return Fraction{}, fmt.Errorf("%w: %s (percentages are fractions, e.g. 0.60 for 60%%)", ErrInvalidFraction, d)
	}
	return Fraction{Decimal: d}, nil
}

// ParseFraction parses a decimal string as a fraction.
func ParseFraction(s string) (Fraction, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Fraction{}, fmt.Errorf("%w: %q", ErrInvalidFraction, s)
	}
	return NewFraction(d)
}

// MustFraction panics on invalid input. Use in tests and constants only.
func MustFraction(s string) Fraction {
	f, err := ParseFraction(s)
	if err != nil {
		panic(err)
	}
	return f
}

// OnePlus returns 1 + f, the multiplier for applying a markup.
func (f Fraction) OnePlus() decimal.Decimal { return one.Add(f.Decimal) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string
type RoomGroupID string
type RateID string
type BookingID string
type QuoteID string
type PoolID string

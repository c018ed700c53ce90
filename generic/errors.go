/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Configuration errors - Bad contract/allocation setup (operator-facing)
  2. Admission errors - Capacity, stay length, stale quotes (caller-facing)
  3. Store errors - Persistence and concurrency failures

USAGE:
  if errors.Is(err, generic.ErrInsufficientCapacity) {
      var capErr *generic.InsufficientCapacityError
      errors.As(err, &capErr)
      // offer capErr.Remaining() or the waitlist
  }

SEE ALSO:
  - ledger.go: Returns InsufficientCapacityError
  - hotel/allocation.go: Returns InvalidAllocationConfigError
  - api/handlers.go: Maps categories to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAllocationConfig is returned when a room category is covered by
	// no allocation, or by more than one. Blocks contract activation.
	ErrInvalidAllocationConfig = errors.New("invalid allocation config")

	// ErrInsufficientCapacity is returned when a reservation exceeds
	// capacity + overbooking limit.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrNightsOutOfRange is returned when a stay is shorter than min_nights
	// or longer than max_nights.
	ErrNightsOutOfRange = errors.New("nights out of range")

	// ErrMissingShoulderRate is returned in strict mode when a night falls
	// outside the contract and no shoulder rate exists for its offset.
	ErrMissingShoulderRate = errors.New("missing shoulder rate")

	// ErrStaleQuote is returned when a quote can no longer be honored at commit.
	ErrStaleQuote = errors.New("stale quote")

	// ErrInvalidFraction is returned for percentages outside [0, 1].
	ErrInvalidFraction = errors.New("invalid fraction")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrPoolNotFound is returned when a pool key has no ledger entry.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIdempotencyKey is returned when a booking already holds reservations.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUnsupportedItemType is returned for item kinds without registered strategies.
	ErrUnsupportedItemType = errors.New("unsupported item type")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidAllocationConfigError explains why a room group cannot be resolved
// to exactly one allocation.
type InvalidAllocationConfigError struct {
	ContractID  ContractID
	RoomGroupID RoomGroupID
	Reason      string
	Matches     []string // labels or keys of conflicting allocations
}

func (e *InvalidAllocationConfigError) Error() string {
	msg := fmt.Sprintf("invalid allocation config for contract %s", e.ContractID)
	if e.RoomGroupID != "" {
		msg += fmt.Sprintf(", room group %s", e.RoomGroupID)
	}
	msg += ": " + e.Reason
	if len(e.Matches) > 0 {
		msg += " (" + strings.Join(e.Matches, ", ") + ")"
	}
	return msg
}

func (e *InvalidAllocationConfigError) Unwrap() error {
	return ErrInvalidAllocationConfig
}

// InsufficientCapacityError provides details about a capacity shortage.
type InsufficientCapacityError struct {
	Key               AllocationKey
	Requested         int
	Booked            int
	Capacity          int
	OverbookingLimit  int
	WaitlistAvailable bool
}

// Remaining is what could still be admitted (never negative).
func (e *InsufficientCapacityError) Remaining() int {
	r := e.Capacity + e.OverbookingLimit - e.Booked
	if r < 0 {
		return 0
	}
	return r
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity in pool %s: requested %d, booked %d, capacity %d (+%d overbooking)",
		e.Key, e.Requested, e.Booked, e.Capacity, e.OverbookingLimit)
}

func (e *InsufficientCapacityError) Unwrap() error {
	return ErrInsufficientCapacity
}

// NightsOutOfRangeError reports a stay length outside [Min, Max].
// Max == 0 means no upper bound.
type NightsOutOfRangeError struct {
	Nights int
	Min    int
	Max    int
}

func (e *NightsOutOfRangeError) Error() string {
	if e.Max > 0 {
		return fmt.Sprintf("stay of %d nights outside allowed range [%d, %d]", e.Nights, e.Min, e.Max)
	}
	return fmt.Sprintf("stay of %d nights below minimum %d", e.Nights, e.Min)
}

func (e *NightsOutOfRangeError) Unwrap() error {
	return ErrNightsOutOfRange
}

// StaleQuoteError wraps the reason a quote could not be committed.
type StaleQuoteError struct {
	QuoteID QuoteID
	Reason  string
	Cause   error
}

func (e *StaleQuoteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("quote %s is stale: %s: %v", e.QuoteID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("quote %s is stale: %s", e.QuoteID, e.Reason)
}

// Is lets errors.Is match both ErrStaleQuote and the wrapped cause.
func (e *StaleQuoteError) Is(target error) bool {
	return target == ErrStaleQuote
}

func (e *StaleQuoteError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsConfigError returns true for setup errors that an operator must fix.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidAllocationConfig) ||
		errors.Is(err, ErrUnsupportedItemType)
}

// IsConflict returns true for admission failures caused by current capacity.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrStaleQuote) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNightsOutOfRange) ||
		errors.Is(err, ErrMissingShoulderRate) ||
		errors.Is(err, ErrInvalidFraction) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidQuantity)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPoolNotFound)
}

package hotel

import "github.com/warp/allocation-engine/generic"

// ValidateNights rejects stays outside the rate's [min, max] nights before
// any pricing happens. Rate-level limits override the contract's.
func ValidateNights(c Contract, r Rate, stay generic.Stay) error {
	minN, maxN := r.NightsRange(c)
	n := stay.Nights()
	if n < minN || (maxN > 0 && n > maxN) {
		return &generic.NightsOutOfRangeError{Nights: n, Min: minN, Max: maxN}
	}
	return nil
}

// OverlapsValidity reports whether at least one night of the stay falls
// inside the rate's validity window. Shoulder nights lie outside the
// window by definition, so only one anchor night is required.
func OverlapsValidity(c Contract, r Rate, stay generic.Stay) bool {
	v := r.Validity(c)
	for _, night := range stay.NightDates() {
		if v.Contains(night) {
			return true
		}
	}
	return false
}

package waterfall

import (
	"math"
	"strconv"
)

// Validate checks every field against its documented range.
//
// Allocate never calls this. Out-of-range input is rejected at the boundary
// (API, fund factory) rather than clamped, so the engine stays total.
// A zero investment is valid; it simply allocates nothing.
func (p Parameters) Validate() error {
	rates := []struct {
		field string
		value float64
	}{
		{"total_investment", p.TotalInvestment},
		{"preferred_return_rate", p.PreferredReturnRate},
		{"catch_up_rate", p.CatchUpRate},
		{"lp_return_rate", p.LPReturnRate},
		{"carried_interest_rate", p.CarriedInterestRate},
	}
	for _, r := range rates {
		if math.IsNaN(r.value) || math.IsInf(r.value, 0) {
			return &InvalidParameterError{Field: r.field, Value: r.value, Reason: "must be finite"}
		}
	}

	if p.TotalInvestment < 0 {
		return &InvalidParameterError{Field: "total_investment", Value: p.TotalInvestment, Reason: "must be >= 0"}
	}
	if err := unitInterval("preferred_return_rate", p.PreferredReturnRate); err != nil {
		return err
	}
	if err := unitInterval("catch_up_rate", p.CatchUpRate); err != nil {
		return err
	}
	if p.LPReturnRate < 0 {
		return &InvalidParameterError{Field: "lp_return_rate", Value: p.LPReturnRate, Reason: "must be >= 0"}
	}
	if p.Periods < 1 {
		return &InvalidParameterError{Field: "periods", Value: p.Periods, Reason: "must be >= 1"}
	}
	return unitInterval("carried_interest_rate", p.CarriedInterestRate)
}

// ValidatePeriodCount bounds a requested series length.
func ValidatePeriodCount(n, limit int) error {
	if n < 1 || n > limit {
		return &InvalidParameterError{Field: "period_count", Value: n, Reason: "must be between 1 and " + strconv.Itoa(limit)}
	}
	return nil
}

func unitInterval(field string, v float64) error {
	if v < 0 || v > 1 {
		return &InvalidParameterError{Field: field, Value: v, Reason: "must be between 0 and 1"}
	}
	return nil
}

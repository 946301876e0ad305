package factory

import (
	"github.com/goccy/go-json"
	"github.com/warp/waterfall-engine/waterfall"
)

// =============================================================================
// PRESET FUND TERMS
// =============================================================================
//
// All presets invest $1,000,000 over 5 years with 20% carry unless noted.
// Rates are holding-period totals, so presets use prorated accrual: the
// final period of a fund's series equals its single allocation.
// Each returns a JSON string suitable for ParseFund or the /api/funds endpoint.

// TextbookFundJSON: 8% pref, 50% catch-up, 1.5x gross multiple.
// GP takes $332,000 with catch-up and $164,000 without.
func TextbookFundJSON(id, name string) string {
	return presetJSON(id, name, 0.08, 0.50, 1.50)
}

// FullCatchUpFundJSON: 100% catch-up, so the GP takes everything after pref.
func FullCatchUpFundJSON(id, name string) string {
	return presetJSON(id, name, 0.08, 1.00, 2.00)
}

// UnderwaterFundJSON: 0.8x gross multiple. Capital is lost; nothing is allocated.
func UnderwaterFundJSON(id, name string) string {
	return presetJSON(id, name, 0.08, 0.50, 0.80)
}

// HurdleShortfallFundJSON: profit exists but is smaller than the 8% hurdle.
func HurdleShortfallFundJSON(id, name string) string {
	return presetJSON(id, name, 0.08, 0.50, 1.05)
}

// NoPreferredFundJSON: no hurdle at all; catch-up applies to all profit.
func NoPreferredFundJSON(id, name string) string {
	return presetJSON(id, name, 0, 0.50, 1.50)
}

func presetJSON(id, name string, pref, catchUp, multiple float64) string {
	fj := map[string]interface{}{
		"id":                    id,
		"name":                  name,
		"total_investment":      1_000_000,
		"preferred_return_rate": pref,
		"catch_up_rate":         catchUp,
		"lp_return_rate":        multiple,
		"periods":               5,
		"carried_interest_rate": 0.20,
		"accrual":               string(waterfall.AccrualProrated),
	}
	b, _ := json.MarshalIndent(fj, "", "  ")
	return string(b)
}

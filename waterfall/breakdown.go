package waterfall

// =============================================================================
// BREAKDOWN - GP composition for charting
// =============================================================================

// Tier labels used in breakdowns.
const (
	LabelPreferredReturn = "Preferred Return"
	LabelCatchUp         = "Catch-up Allocation"
	LabelCarriedInterest = "Carried Interest"
)

// Slice is one component of the GP's total.
type Slice struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
	Share  float64 `json:"share"` // fraction of the slice sum, 0..1
}

// Breakdown splits a result's GP total into its tiers.
//
// Amounts are clamped at zero so the slices can be drawn even when
// out-of-range inputs produced a negative tranche. The catch-up slice only
// exists for the WithCatchUp regime.
func Breakdown(res Result) []Slice {
	slices := []Slice{{Label: LabelPreferredReturn, Amount: nonNegative(res.PreferredReturnAmount)}}
	if res.Regime.HasCatchUp() {
		slices = append(slices, Slice{Label: LabelCatchUp, Amount: nonNegative(res.CatchUpAmount)})
	}
	slices = append(slices, Slice{Label: LabelCarriedInterest, Amount: nonNegative(res.ResidualCarryAmount)})

	var sum float64
	for _, s := range slices {
		sum += s.Amount
	}
	if sum > 0 {
		for i := range slices {
			slices[i].Share = slices[i].Amount / sum
		}
	}
	return slices
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// =============================================================================
// COMPARISON - Both regimes side by side
// =============================================================================

// Comparison holds both regimes for one parameter set.
type Comparison struct {
	WithCatchUp    Result  `json:"with_catch_up"`
	WithoutCatchUp Result  `json:"without_catch_up"`
	GPUplift       float64 `json:"gp_uplift"` // extra GP take caused by the catch-up clause
	LPCost         float64 `json:"lp_cost"`   // what the LPs give up for it
}

// Compare allocates under both regimes.
func Compare(p Parameters) Comparison {
	with := Allocate(p, WithCatchUp)
	without := Allocate(p, WithoutCatchUp)
	return Comparison{
		WithCatchUp:    with,
		WithoutCatchUp: without,
		GPUplift:       with.GPTotal - without.GPTotal,
		LPCost:         without.LPTotal - with.LPTotal,
	}
}

/*
Package waterfall provides the distribution waterfall allocation engine.

PURPOSE:
  Splits investment profit between a General Partner (GP) and the aggregate
  Limited Partner (LP) pool. The same tier logic runs under two regimes:
  with a catch-up clause and without one. Everything in this package is a
  pure function over value types; nothing here touches I/O.

TIERS (in order):
  1. Return of capital:  profit = gross return - total investment
  2. Preferred return:   pref = investment * preferred rate
  3. Catch-up:           GP share of the profit left after pref (regime only)
  4. Residual carry:     carried-interest share of whatever is left

KEY CONCEPTS IN THIS FILE (types.go):
  - Parameters: The immutable input set for one calculation
  - Regime: Whether the catch-up tranche exists at all
  - Result: One allocation for one regime
  - PeriodSeries: Point-in-time results for elapsed periods 1..N

EDGE CASES:
  - Zero or negative profit: every result field is exactly 0
  - Zero or negative investment: every result field is exactly 0
  - Preferred return larger than profit: the remainder clamps to 0,
    it is never carried as a negative tranche

USAGE:
  p := waterfall.Parameters{
      TotalInvestment:     1_000_000,
      PreferredReturnRate: 0.08,
      CatchUpRate:         0.50,
      LPReturnRate:        1.50,
      Periods:             5,
      CarriedInterestRate: waterfall.DefaultCarriedInterestRate,
  }
  res := waterfall.Allocate(p, waterfall.WithCatchUp)
  // res.GPTotal == 332000, res.LPTotal == 168000

SEE ALSO:
  - engine.go: Allocate
  - series.go: AllocateSeries and accrual schedules
  - validate.go: Boundary validation (the engine itself never rejects input)
*/
package waterfall

// =============================================================================
// PARAMETERS
// =============================================================================

// DefaultCarriedInterestRate is the GP's residual share when terms don't say otherwise.
const DefaultCarriedInterestRate = 0.20

// DefaultPeriods is the holding period, in years, used when terms omit one.
const DefaultPeriods = 5

// Parameters is the full input of one waterfall calculation.
// Rates are fractions (0.08 = 8%), never percentages.
type Parameters struct {
	TotalInvestment     float64 `json:"total_investment"`
	PreferredReturnRate float64 `json:"preferred_return_rate"` // [0,1]
	CatchUpRate         float64 `json:"catch_up_rate"`         // [0,1]
	LPReturnRate        float64 `json:"lp_return_rate"`        // total multiple, 1.5 = 150%
	Periods             int     `json:"periods"`               // years, >= 1
	CarriedInterestRate float64 `json:"carried_interest_rate"` // [0,1]
}

// =============================================================================
// REGIME
// =============================================================================

// Regime selects whether a catch-up tranche exists.
// The magnitude of the tranche comes from Parameters.CatchUpRate.
type Regime string

const (
	WithCatchUp    Regime = "with_catch_up"
	WithoutCatchUp Regime = "without_catch_up"
)

// Regimes returns both regimes in display order.
func Regimes() []Regime {
	return []Regime{WithCatchUp, WithoutCatchUp}
}

// ParseRegime converts a wire value into a Regime.
func ParseRegime(s string) (Regime, error) {
	switch Regime(s) {
	case WithCatchUp, WithoutCatchUp:
		return Regime(s), nil
	}
	return "", &UnknownValueError{Kind: "regime", Value: s, sentinel: ErrUnknownRegime}
}

func (r Regime) String() string { return string(r) }

// HasCatchUp reports whether the regime allocates a catch-up tranche.
func (r Regime) HasCatchUp() bool { return r == WithCatchUp }

// =============================================================================
// RESULT
// =============================================================================

// Result is one allocation of profit for one regime.
//
// GPTotal + LPTotal == TotalProfit whenever TotalProfit > 0.
// When there is no profit every amount is zero.
type Result struct {
	Regime                Regime  `json:"regime"`
	TotalProfit           float64 `json:"total_profit"`
	PreferredReturnAmount float64 `json:"preferred_return_amount"`
	ProfitAfterPreferred  float64 `json:"profit_after_preferred"`
	CatchUpAmount         float64 `json:"catch_up_amount"`
	ResidualCarryAmount   float64 `json:"residual_carry_amount"`
	GPTotal               float64 `json:"gp_total"`
	LPTotal               float64 `json:"lp_total"`
}

// IsZero reports whether nothing was allocated.
func (r Result) IsZero() bool {
	return r.TotalProfit == 0 &&
		r.PreferredReturnAmount == 0 &&
		r.ProfitAfterPreferred == 0 &&
		r.CatchUpAmount == 0 &&
		r.ResidualCarryAmount == 0 &&
		r.GPTotal == 0 &&
		r.LPTotal == 0
}

// GPShare is the GP's fraction of total profit (0 when there is no profit).
func (r Result) GPShare() float64 {
	if r.TotalProfit <= 0 {
		return 0
	}
	return r.GPTotal / r.TotalProfit
}

// =============================================================================
// PERIOD SERIES
// =============================================================================

// PeriodResult is the allocation snapshot after Period elapsed periods.
type PeriodResult struct {
	Period int `json:"period"`
	Result
}

// PeriodSeries holds independent snapshots for periods 1..N.
// Period k is recomputed from scratch; it is not derived from period k-1.
type PeriodSeries struct {
	Regime  Regime         `json:"regime"`
	Accrual AccrualMode    `json:"accrual"`
	Points  []PeriodResult `json:"points"`
}

// Len returns the number of periods in the series.
func (s PeriodSeries) Len() int { return len(s.Points) }

// At returns the snapshot for period k (1-based).
func (s PeriodSeries) At(k int) (PeriodResult, bool) {
	if k < 1 || k > len(s.Points) {
		return PeriodResult{}, false
	}
	return s.Points[k-1], true
}

// Final returns the last snapshot, or a zero value for an empty series.
func (s PeriodSeries) Final() PeriodResult {
	if len(s.Points) == 0 {
		return PeriodResult{Result: Result{Regime: s.Regime}}
	}
	return s.Points[len(s.Points)-1]
}

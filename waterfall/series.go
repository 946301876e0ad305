/*
series.go - Point-in-time allocation snapshots across elapsed periods

PURPOSE:
  Produces the time-series view: for each elapsed period k = 1..N the
  waterfall is recomputed from scratch with gross return and preferred
  return scaled to k. Periods share no state; period k never looks at
  period k-1. A "cumulative" chart is therefore a row of snapshots, not a
  running total of distributions.

ACCRUAL SCHEDULES:
  CompoundAccrual (default):
    gross_k = TI * (1 + LPReturnRate)^k
    pref_k  = TI * ((1 + PreferredReturnRate)^k - 1)

  SimpleAccrual:
    gross_k = TI * (1 + LPReturnRate * k)
    pref_k  = TI * PreferredReturnRate * k

  ProratedAccrual:
    Treats LPReturnRate as the total multiple and PreferredReturnRate as the
    total hurdle over Parameters.Periods, spread linearly:
    gross_k = TI * (1 + (LPReturnRate - 1) * k / Periods)
    pref_k  = TI * PreferredReturnRate * k / Periods

SEE ALSO:
  - engine.go: The shared tier logic
*/
package waterfall

import "math"

// =============================================================================
// ACCRUAL SCHEDULE
// =============================================================================

// AccrualMode names an accrual schedule on the wire.
type AccrualMode string

const (
	AccrualCompound AccrualMode = "compound"
	AccrualSimple   AccrualMode = "simple"
	AccrualProrated AccrualMode = "prorated"
)

// Accrual scales gross return and preferred return to an elapsed period.
type Accrual interface {
	Mode() AccrualMode

	// AmountsAt returns the gross LP return and preferred return amount
	// after elapsed periods.
	AmountsAt(p Parameters, elapsed int) (gross, pref float64)
}

// CompoundAccrual compounds both rates annually.
type CompoundAccrual struct{}

func (CompoundAccrual) Mode() AccrualMode { return AccrualCompound }

func (CompoundAccrual) AmountsAt(p Parameters, elapsed int) (float64, float64) {
	k := float64(elapsed)
	gross := p.TotalInvestment * math.Pow(1+p.LPReturnRate, k)
	pref := p.TotalInvestment * (math.Pow(1+p.PreferredReturnRate, k) - 1)
	return gross, pref
}

// SimpleAccrual accrues both rates linearly per period.
type SimpleAccrual struct{}

func (SimpleAccrual) Mode() AccrualMode { return AccrualSimple }

func (SimpleAccrual) AmountsAt(p Parameters, elapsed int) (float64, float64) {
	k := float64(elapsed)
	gross := p.TotalInvestment * (1 + p.LPReturnRate*k)
	pref := p.TotalInvestment * p.PreferredReturnRate * k
	return gross, pref
}

// ProratedAccrual spreads holding-period totals evenly over Parameters.Periods.
type ProratedAccrual struct{}

func (ProratedAccrual) Mode() AccrualMode { return AccrualProrated }

func (ProratedAccrual) AmountsAt(p Parameters, elapsed int) (float64, float64) {
	periods := p.Periods
	if periods < 1 {
		periods = 1
	}
	frac := float64(elapsed) / float64(periods)
	gross := p.TotalInvestment * (1 + (p.LPReturnRate-1)*frac)
	pref := p.TotalInvestment * p.PreferredReturnRate * frac
	return gross, pref
}

// ParseAccrual maps a wire value to a schedule. Empty means compound.
func ParseAccrual(s string) (Accrual, error) {
	switch AccrualMode(s) {
	case "", AccrualCompound:
		return CompoundAccrual{}, nil
	case AccrualSimple:
		return SimpleAccrual{}, nil
	case AccrualProrated:
		return ProratedAccrual{}, nil
	}
	return nil, &UnknownValueError{Kind: "accrual", Value: s, sentinel: ErrUnknownAccrual}
}

// =============================================================================
// SERIES
// =============================================================================

// AllocateSeries computes periodCount compound-accrual snapshots.
func AllocateSeries(p Parameters, r Regime, periodCount int) PeriodSeries {
	return AllocateSeriesWith(p, r, periodCount, CompoundAccrual{})
}

// AllocateSeriesWith computes periodCount snapshots with the given schedule.
// A non-positive periodCount yields an empty series.
func AllocateSeriesWith(p Parameters, r Regime, periodCount int, accrual Accrual) PeriodSeries {
	if accrual == nil {
		accrual = CompoundAccrual{}
	}
	series := PeriodSeries{Regime: r, Accrual: accrual.Mode()}
	if periodCount <= 0 {
		series.Points = []PeriodResult{}
		return series
	}

	series.Points = make([]PeriodResult, periodCount)
	for k := 1; k <= periodCount; k++ {
		gross, pref := accrual.AmountsAt(p, k)
		series.Points[k-1] = PeriodResult{
			Period: k,
			Result: allocateTiers(p, r, gross, pref),
		}
	}
	return series
}

package waterfall

// =============================================================================
// ALLOCATION - Single-period waterfall
// =============================================================================

// Allocate runs the waterfall for one regime.
//
// It never rejects input. Out-of-range rates produce numerically odd but
// finite results; callers that care run Parameters.Validate first.
func Allocate(p Parameters, r Regime) Result {
	gross := p.TotalInvestment * p.LPReturnRate
	pref := p.TotalInvestment * p.PreferredReturnRate
	return allocateTiers(p, r, gross, pref)
}

// allocateTiers applies tiers 1-4 to an already scaled gross return and
// preferred return amount. Both Allocate and the period series go through here.
func allocateTiers(p Parameters, r Regime, gross, pref float64) Result {
	if p.TotalInvestment <= 0 {
		return Result{Regime: r}
	}

	profit := gross - p.TotalInvestment
	if profit <= 0 {
		return Result{Regime: r}
	}

	after := profit - pref
	if after < 0 {
		after = 0
	}

	var catchUp, carry, gp float64
	if r.HasCatchUp() {
		catchUp = after * p.CatchUpRate
		carry = after * (1 - p.CatchUpRate) * p.CarriedInterestRate
		gp = pref + catchUp + carry
	} else {
		carry = after * p.CarriedInterestRate
		gp = pref + carry
	}

	return Result{
		Regime:                r,
		TotalProfit:           profit,
		PreferredReturnAmount: pref,
		ProfitAfterPreferred:  after,
		CatchUpAmount:         catchUp,
		ResidualCarryAmount:   carry,
		GPTotal:               gp,
		LPTotal:               profit - gp,
	}
}

// AllocateBoth runs Allocate once per regime, in Regimes() order.
func AllocateBoth(p Parameters) []Result {
	regimes := Regimes()
	out := make([]Result, len(regimes))
	for i, r := range regimes {
		out[i] = Allocate(p, r)
	}
	return out
}

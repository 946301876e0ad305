/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. The engine works in
  float64; everything a client sees is rounded to cents here, as a
  shopspring/decimal amount plus a display string.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Inputs:
    ParametersDTO, AllocateRequest, CompareRequest, SeriesRequest, SweepRequest

  Results:
    Money, ResultDTO, SliceDTO, AllocationDTO, ComparisonDTO,
    SeriesDTO, PeriodSeriesDTO, PeriodPointDTO, SweepDTO, SweepPointDTO

  Persistence:
    FundDTO, RunDTO

  Scenarios:
    ScenarioDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/warp/waterfall-engine/factory"
	"github.com/warp/waterfall-engine/store/sqlite"
	"github.com/warp/waterfall-engine/waterfall"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is an amount rounded to cents with its display form.
type Money struct {
	Amount    decimal.Decimal `json:"amount"`
	Formatted string          `json:"formatted"` // "$1,234.56", "-$30,000.00"
}

func newMoney(v float64) Money {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Money{Amount: decimal.Zero, Formatted: strconv.FormatFloat(v, 'f', -1, 64)}
	}
	return moneyFromDecimal(decimal.NewFromFloat(v))
}

func moneyFromDecimal(d decimal.Decimal) Money {
	d = d.Round(2)
	return Money{Amount: d, Formatted: formatUSD(d)}
}

// formatUSD renders d as dollars with thousands separators and two decimals.
func formatUSD(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(cents)
	return b.String()
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ParametersDTO is the wire form of waterfall.Parameters.
// periods omitted or 0 means 5; carried_interest_rate omitted means 0.20.
type ParametersDTO struct {
	TotalInvestment     float64  `json:"total_investment"`
	PreferredReturnRate float64  `json:"preferred_return_rate"`
	CatchUpRate         float64  `json:"catch_up_rate"`
	LPReturnRate        float64  `json:"lp_return_rate"`
	Periods             int      `json:"periods,omitempty"`
	CarriedInterestRate *float64 `json:"carried_interest_rate,omitempty"`
}

// toParameters applies defaults and validates.
func (p ParametersDTO) toParameters() (waterfall.Parameters, error) {
	params := waterfall.Parameters{
		TotalInvestment:     p.TotalInvestment,
		PreferredReturnRate: p.PreferredReturnRate,
		CatchUpRate:         p.CatchUpRate,
		LPReturnRate:        p.LPReturnRate,
		Periods:             p.Periods,
		CarriedInterestRate: waterfall.DefaultCarriedInterestRate,
	}
	if params.Periods == 0 {
		params.Periods = waterfall.DefaultPeriods
	}
	if p.CarriedInterestRate != nil {
		params.CarriedInterestRate = *p.CarriedInterestRate
	}
	return params, params.Validate()
}

// AllocateRequest asks for one regime. Regime defaults to with_catch_up.
type AllocateRequest struct {
	Parameters ParametersDTO `json:"parameters"`
	Regime     string        `json:"regime,omitempty"`
}

// CompareRequest asks for both regimes.
type CompareRequest struct {
	Parameters ParametersDTO `json:"parameters"`
}

// SeriesRequest asks for per-period snapshots.
// An empty regime returns both; period_count 0 means parameters.periods.
type SeriesRequest struct {
	Parameters  ParametersDTO `json:"parameters"`
	Regime      string        `json:"regime,omitempty"`
	PeriodCount int           `json:"period_count,omitempty"`
	Accrual     string        `json:"accrual,omitempty"`
}

// SweepRequest varies one rate from..to in steps points.
type SweepRequest struct {
	Parameters ParametersDTO `json:"parameters"`
	Axis       string        `json:"axis"`
	From       float64       `json:"from"`
	To         float64       `json:"to"`
	Steps      int           `json:"steps"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESULT TYPES
// =============================================================================

// ResultDTO is one regime's allocation.
type ResultDTO struct {
	Regime               waterfall.Regime `json:"regime"`
	TotalProfit          Money            `json:"total_profit"`
	PreferredReturn      Money            `json:"preferred_return"`
	ProfitAfterPreferred Money            `json:"profit_after_preferred"`
	CatchUp              Money            `json:"catch_up"`
	ResidualCarry        Money            `json:"residual_carry"`
	GPTotal              Money            `json:"gp_total"`
	LPTotal              Money            `json:"lp_total"`
	GPShare              float64          `json:"gp_share"`
	Breakdown            []SliceDTO       `json:"breakdown,omitempty"`
}

// SliceDTO is one tier of the GP's take.
type SliceDTO struct {
	Label  string  `json:"label"`
	Amount Money   `json:"amount"`
	Share  float64 `json:"share"`
}

// AllocationDTO is the response for a single-regime allocation.
type AllocationDTO struct {
	RunID      string               `json:"run_id,omitempty"`
	Parameters waterfall.Parameters `json:"parameters"`
	Result     ResultDTO            `json:"result"`
}

// ComparisonDTO is both regimes side by side.
type ComparisonDTO struct {
	RunID          string               `json:"run_id,omitempty"`
	FundID         string               `json:"fund_id,omitempty"`
	Parameters     waterfall.Parameters `json:"parameters"`
	WithCatchUp    ResultDTO            `json:"with_catch_up"`
	WithoutCatchUp ResultDTO            `json:"without_catch_up"`
	GPUplift       Money                `json:"gp_uplift"`
	LPCost         Money                `json:"lp_cost"`
}

// PeriodPointDTO is the snapshot after Period elapsed periods.
type PeriodPointDTO struct {
	Period int `json:"period"`
	ResultDTO
}

// PeriodSeriesDTO is one regime's series.
type PeriodSeriesDTO struct {
	Regime waterfall.Regime `json:"regime"`
	Points []PeriodPointDTO `json:"points"`
}

// SeriesDTO holds one series per requested regime.
type SeriesDTO struct {
	FundID      string                `json:"fund_id,omitempty"`
	Parameters  waterfall.Parameters  `json:"parameters"`
	Accrual     waterfall.AccrualMode `json:"accrual"`
	PeriodCount int                   `json:"period_count"`
	Series      []PeriodSeriesDTO     `json:"series"`
}

// SweepPointDTO is the headline numbers at one axis value.
type SweepPointDTO struct {
	Value            float64 `json:"value"`
	GPWithCatchUp    Money   `json:"gp_with_catch_up"`
	GPWithoutCatchUp Money   `json:"gp_without_catch_up"`
	LPWithCatchUp    Money   `json:"lp_with_catch_up"`
	LPWithoutCatchUp Money   `json:"lp_without_catch_up"`
	GPUplift         Money   `json:"gp_uplift"`
}

// SweepDTO is a sensitivity sweep.
type SweepDTO struct {
	Parameters waterfall.Parameters `json:"parameters"`
	Axis       waterfall.Axis       `json:"axis"`
	Points     []SweepPointDTO      `json:"points"`
}

// =============================================================================
// PERSISTENCE TYPES
// =============================================================================

// FundDTO is stored fund terms.
type FundDTO struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Terms     factory.FundJSON `json:"terms"`
	Version   int              `json:"version"`
	CreatedAt string           `json:"created_at,omitempty"`
	UpdatedAt string           `json:"updated_at,omitempty"`
}

// RunDTO is one stored calculation. Request and response are only
// included when fetching a single run.
type RunDTO struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	FundID      string          `json:"fund_id,omitempty"`
	Regime      string          `json:"regime,omitempty"`
	TotalProfit Money           `json:"total_profit"`
	GPTotal     Money           `json:"gp_total"`
	LPTotal     Money           `json:"lp_total"`
	CreatedAt   string          `json:"created_at"`
	Request     json.RawMessage `json:"request,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"` // "baseline" or "edge-case"
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toResultDTO(res waterfall.Result, withBreakdown bool) ResultDTO {
	dto := ResultDTO{
		Regime:               res.Regime,
		TotalProfit:          newMoney(res.TotalProfit),
		PreferredReturn:      newMoney(res.PreferredReturnAmount),
		ProfitAfterPreferred: newMoney(res.ProfitAfterPreferred),
		CatchUp:              newMoney(res.CatchUpAmount),
		ResidualCarry:        newMoney(res.ResidualCarryAmount),
		GPTotal:              newMoney(res.GPTotal),
		LPTotal:              newMoney(res.LPTotal),
		GPShare:              roundShare(res.GPShare()),
	}
	if withBreakdown {
		for _, s := range waterfall.Breakdown(res) {
			dto.Breakdown = append(dto.Breakdown, SliceDTO{
				Label:  s.Label,
				Amount: newMoney(s.Amount),
				Share:  roundShare(s.Share),
			})
		}
	}
	return dto
}

func toComparisonDTO(p waterfall.Parameters, cmp waterfall.Comparison) ComparisonDTO {
	return ComparisonDTO{
		Parameters:     p,
		WithCatchUp:    toResultDTO(cmp.WithCatchUp, true),
		WithoutCatchUp: toResultDTO(cmp.WithoutCatchUp, true),
		GPUplift:       newMoney(cmp.GPUplift),
		LPCost:         newMoney(cmp.LPCost),
	}
}

func toPeriodSeriesDTO(s waterfall.PeriodSeries) PeriodSeriesDTO {
	points := make([]PeriodPointDTO, len(s.Points))
	for i, pt := range s.Points {
		points[i] = PeriodPointDTO{Period: pt.Period, ResultDTO: toResultDTO(pt.Result, false)}
	}
	return PeriodSeriesDTO{Regime: s.Regime, Points: points}
}

func toSweepPointDTO(pt waterfall.SweepPoint) SweepPointDTO {
	return SweepPointDTO{
		Value:            pt.Value,
		GPWithCatchUp:    newMoney(pt.WithCatchUp.GPTotal),
		GPWithoutCatchUp: newMoney(pt.WithoutCatchUp.GPTotal),
		LPWithCatchUp:    newMoney(pt.WithCatchUp.LPTotal),
		LPWithoutCatchUp: newMoney(pt.WithoutCatchUp.LPTotal),
		GPUplift:         newMoney(pt.GPUplift),
	}
}

func toRunDTO(run sqlite.RunRecord, withBodies bool) RunDTO {
	dto := RunDTO{
		ID:          run.ID,
		Kind:        string(run.Kind),
		FundID:      run.FundID,
		Regime:      run.Regime,
		TotalProfit: moneyFromDecimal(run.TotalProfit),
		GPTotal:     moneyFromDecimal(run.GPTotal),
		LPTotal:     moneyFromDecimal(run.LPTotal),
		CreatedAt:   run.CreatedAt.Format(time.RFC3339),
	}
	if withBodies {
		dto.Request = json.RawMessage(run.RequestJSON)
		dto.Response = json.RawMessage(run.ResponseJSON)
	}
	return dto
}

// roundShare keeps shares readable (0.664, not 0.66399999999).
func roundShare(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1e6) / 1e6
}

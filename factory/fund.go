/*
Package factory provides JSON to Go fund terms conversion.

PURPOSE:
  Converts JSON fund term definitions into waterfall.Parameters plus the
  accrual schedule used for period series. Terms can then be stored,
  edited in an admin UI and replayed without code changes.

JSON SCHEMA:
  {
    "id": "fund-i",
    "name": "Fund I",
    "total_investment": 1000000,
    "preferred_return_rate": 0.08,
    "catch_up_rate": 0.5,
    "lp_return_rate": 1.5,
    "periods": 5,
    "carried_interest_rate": 0.2,
    "accrual": "compound"
  }

DEFAULTS:
  carried_interest_rate omitted: 0.20
  periods omitted or 0:          5
  accrual omitted:               compound

  Rates are fractions. 8 means 800%, not 8%, and is rejected by validation.

USAGE:
  f := factory.NewFundFactory()
  fund, err := f.ParseFund(factory.TextbookFundJSON("fund-i", "Fund I"))
  cmp := waterfall.Compare(fund.Parameters)

SEE ALSO:
  - presets.go: Ready-made fund terms
  - waterfall/validate.go: Range checks applied by FromJSON
*/
package factory

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/warp/waterfall-engine/waterfall"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// FundJSON is the JSON representation of fund terms.
type FundJSON struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	TotalInvestment     float64  `json:"total_investment"`
	PreferredReturnRate float64  `json:"preferred_return_rate"`
	CatchUpRate         float64  `json:"catch_up_rate"`
	LPReturnRate        float64  `json:"lp_return_rate"`
	Periods             int      `json:"periods,omitempty"`
	CarriedInterestRate *float64 `json:"carried_interest_rate,omitempty"`
	Accrual             string   `json:"accrual,omitempty"`
}

// Fund is a named, validated set of waterfall terms.
type Fund struct {
	ID         string
	Name       string
	Parameters waterfall.Parameters
	Accrual    waterfall.Accrual
}

// =============================================================================
// FACTORY
// =============================================================================

// FundFactory creates funds from JSON definitions.
type FundFactory struct{}

// NewFundFactory creates a new fund factory.
func NewFundFactory() *FundFactory {
	return &FundFactory{}
}

// ParseFund parses a JSON string into a Fund.
func (f *FundFactory) ParseFund(jsonStr string) (*Fund, error) {
	var fj FundJSON
	if err := json.Unmarshal([]byte(jsonStr), &fj); err != nil {
		return nil, fmt.Errorf("failed to parse fund JSON: %w", err)
	}

	return f.FromJSON(fj)
}

// FromJSON converts FundJSON to a Fund, applying defaults and validating ranges.
func (f *FundFactory) FromJSON(fj FundJSON) (*Fund, error) {
	if fj.ID == "" {
		return nil, &waterfall.InvalidParameterError{Field: "id", Value: fj.ID, Reason: "is required"}
	}
	if fj.Name == "" {
		return nil, &waterfall.InvalidParameterError{Field: "name", Value: fj.Name, Reason: "is required"}
	}

	params := waterfall.Parameters{
		TotalInvestment:     fj.TotalInvestment,
		PreferredReturnRate: fj.PreferredReturnRate,
		CatchUpRate:         fj.CatchUpRate,
		LPReturnRate:        fj.LPReturnRate,
		Periods:             fj.Periods,
		CarriedInterestRate: waterfall.DefaultCarriedInterestRate,
	}
	if params.Periods == 0 {
		params.Periods = waterfall.DefaultPeriods
	}
	if fj.CarriedInterestRate != nil {
		params.CarriedInterestRate = *fj.CarriedInterestRate
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}

	accrual, err := waterfall.ParseAccrual(fj.Accrual)
	if err != nil {
		return nil, err
	}

	return &Fund{
		ID:         fj.ID,
		Name:       fj.Name,
		Parameters: params,
		Accrual:    accrual,
	}, nil
}

// ToJSON converts a Fund back to FundJSON. Defaults are written out explicitly.
func (f *FundFactory) ToJSON(fund *Fund) FundJSON {
	carry := fund.Parameters.CarriedInterestRate
	fj := FundJSON{
		ID:                  fund.ID,
		Name:                fund.Name,
		TotalInvestment:     fund.Parameters.TotalInvestment,
		PreferredReturnRate: fund.Parameters.PreferredReturnRate,
		CatchUpRate:         fund.Parameters.CatchUpRate,
		LPReturnRate:        fund.Parameters.LPReturnRate,
		Periods:             fund.Parameters.Periods,
		CarriedInterestRate: &carry,
		Accrual:             string(waterfall.AccrualCompound),
	}
	if fund.Accrual != nil {
		fj.Accrual = string(fund.Accrual.Mode())
	}
	return fj
}

// Marshal renders fund terms as indented JSON for storage.
func (f *FundFactory) Marshal(fund *Fund) (string, error) {
	b, err := json.MarshalIndent(f.ToJSON(fund), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal fund: %w", err)
	}
	return string(b), nil
}

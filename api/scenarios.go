/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with fund terms
	and a first comparison run. Each scenario shows one shape of the
	waterfall.

AVAILABLE SCENARIOS:

	textbook:         8% pref, 50% catch-up, 1.5x. GP $332k vs $164k
	full-catch-up:    100% catch-up at 2.0x. GP takes all profit
	underwater:       0.8x multiple. Capital lost, nothing allocated
	hurdle-shortfall: Profit below the 8% hurdle. Pref absorbs it all
	no-preferred:     No hurdle. Catch-up applies to all profit

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create fund terms via factory presets
 3. Record a comparison run for the fund

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "textbook"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add a preset to factory/presets.go
 3. Add case to scenarioFundJSON

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Fund and run handlers
  - factory/presets.go: Fund term presets
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/waterfall-engine/factory"
	"github.com/warp/waterfall-engine/store/sqlite"
	"github.com/warp/waterfall-engine/waterfall"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "textbook",
		Name:        "Textbook Fund",
		Description: "$1M at 1.5x, 8% pref, 50% catch-up, 20% carry",
		Category:    "baseline",
	},
	{
		ID:          "full-catch-up",
		Name:        "Full Catch-up",
		Description: "100% catch-up at 2.0x: the GP takes everything after pref",
		Category:    "edge-case",
	},
	{
		ID:          "underwater",
		Name:        "Underwater Fund",
		Description: "0.8x multiple: capital is lost and nothing is allocated",
		Category:    "edge-case",
	},
	{
		ID:          "hurdle-shortfall",
		Name:        "Hurdle Shortfall",
		Description: "1.05x multiple: profit exists but is smaller than the 8% hurdle",
		Category:    "edge-case",
	},
	{
		ID:          "no-preferred",
		Name:        "No Preferred Return",
		Description: "No hurdle: catch-up and carry apply to all profit",
		Category:    "baseline",
	},
}

// scenarioFundJSON returns the preset terms for a scenario.
func scenarioFundJSON(id string) (string, bool) {
	switch id {
	case "textbook":
		return factory.TextbookFundJSON("fund-textbook", "Textbook Fund"), true
	case "full-catch-up":
		return factory.FullCatchUpFundJSON("fund-full-catch-up", "Full Catch-up Fund"), true
	case "underwater":
		return factory.UnderwaterFundJSON("fund-underwater", "Underwater Fund"), true
	case "hurdle-shortfall":
		return factory.HurdleShortfallFundJSON("fund-hurdle-shortfall", "Hurdle Shortfall Fund"), true
	case "no-preferred":
		return factory.NoPreferredFundJSON("fund-no-preferred", "No Preferred Fund"), true
	}
	return "", false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          current,
		Name:        current,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario resets all data and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fundJSON, ok := scenarioFundJSON(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.forgetFunds()

	fund, err := h.loadScenarioFund(ctx, fundJSON)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.log.Info().Str("scenario", req.ScenarioID).Str("fund_id", fund.ID).Msg("Scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"fund_id":  fund.ID,
	})
}

// loadScenarioFund stores the preset fund and records its first comparison.
func (h *Handler) loadScenarioFund(ctx context.Context, fundJSON string) (*factory.Fund, error) {
	fund, err := h.FundFactory.ParseFund(fundJSON)
	if err != nil {
		return nil, err
	}
	if _, err := h.saveFund(ctx, fund); err != nil {
		return nil, err
	}

	cmp := waterfall.Compare(fund.Parameters)
	run, err := sqlite.NewRun(sqlite.RunKindCompare,
		map[string]string{"fund_id": fund.ID},
		toComparisonDTO(fund.Parameters, cmp),
	)
	if err != nil {
		return nil, err
	}
	run.FundID = fund.ID
	run = run.WithAmounts(cmp.WithCatchUp.TotalProfit, cmp.WithCatchUp.GPTotal, cmp.WithCatchUp.LPTotal)

	if _, err := h.Store.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	return fund, nil
}

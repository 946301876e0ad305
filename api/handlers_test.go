/*
handlers_test.go - HTTP tests for the API handlers

Tests drive the full router (middleware included) against an in-memory
SQLite store and an in-memory response cache.
*/
package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/waterfall-engine/cache"
	"github.com/warp/waterfall-engine/factory"
	"github.com/warp/waterfall-engine/store/sqlite"
	"github.com/warp/waterfall-engine/waterfall"
)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewHandler(store, cache.NewMemory(), time.Minute, zerolog.New(io.Discard))
}

func setupTestRouter(t *testing.T) (*Handler, http.Handler) {
	h := setupTestHandler(t)
	return h, NewRouter(h, RouterOptions{AllowedOrigins: []string{"http://localhost:5173"}})
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func textbookParams() ParametersDTO {
	return ParametersDTO{
		TotalInvestment:     1_000_000,
		PreferredReturnRate: 0.08,
		CatchUpRate:         0.50,
		LPReturnRate:        1.50,
		Periods:             5,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth(t *testing.T) {
	_, router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func TestAllocate_TextbookDefaultsToCatchUp(t *testing.T) {
	// GIVEN: Textbook terms and no regime
	_, router := setupTestRouter(t)

	// WHEN: Allocating
	rec := doRequest(t, router, http.MethodPost, "/api/allocations", AllocateRequest{Parameters: textbookParams()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The catch-up regime with $332,000 to the GP and a run id
	dto := decode[AllocationDTO](t, rec)
	assert.Equal(t, waterfall.WithCatchUp, dto.Result.Regime)
	assert.Equal(t, "$500,000.00", dto.Result.TotalProfit.Formatted)
	assert.Equal(t, "$80,000.00", dto.Result.PreferredReturn.Formatted)
	assert.Equal(t, "$210,000.00", dto.Result.CatchUp.Formatted)
	assert.Equal(t, "$42,000.00", dto.Result.ResidualCarry.Formatted)
	assert.Equal(t, "$332,000.00", dto.Result.GPTotal.Formatted)
	assert.Equal(t, "$168,000.00", dto.Result.LPTotal.Formatted)
	assert.InDelta(t, 0.664, dto.Result.GPShare, 1e-9)
	assert.Equal(t, 0.20, dto.Parameters.CarriedInterestRate, "carry defaulted")
	assert.NotEmpty(t, dto.RunID)

	require.Len(t, dto.Result.Breakdown, 3)
	assert.Equal(t, waterfall.LabelCatchUp, dto.Result.Breakdown[1].Label)
}

func TestAllocate_WithoutCatchUp(t *testing.T) {
	_, router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/allocations",
		AllocateRequest{Parameters: textbookParams(), Regime: "without_catch_up"})
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decode[AllocationDTO](t, rec)
	assert.Equal(t, "$164,000.00", dto.Result.GPTotal.Formatted)
	assert.Equal(t, "$336,000.00", dto.Result.LPTotal.Formatted)
	assert.Len(t, dto.Result.Breakdown, 2)
}

func TestAllocate_HurdleShortfallShowsNegativeLP(t *testing.T) {
	_, router := setupTestRouter(t)

	p := textbookParams()
	p.LPReturnRate = 1.05
	rec := doRequest(t, router, http.MethodPost, "/api/allocations", AllocateRequest{Parameters: p})
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decode[AllocationDTO](t, rec)
	assert.Equal(t, "$80,000.00", dto.Result.GPTotal.Formatted)
	assert.Equal(t, "-$30,000.00", dto.Result.LPTotal.Formatted)
}

func TestAllocate_OverflowingInputStillRecordsRun(t *testing.T) {
	// GIVEN: Valid but huge terms whose gross return overflows float64
	h, router := setupTestRouter(t)
	params := textbookParams()
	params.TotalInvestment = 1e308
	params.LPReturnRate = 2

	// WHEN: Allocating
	rec := doRequest(t, router, http.MethodPost, "/api/allocations", AllocateRequest{Parameters: params})

	// THEN: A normal response and a stored run with zeroed amounts
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decode[AllocationDTO](t, rec)
	assert.Equal(t, "+Inf", dto.Result.TotalProfit.Formatted)
	require.NotEmpty(t, dto.RunID)

	run, err := h.Store.GetRun(context.Background(), dto.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, run.TotalProfit.IsZero())
	assert.True(t, run.LPTotal.IsZero())
}

func TestAllocate_BadRequests(t *testing.T) {
	_, router := setupTestRouter(t)

	outOfRange := textbookParams()
	outOfRange.CatchUpRate = 1.5

	cases := []struct {
		name string
		body any
	}{
		{"malformed JSON", `{"parameters":`},
		{"empty body", nil},
		{"unknown regime", AllocateRequest{Parameters: textbookParams(), Regime: "european"}},
		{"out of range", AllocateRequest{Parameters: outOfRange}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/api/allocations", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestCompare(t *testing.T) {
	h, router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/allocations/compare", CompareRequest{Parameters: textbookParams()})
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decode[ComparisonDTO](t, rec)
	assert.Equal(t, "$332,000.00", dto.WithCatchUp.GPTotal.Formatted)
	assert.Equal(t, "$164,000.00", dto.WithoutCatchUp.GPTotal.Formatted)
	assert.Equal(t, "$168,000.00", dto.GPUplift.Formatted)
	assert.Equal(t, "$168,000.00", dto.LPCost.Formatted)
	require.NotEmpty(t, dto.RunID)

	run, err := h.Store.GetRun(context.Background(), dto.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, sqlite.RunKindCompare, run.Kind)
	assert.Equal(t, "332000", run.GPTotal.String())
}

func TestCompare_ServedFromCacheStillRecordsRun(t *testing.T) {
	// GIVEN: The same comparison twice
	h, router := setupTestRouter(t)
	body := CompareRequest{Parameters: textbookParams()}

	first := decode[ComparisonDTO](t, doRequest(t, router, http.MethodPost, "/api/allocations/compare", body))
	second := decode[ComparisonDTO](t, doRequest(t, router, http.MethodPost, "/api/allocations/compare", body))

	// THEN: Same numbers, a cache entry, two distinct runs
	assert.Equal(t, first.WithCatchUp.GPTotal.Formatted, second.WithCatchUp.GPTotal.Formatted)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 1, h.Cache.(*cache.Memory).Len())

	runs, err := h.Store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestCompare_WithoutCache(t *testing.T) {
	h, router := setupTestRouter(t)
	h.Cache = nil

	rec := doRequest(t, router, http.MethodPost, "/api/allocations/compare", CompareRequest{Parameters: textbookParams()})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSeries_BothRegimesDefaultPeriodCount(t *testing.T) {
	_, router := setupTestRouter(t)

	p := textbookParams()
	p.LPReturnRate = 0.10
	rec := doRequest(t, router, http.MethodPost, "/api/allocations/series", SeriesRequest{Parameters: p})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	dto := decode[SeriesDTO](t, rec)
	assert.Equal(t, waterfall.AccrualCompound, dto.Accrual)
	assert.Equal(t, 5, dto.PeriodCount)
	require.Len(t, dto.Series, 2)
	assert.Equal(t, waterfall.WithCatchUp, dto.Series[0].Regime)
	assert.Equal(t, waterfall.WithoutCatchUp, dto.Series[1].Regime)
	require.Len(t, dto.Series[0].Points, 5)
	assert.Equal(t, 1, dto.Series[0].Points[0].Period)
	assert.Equal(t, "$100,000.00", dto.Series[0].Points[0].TotalProfit.Formatted)
	assert.Empty(t, dto.Series[0].Points[0].Breakdown)
}

func TestSeries_SingleRegimeAccrualAndCount(t *testing.T) {
	_, router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/allocations/series", SeriesRequest{
		Parameters:  textbookParams(),
		Regime:      "without_catch_up",
		PeriodCount: 3,
		Accrual:     "prorated",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decode[SeriesDTO](t, rec)
	require.Len(t, dto.Series, 1)
	assert.Equal(t, waterfall.AccrualProrated, dto.Accrual)
	assert.Len(t, dto.Series[0].Points, 3)
}

func TestSeries_Errors(t *testing.T) {
	_, router := setupTestRouter(t)

	cases := map[string]SeriesRequest{
		"too many periods": {Parameters: textbookParams(), PeriodCount: MaxSeriesPeriods + 1},
		"negative periods": {Parameters: textbookParams(), PeriodCount: -1},
		"unknown accrual":  {Parameters: textbookParams(), Accrual: "daily"},
		"unknown regime":   {Parameters: textbookParams(), Regime: "both"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/api/allocations/series", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSweep(t *testing.T) {
	_, router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/allocations/sweep", SweepRequest{
		Parameters: textbookParams(),
		Axis:       "lp_return_rate",
		From:       1.0,
		To:         2.0,
		Steps:      11,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	dto := decode[SweepDTO](t, rec)
	assert.Equal(t, waterfall.AxisLPReturnRate, dto.Axis)
	require.Len(t, dto.Points, 11)
	assert.Equal(t, "$0.00", dto.Points[0].GPWithCatchUp.Formatted)
	assert.Equal(t, "$332,000.00", dto.Points[5].GPWithCatchUp.Formatted)
	assert.Equal(t, "$164,000.00", dto.Points[5].GPWithoutCatchUp.Formatted)
	assert.Equal(t, 2.0, dto.Points[10].Value)
}

func TestSweep_Errors(t *testing.T) {
	_, router := setupTestRouter(t)

	cases := map[string]SweepRequest{
		"unknown axis":   {Parameters: textbookParams(), Axis: "periods", From: 1, To: 2, Steps: 3},
		"too few steps":  {Parameters: textbookParams(), Axis: "catch_up_rate", From: 0, To: 1, Steps: 1},
		"too many steps": {Parameters: textbookParams(), Axis: "catch_up_rate", From: 0, To: 1, Steps: MaxSweepSteps + 1},
		"range past one": {Parameters: textbookParams(), Axis: "catch_up_rate", From: 0, To: 1.5, Steps: 4},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/api/allocations/sweep", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// =============================================================================
// FUNDS
// =============================================================================

func TestFunds_CRUD(t *testing.T) {
	_, router := setupTestRouter(t)

	var terms factory.FundJSON
	require.NoError(t, json.Unmarshal([]byte(factory.TextbookFundJSON("fund-i", "Fund I")), &terms))

	// Create
	rec := doRequest(t, router, http.MethodPost, "/api/funds", terms)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[FundDTO](t, rec)
	assert.Equal(t, "fund-i", created.ID)
	assert.Equal(t, 1, created.Version)

	// Update bumps version
	terms.Name = "Fund I (amended)"
	rec = doRequest(t, router, http.MethodPost, "/api/funds", terms)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[FundDTO](t, rec).Version)

	// Get
	rec = doRequest(t, router, http.MethodGet, "/api/funds/fund-i", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[FundDTO](t, rec)
	assert.Equal(t, "Fund I (amended)", got.Name)
	assert.Equal(t, 0.5, got.Terms.CatchUpRate)

	// List
	rec = doRequest(t, router, http.MethodGet, "/api/funds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]FundDTO](t, rec), 1)

	// Delete
	rec = doRequest(t, router, http.MethodDelete, "/api/funds/fund-i", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/funds/fund-i", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, "/api/funds/fund-i", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFunds_ListEmptyIsArray(t *testing.T) {
	_, router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/funds", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestFunds_CreateInvalid(t *testing.T) {
	_, router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/funds", `{"id":"x","name":"X","preferred_return_rate":8}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/funds", `{"name":"No ID"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFunds_CompareAndSeries(t *testing.T) {
	h, router := setupTestRouter(t)

	require.Equal(t, http.StatusCreated,
		doRequest(t, router, http.MethodPost, "/api/funds", factory.TextbookFundJSON("fund-i", "Fund I")).Code)

	// Compare from stored terms
	rec := doRequest(t, router, http.MethodPost, "/api/funds/fund-i/compare", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cmp := decode[ComparisonDTO](t, rec)
	assert.Equal(t, "fund-i", cmp.FundID)
	assert.Equal(t, "$332,000.00", cmp.WithCatchUp.GPTotal.Formatted)

	run, err := h.Store.GetRun(context.Background(), cmp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "fund-i", run.FundID)

	// Series with query overrides
	rec = doRequest(t, router, http.MethodGet, "/api/funds/fund-i/series?accrual=simple&periods=2&regime=with_catch_up", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	series := decode[SeriesDTO](t, rec)
	assert.Equal(t, "fund-i", series.FundID)
	assert.Equal(t, waterfall.AccrualSimple, series.Accrual)
	require.Len(t, series.Series, 1)
	assert.Len(t, series.Series[0].Points, 2)

	// Bad query
	rec = doRequest(t, router, http.MethodGet, "/api/funds/fund-i/series?periods=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doRequest(t, router, http.MethodGet, "/api/funds/fund-i/series?periods=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFunds_UnknownFund(t *testing.T) {
	_, router := setupTestRouter(t)

	assert.Equal(t, http.StatusNotFound, doRequest(t, router, http.MethodPost, "/api/funds/ghost/compare", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, router, http.MethodGet, "/api/funds/ghost/series", nil).Code)
}

func TestLoadFunds_ReadsStoredTerms(t *testing.T) {
	ctx := context.Background()
	h := setupTestHandler(t)

	require.NoError(t, h.Store.SaveFund(ctx, sqlite.FundRecord{
		ID: "fund-i", Name: "Fund I", ConfigJSON: factory.TextbookFundJSON("fund-i", "Fund I"),
	}))
	require.NoError(t, h.Store.SaveFund(ctx, sqlite.FundRecord{
		ID: "broken", Name: "Broken", ConfigJSON: `{"id":"broken"}`,
	}))

	require.NoError(t, h.LoadFunds(ctx))

	fund, err := h.fund(ctx, "fund-i")
	require.NoError(t, err)
	assert.Equal(t, 1_000_000.0, fund.Parameters.TotalInvestment)

	_, err = h.fund(ctx, "broken")
	assert.Error(t, err)
	assert.False(t, waterfall.IsNotFound(err))
}

func TestFunds_UnreadableStoredTerms(t *testing.T) {
	// GIVEN: One good fund and one whose stored terms are not JSON
	ctx := context.Background()
	h, router := setupTestRouter(t)

	require.NoError(t, h.Store.SaveFund(ctx, sqlite.FundRecord{
		ID: "fund-i", Name: "Fund I", ConfigJSON: factory.TextbookFundJSON("fund-i", "Fund I"),
	}))
	require.NoError(t, h.Store.SaveFund(ctx, sqlite.FundRecord{
		ID: "corrupt", Name: "Corrupt", ConfigJSON: "{not json",
	}))

	// WHEN: Listing funds
	rec := doRequest(t, router, http.MethodGet, "/api/funds", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The unreadable fund is left out rather than shown with empty terms
	funds := decode[[]FundDTO](t, rec)
	require.Len(t, funds, 1)
	assert.Equal(t, "fund-i", funds[0].ID)
	assert.Equal(t, 1_000_000.0, funds[0].Terms.TotalInvestment)

	// AND: Fetching it directly is a server error
	rec = doRequest(t, router, http.MethodGet, "/api/funds/corrupt", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "corrupt")
}

// =============================================================================
// RUNS
// =============================================================================

func TestRuns_ListAndGet(t *testing.T) {
	_, router := setupTestRouter(t)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK,
			doRequest(t, router, http.MethodPost, "/api/allocations", AllocateRequest{Parameters: textbookParams()}).Code)
	}

	rec := doRequest(t, router, http.MethodGet, "/api/runs?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]RunDTO](t, rec)
	require.Len(t, runs, 2)
	assert.Equal(t, "allocate", runs[0].Kind)
	assert.Equal(t, "with_catch_up", runs[0].Regime)
	assert.Equal(t, "$332,000.00", runs[0].GPTotal.Formatted)
	assert.Empty(t, runs[0].Request, "list omits bodies")

	rec = doRequest(t, router, http.MethodGet, "/api/runs/"+runs[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[RunDTO](t, rec)
	assert.NotEmpty(t, run.Request)
	assert.NotEmpty(t, run.Response)
}

func TestRuns_Errors(t *testing.T) {
	_, router := setupTestRouter(t)

	assert.Equal(t, http.StatusNotFound, doRequest(t, router, http.MethodGet, "/api/runs/nope", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(t, router, http.MethodGet, "/api/runs?limit=zero", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(t, router, http.MethodGet, "/api/runs?limit=0", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, router, http.MethodGet, "/api/runs?limit=100000", nil).Code)
}

// =============================================================================
// CACHE FAILURES
// =============================================================================

type failingCache struct{ gets, sets int }

func (c *failingCache) Get(context.Context, string) ([]byte, bool, error) {
	c.gets++
	return nil, false, cache.ErrUnavailable
}

func (c *failingCache) Set(context.Context, string, []byte, time.Duration) error {
	c.sets++
	return cache.ErrUnavailable
}

func TestCacheFailureFallsBackToCompute(t *testing.T) {
	// GIVEN: A cache that always fails
	h, router := setupTestRouter(t)
	fc := &failingCache{}
	h.Cache = fc

	// WHEN: Requesting a comparison
	rec := doRequest(t, router, http.MethodPost, "/api/allocations/compare", CompareRequest{Parameters: textbookParams()})

	// THEN: The request still succeeds
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "$332,000.00", decode[ComparisonDTO](t, rec).WithCatchUp.GPTotal.Formatted)
	assert.Equal(t, 1, fc.gets)
	assert.Equal(t, 1, fc.sets)
}

func TestCORSPreflight(t *testing.T) {
	_, router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/allocations", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

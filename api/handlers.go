/*
handlers.go - HTTP API handlers for the waterfall engine

PURPOSE:
  Exposes the waterfall engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the waterfall package.

ENDPOINTS:
  Allocations (ad-hoc parameters):
    POST   /api/allocations           One regime, with GP breakdown
    POST   /api/allocations/compare   Both regimes side by side
    POST   /api/allocations/series    Per-period snapshots
    POST   /api/allocations/sweep     Sensitivity of both regimes to one rate

  Funds (stored terms):
    GET    /api/funds                 List fund terms
    POST   /api/funds                 Create or update fund terms
    GET    /api/funds/{id}            Get fund terms
    DELETE /api/funds/{id}            Delete fund terms
    POST   /api/funds/{id}/compare    Compare using stored terms
    GET    /api/funds/{id}/series     Series using stored terms

  Runs (audit trail):
    GET    /api/runs                  Recent runs, newest first
    GET    /api/runs/{id}             One run with request and response

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - FundFactory: JSON to Fund conversion
  - Cache: Optional response cache (nil disables caching)
  - Parsed funds cached in memory for quick lookups

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (Parameters.Validate via the DTO)
  3. Call the engine (or serve the cached response)
  4. Record a run where the endpoint does so
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid JSON, out-of-range parameters, unknown regime/accrual/axis
  - 404: Fund or run not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/warp/waterfall-engine/cache"
	"github.com/warp/waterfall-engine/factory"
	"github.com/warp/waterfall-engine/store/sqlite"
	"github.com/warp/waterfall-engine/waterfall"
)

// Request limits.
const (
	MaxSeriesPeriods = 100
	MinSweepSteps    = 2
	MaxSweepSteps    = 200
	DefaultRunLimit  = 50
	MaxRunLimit      = 500

	maxBodyBytes = 1 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	FundFactory *factory.FundFactory
	Cache       cache.Cache
	CacheTTL    time.Duration
	Logger      zerolog.Logger

	log   zerolog.Logger
	mu    sync.RWMutex
	funds map[string]*factory.Fund

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler. A nil cache disables response caching.
func NewHandler(store *sqlite.Store, c cache.Cache, cacheTTL time.Duration, logger zerolog.Logger) *Handler {
	return &Handler{
		Store:       store,
		FundFactory: factory.NewFundFactory(),
		Cache:       c,
		CacheTTL:    cacheTTL,
		Logger:      logger,
		log:         logger.With().Str("component", "api").Logger(),
		funds:       make(map[string]*factory.Fund),
	}
}

// LoadFunds loads all stored funds into memory. Invalid terms are skipped.
func (h *Handler) LoadFunds(ctx context.Context) error {
	records, err := h.Store.ListFunds(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range records {
		fund, err := h.FundFactory.ParseFund(r.ConfigJSON)
		if err != nil {
			h.log.Warn().Err(err).Str("fund_id", r.ID).Msg("Skipping invalid stored fund")
			continue
		}
		h.funds[fund.ID] = fund
	}
	h.log.Info().Int("funds", len(h.funds)).Msg("Funds loaded")
	return nil
}

// fund returns parsed terms, reading through to the store on a miss.
func (h *Handler) fund(ctx context.Context, id string) (*factory.Fund, error) {
	h.mu.RLock()
	f, ok := h.funds[id]
	h.mu.RUnlock()
	if ok {
		return f, nil
	}

	record, err := h.Store.GetFund(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", waterfall.ErrFundNotFound, id)
	}

	f, err = h.FundFactory.ParseFund(record.ConfigJSON)
	if err != nil {
		return nil, fmt.Errorf("stored fund %s is invalid: %w", id, err)
	}

	h.mu.Lock()
	h.funds[id] = f
	h.mu.Unlock()
	return f, nil
}

func (h *Handler) forgetFunds() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.funds = make(map[string]*factory.Fund)
	h.currentScenario = ""
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// Allocate runs one regime and records the run.
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	params, err := req.Parameters.toParameters()
	if err != nil {
		writeDomainError(w, "Invalid parameters", err)
		return
	}

	regime := waterfall.WithCatchUp
	if req.Regime != "" {
		if regime, err = waterfall.ParseRegime(req.Regime); err != nil {
			writeDomainError(w, "Invalid regime", err)
			return
		}
	}

	res := waterfall.Allocate(params, regime)
	dto := AllocationDTO{Parameters: params, Result: toResultDTO(res, true)}

	dto.RunID = h.recordRun(r.Context(), sqlite.RunKindAllocate, "", string(regime), req, dto,
		res.TotalProfit, res.GPTotal, res.LPTotal)

	writeJSON(w, http.StatusOK, dto)
}

// Compare runs both regimes and records the run.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	params, err := req.Parameters.toParameters()
	if err != nil {
		writeDomainError(w, "Invalid parameters", err)
		return
	}

	h.writeComparison(w, r, params, "", req)
}

// Series returns per-period snapshots for one or both regimes.
func (h *Handler) Series(w http.ResponseWriter, r *http.Request) {
	var req SeriesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	params, err := req.Parameters.toParameters()
	if err != nil {
		writeDomainError(w, "Invalid parameters", err)
		return
	}
	accrual, err := waterfall.ParseAccrual(req.Accrual)
	if err != nil {
		writeDomainError(w, "Invalid accrual", err)
		return
	}

	h.writeSeries(w, r, "", params, accrual, req.Regime, req.PeriodCount)
}

// Sweep compares both regimes across a range of one rate.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	params, err := req.Parameters.toParameters()
	if err != nil {
		writeDomainError(w, "Invalid parameters", err)
		return
	}
	axis, err := waterfall.ParseAxis(req.Axis)
	if err != nil {
		writeDomainError(w, "Invalid axis", err)
		return
	}
	if req.Steps < MinSweepSteps || req.Steps > MaxSweepSteps {
		writeDomainError(w, "Invalid steps", &waterfall.InvalidParameterError{
			Field: "steps", Value: req.Steps,
			Reason: fmt.Sprintf("must be between %d and %d", MinSweepSteps, MaxSweepSteps),
		})
		return
	}

	values := waterfall.LinearSweepValues(req.From, req.To, req.Steps)
	for _, v := range values {
		if err := axis.With(params, v).Validate(); err != nil {
			writeDomainError(w, "Sweep range out of bounds", err)
			return
		}
	}

	dto, err := cached(h, r.Context(), "sweep", req, func() (SweepDTO, error) {
		points, err := waterfall.Sweep(r.Context(), params, axis, values)
		if err != nil {
			return SweepDTO{}, err
		}
		out := SweepDTO{Parameters: params, Axis: axis, Points: make([]SweepPointDTO, len(points))}
		for i, pt := range points {
			out.Points[i] = toSweepPointDTO(pt)
		}
		return out, nil
	})
	if err != nil {
		writeDomainError(w, "Sweep failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// FUND HANDLERS
// =============================================================================

// ListFunds returns all stored fund terms.
func (h *Handler) ListFunds(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListFunds(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list funds", err)
		return
	}

	dtos := make([]FundDTO, 0, len(records))
	for _, rec := range records {
		dto, err := toFundDTO(rec)
		if err != nil {
			h.log.Warn().Err(err).Str("fund_id", rec.ID).Msg("Skipping fund with unreadable terms")
			continue
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateFund validates and stores fund terms. Existing IDs are updated.
func (h *Handler) CreateFund(w http.ResponseWriter, r *http.Request) {
	var req factory.FundJSON
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Validate by parsing
	fund, err := h.FundFactory.FromJSON(req)
	if err != nil {
		writeDomainError(w, "Invalid fund terms", err)
		return
	}

	record, err := h.saveFund(r.Context(), fund)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save fund", err)
		return
	}

	dto, err := toFundDTO(*record)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read saved fund", err)
		return
	}

	status := http.StatusCreated
	if record.Version > 1 {
		status = http.StatusOK
	}
	writeJSON(w, status, dto)
}

// GetFund returns one fund's terms.
func (h *Handler) GetFund(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.Store.GetFund(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get fund", err)
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "Fund not found", nil)
		return
	}

	dto, err := toFundDTO(*record)
	if err != nil {
		h.log.Error().Err(err).Str("fund_id", id).Msg("Stored fund terms are unreadable")
		writeError(w, http.StatusInternalServerError, "Stored fund terms are unreadable", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// DeleteFund removes fund terms. Runs referencing the fund are kept.
func (h *Handler) DeleteFund(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := h.Store.DeleteFund(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete fund", err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Fund not found", nil)
		return
	}

	h.mu.Lock()
	delete(h.funds, id)
	h.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// CompareFund compares both regimes using stored terms.
func (h *Handler) CompareFund(w http.ResponseWriter, r *http.Request) {
	fund, err := h.fund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to load fund", err)
		return
	}

	h.writeComparison(w, r, fund.Parameters, fund.ID, map[string]string{"fund_id": fund.ID})
}

// FundSeries returns the series for stored terms.
// Query: accrual (defaults to the fund's), periods (defaults to the fund's).
func (h *Handler) FundSeries(w http.ResponseWriter, r *http.Request) {
	fund, err := h.fund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to load fund", err)
		return
	}

	accrual := fund.Accrual
	if v := r.URL.Query().Get("accrual"); v != "" {
		if accrual, err = waterfall.ParseAccrual(v); err != nil {
			writeDomainError(w, "Invalid accrual", err)
			return
		}
	}

	periodCount := 0
	if v := r.URL.Query().Get("periods"); v != "" {
		if periodCount, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid periods", err)
			return
		}
		if periodCount <= 0 {
			writeDomainError(w, "Invalid periods", waterfall.ValidatePeriodCount(periodCount, MaxSeriesPeriods))
			return
		}
	}

	h.writeSeries(w, r, fund.ID, fund.Parameters, accrual, r.URL.Query().Get("regime"), periodCount)
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns recent runs without their bodies.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = min(n, MaxRunLimit)
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run, false)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRun returns one run including request and response.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(*run, true))
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.forgetFunds()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SHARED FLOWS
// =============================================================================

func (h *Handler) writeComparison(w http.ResponseWriter, r *http.Request, params waterfall.Parameters, fundID string, req any) {
	dto, err := cached(h, r.Context(), "compare", params, func() (ComparisonDTO, error) {
		return toComparisonDTO(params, waterfall.Compare(params)), nil
	})
	if err != nil {
		writeDomainError(w, "Comparison failed", err)
		return
	}
	dto.FundID = fundID

	with := waterfall.Allocate(params, waterfall.WithCatchUp)
	dto.RunID = h.recordRun(r.Context(), sqlite.RunKindCompare, fundID, "", req, dto,
		with.TotalProfit, with.GPTotal, with.LPTotal)

	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) writeSeries(w http.ResponseWriter, r *http.Request, fundID string, params waterfall.Parameters, accrual waterfall.Accrual, regimeName string, periodCount int) {
	if periodCount == 0 {
		periodCount = params.Periods
	}
	if err := waterfall.ValidatePeriodCount(periodCount, MaxSeriesPeriods); err != nil {
		writeDomainError(w, "Invalid period count", err)
		return
	}

	regimes := waterfall.Regimes()
	if regimeName != "" {
		regime, err := waterfall.ParseRegime(regimeName)
		if err != nil {
			writeDomainError(w, "Invalid regime", err)
			return
		}
		regimes = []waterfall.Regime{regime}
	}

	key := struct {
		Parameters  waterfall.Parameters  `json:"parameters"`
		Accrual     waterfall.AccrualMode `json:"accrual"`
		Regimes     []waterfall.Regime    `json:"regimes"`
		PeriodCount int                   `json:"period_count"`
	}{params, accrual.Mode(), regimes, periodCount}

	dto, err := cached(h, r.Context(), "series", key, func() (SeriesDTO, error) {
		out := SeriesDTO{
			Parameters:  params,
			Accrual:     accrual.Mode(),
			PeriodCount: periodCount,
			Series:      make([]PeriodSeriesDTO, len(regimes)),
		}
		for i, regime := range regimes {
			out.Series[i] = toPeriodSeriesDTO(waterfall.AllocateSeriesWith(params, regime, periodCount, accrual))
		}
		return out, nil
	})
	if err != nil {
		writeDomainError(w, "Series failed", err)
		return
	}
	dto.FundID = fundID

	writeJSON(w, http.StatusOK, dto)
}

// recordRun stores the run and returns its ID. Failures are logged, not
// surfaced: the calculation itself succeeded.
func (h *Handler) recordRun(ctx context.Context, kind sqlite.RunKind, fundID, regime string, req, resp any, profit, gp, lp float64) string {
	run, err := sqlite.NewRun(kind, req, resp)
	if err != nil {
		h.log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to encode run")
		return ""
	}
	run.FundID = fundID
	run.Regime = regime
	run = run.WithAmounts(profit, gp, lp)

	id, err := h.Store.SaveRun(ctx, run)
	if err != nil {
		h.log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to save run")
		return ""
	}
	return id
}

func (h *Handler) saveFund(ctx context.Context, fund *factory.Fund) (*sqlite.FundRecord, error) {
	configJSON, err := h.FundFactory.Marshal(fund)
	if err != nil {
		return nil, err
	}

	if err := h.Store.SaveFund(ctx, sqlite.FundRecord{
		ID:         fund.ID,
		Name:       fund.Name,
		ConfigJSON: configJSON,
	}); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.funds[fund.ID] = fund
	h.mu.Unlock()

	record, err := h.Store.GetFund(ctx, fund.ID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("fund %s vanished after save", fund.ID)
	}
	return record, nil
}

// cached returns the response for key from the cache, or computes and
// stores it. Cache errors are logged and fall back to computing.
func cached[T any](h *Handler, ctx context.Context, kind string, key any, compute func() (T, error)) (T, error) {
	if h.Cache == nil {
		return compute()
	}

	keyJSON, err := json.Marshal(key)
	if err != nil {
		return compute()
	}
	cacheKey := cache.Key([]byte(kind), keyJSON)

	if b, ok, err := h.Cache.Get(ctx, cacheKey); err != nil {
		h.log.Warn().Err(err).Str("kind", kind).Msg("Cache get failed, recomputing")
	} else if ok {
		var out T
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		h.log.Warn().Str("kind", kind).Msg("Discarding undecodable cache entry")
	}

	out, err := compute()
	if err != nil {
		return out, err
	}

	if b, err := json.Marshal(out); err == nil {
		if err := h.Cache.Set(ctx, cacheKey, b, h.CacheTTL); err != nil {
			h.log.Warn().Err(err).Str("kind", kind).Msg("Cache set failed")
		}
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func toFundDTO(rec sqlite.FundRecord) (FundDTO, error) {
	var terms factory.FundJSON
	if err := json.Unmarshal([]byte(rec.ConfigJSON), &terms); err != nil {
		return FundDTO{}, fmt.Errorf("decode terms of fund %s: %w", rec.ID, err)
	}

	return FundDTO{
		ID:        rec.ID,
		Name:      rec.Name,
		Terms:     terms,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
	}, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps waterfall errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case waterfall.IsClientError(err):
		status = http.StatusBadRequest
	case waterfall.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, message, err)
}

/*
Package sqlite provides SQLite-backed persistence for fund terms and calculation runs.

PURPOSE:
  Stores the two things the service needs to remember between requests:
  named fund terms (so a fund can be re-run without resending its terms)
  and an audit trail of calculation runs (what was asked, what was answered).

KEY TABLES:
  funds: Fund term definitions as JSON (versioned on every upsert)
  runs:  One row per calculation, request and response JSON plus the
         headline amounts as decimal strings for querying

AMOUNTS:
  Headline amounts are written as shopspring/decimal strings rounded to
  cents. TEXT keeps them exact; REAL columns would reintroduce binary
  rounding on the way back out.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/waterfall.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  run, err := sqlite.NewRun(sqlite.RunKindCompare, req, resp)
  id, err := store.SaveRun(ctx, run)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Store persists funds and runs in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Fund terms (versioned)
	CREATE TABLE IF NOT EXISTS funds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		config_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_funds_name
		ON funds(name);

	-- Calculation runs (audit trail)
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		fund_id TEXT,
		regime TEXT,
		request_json TEXT NOT NULL,
		response_json TEXT NOT NULL,
		total_profit TEXT NOT NULL DEFAULT '0',
		gp_total TEXT NOT NULL DEFAULT '0',
		lp_total TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	-- Listing newest first and retention pruning
	CREATE INDEX IF NOT EXISTS idx_runs_created_at
		ON runs(created_at);

	CREATE INDEX IF NOT EXISTS idx_runs_fund
		ON runs(fund_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// FUND STORE
// =============================================================================

// FundRecord is stored fund terms with their JSON config.
type FundRecord struct {
	ID         string
	Name       string
	ConfigJSON string
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SaveFund inserts or updates fund terms. Updates bump the version.
func (s *Store) SaveFund(ctx context.Context, fund FundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO funds (id, name, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			version = funds.version + 1,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, query, fund.ID, fund.Name, fund.ConfigJSON, now, now); err != nil {
		return fmt.Errorf("failed to save fund %s: %w", fund.ID, err)
	}
	return nil
}

// GetFund retrieves fund terms by ID. Returns (nil, nil) when not found.
func (s *Store) GetFund(ctx context.Context, id string) (*FundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f FundRecord
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, config_json, version, created_at, updated_at FROM funds WHERE id = ?",
		id,
	).Scan(&f.ID, &f.Name, &f.ConfigJSON, &f.Version, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &f, nil
}

// ListFunds returns all funds ordered by name.
func (s *Store) ListFunds(ctx context.Context) ([]FundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, config_json, version, created_at, updated_at FROM funds ORDER BY name, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var funds []FundRecord
	for rows.Next() {
		var f FundRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&f.ID, &f.Name, &f.ConfigJSON, &f.Version, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		funds = append(funds, f)
	}
	return funds, rows.Err()
}

// DeleteFund removes fund terms and reports whether a row existed.
// Runs that reference the fund are kept.
func (s *Store) DeleteFund(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM funds WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete fund %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// RUN STORE
// =============================================================================

// RunKind identifies which calculation produced a run.
type RunKind string

const (
	RunKindAllocate RunKind = "allocate"
	RunKindCompare  RunKind = "compare"
)

// RunRecord is one calculation with its request and response.
type RunRecord struct {
	ID           string
	Kind         RunKind
	FundID       string // empty for ad-hoc parameters
	Regime       string // empty when both regimes were computed
	RequestJSON  string
	ResponseJSON string
	TotalProfit  decimal.Decimal
	GPTotal      decimal.Decimal
	LPTotal      decimal.Decimal
	CreatedAt    time.Time
}

// NewRun builds a run record, encoding request and response as JSON.
// The ID and timestamp are assigned by SaveRun.
func NewRun(kind RunKind, request, response any) (RunRecord, error) {
	req, err := json.Marshal(request)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to encode run request: %w", err)
	}
	resp, err := json.Marshal(response)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to encode run response: %w", err)
	}
	return RunRecord{
		Kind:         kind,
		RequestJSON:  string(req),
		ResponseJSON: string(resp),
	}, nil
}

// WithAmounts sets the headline amounts, rounded to cents.
// Non-finite amounts (overflowing inputs) are stored as zero.
func (r RunRecord) WithAmounts(totalProfit, gpTotal, lpTotal float64) RunRecord {
	r.TotalProfit = amount(totalProfit)
	r.GPTotal = amount(gpTotal)
	r.LPTotal = amount(lpTotal)
	return r
}

func amount(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(2)
}

// SaveRun appends a run and returns its ID.
// A missing ID gets a new UUID and a zero CreatedAt becomes now.
func (s *Store) SaveRun(ctx context.Context, run RunRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO runs (id, kind, fund_id, regime, request_json, response_json,
		                  total_profit, gp_total, lp_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID, string(run.Kind), nullString(run.FundID), nullString(run.Regime),
		run.RequestJSON, run.ResponseJSON,
		run.TotalProfit.String(), run.GPTotal.String(), run.LPTotal.String(),
		run.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	return run.ID, nil
}

// GetRun retrieves a run by ID. Returns (nil, nil) when not found.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, fund_id, regime, request_json, response_json,
		       total_profit, gp_total, lp_total, created_at
		FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, fund_id, regime, request_json, response_json,
		       total_profit, gp_total, lp_total, created_at
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PruneRuns deletes runs created before the cutoff and returns how many went.
func (s *Store) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM runs WHERE created_at < ?",
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var run RunRecord
	var kind, createdAt, totalProfit, gpTotal, lpTotal string
	var fundID, regime sql.NullString

	err := row.Scan(&run.ID, &kind, &fundID, &regime, &run.RequestJSON, &run.ResponseJSON,
		&totalProfit, &gpTotal, &lpTotal, &createdAt)
	if err != nil {
		return RunRecord{}, err
	}

	run.Kind = RunKind(kind)
	run.FundID = fundID.String
	run.Regime = regime.String
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if run.TotalProfit, err = decimal.NewFromString(totalProfit); err != nil {
		return RunRecord{}, fmt.Errorf("run %s: bad total_profit %q: %w", run.ID, totalProfit, err)
	}
	if run.GPTotal, err = decimal.NewFromString(gpTotal); err != nil {
		return RunRecord{}, fmt.Errorf("run %s: bad gp_total %q: %w", run.ID, gpTotal, err)
	}
	if run.LPTotal, err = decimal.NewFromString(lpTotal); err != nil {
		return RunRecord{}, fmt.Errorf("run %s: bad lp_total %q: %w", run.ID, lpTotal, err)
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"runs", "funds"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

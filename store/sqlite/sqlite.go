/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.Store and generic.TxStore using SQLite. It is the
  reference persistence collaborator for the engine: durable storage,
  cascading deletes, and calculator validation at save time.

KEY TABLES:
  adjustables:  One row per adjustable (id, kind)
  calculators:  The owned calculator, one per adjustable, ON DELETE CASCADE
  adjustments:  Ledger entries, keyed by target (type, id)

OWNERSHIP:
  calculators is keyed by adjustable_id and cascades from adjustables, so a
  calculator can never outlive or be shared between adjustables. Saving an
  adjustable replaces its calculator row.

AMOUNT UPDATES:
  WriteAmount is a single UPDATE of amount/updated_at. There are no
  triggers on the adjustments table.

AMOUNTS:
  Stored as decimal TEXT, never REAL, so no precision is lost.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

USAGE:
  store, err := sqlite.New("./data/adjustments.db", nil)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/adjustment-engine/factory"
	"github.com/warp/adjustment-engine/generic"
)

// Store implements generic.TxStore using SQLite.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	factory *factory.CalculatorFactory
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database. A nil registry means the default one.
func New(dbPath string, reg *generic.Registry) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, factory: factory.NewCalculatorFactory(reg)}
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

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS adjustables (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustables_kind
		ON adjustables(kind);

	CREATE TABLE IF NOT EXISTS calculators (
		adjustable_id TEXT PRIMARY KEY REFERENCES adjustables(id) ON DELETE CASCADE,
		calculator_type TEXT NOT NULL,
		preferences_json TEXT
	);

	CREATE TABLE IF NOT EXISTS adjustments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		source_type TEXT,
		source_id TEXT,
		originator_type TEXT NOT NULL,
		originator_id TEXT NOT NULL,
		label TEXT NOT NULL,
		mandatory BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: a target's adjustments in creation order
	CREATE INDEX IF NOT EXISTS idx_adjustments_target
		ON adjustments(target_type, target_id, seq);

	CREATE INDEX IF NOT EXISTS idx_adjustments_originator
		ON adjustments(originator_type, originator_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ADJUSTMENT STORE (generic.AdjustmentStore interface)
// =============================================================================

func (s *Store) AppendAdjustment(ctx context.Context, adj *generic.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAdjustment(ctx, s.db, adj)
}

func appendAdjustment(ctx context.Context, db dbtx, adj *generic.Adjustment) error {
	query := `
		INSERT INTO adjustments
		(id, target_type, target_id, amount, source_type, source_id,
		 originator_type, originator_id, label, mandatory, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		adj.ID,
		adj.Target.Type,
		adj.Target.ID,
		adj.Amount.String(),
		adj.Source.Type,
		adj.Source.ID,
		adj.Originator.Type,
		adj.Originator.ID,
		adj.Label,
		adj.Mandatory,
		formatTime(adj.CreatedAt),
		formatTime(adj.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateAdjustment
		}
		return fmt.Errorf("failed to append adjustment: %w", err)
	}
	return nil
}

// WriteAmount overwrites one adjustment's amount. No other column changes.
func (s *Store) WriteAmount(ctx context.Context, id generic.AdjustmentID, amount decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAmount(ctx, s.db, id, amount, at)
}

func writeAmount(ctx context.Context, db dbtx, id generic.AdjustmentID, amount decimal.Decimal, at time.Time) error {
	res, err := db.ExecContext(ctx,
		"UPDATE adjustments SET amount = ?, updated_at = ? WHERE id = ?",
		amount.String(), formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to write amount: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to write amount: %w", err)
	}
	if n == 0 {
		return generic.ErrAdjustmentNotFound
	}
	return nil
}

func (s *Store) GetAdjustment(ctx context.Context, id generic.AdjustmentID) (*generic.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAdjustment(ctx, s.db, id)
}

func getAdjustment(ctx context.Context, db dbtx, id generic.AdjustmentID) (*generic.Adjustment, error) {
	adjs, err := queryAdjustments(ctx, db, selectAdjustments+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(adjs) == 0 {
		return nil, generic.ErrAdjustmentNotFound
	}
	return adjs[0], nil
}

func (s *Store) LoadAdjustments(ctx context.Context, target generic.Ref) ([]*generic.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadAdjustments(ctx, s.db, target)
}

func loadAdjustments(ctx context.Context, db dbtx, target generic.Ref) ([]*generic.Adjustment, error) {
	return queryAdjustments(ctx, db,
		selectAdjustments+" WHERE target_type = ? AND target_id = ? ORDER BY seq ASC",
		target.Type, target.ID)
}

const selectAdjustments = `
	SELECT id, target_type, target_id, amount, source_type, source_id,
	       originator_type, originator_id, label, mandatory, created_at, updated_at
	FROM adjustments`

func queryAdjustments(ctx context.Context, db dbtx, query string, args ...any) ([]*generic.Adjustment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	adjustments := []*generic.Adjustment{}
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

func scanAdjustment(rows *sql.Rows) (*generic.Adjustment, error) {
	var (
		adj        generic.Adjustment
		amount     string
		sourceType sql.NullString
		sourceID   sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := rows.Scan(
		&adj.ID, &adj.Target.Type, &adj.Target.ID, &amount,
		&sourceType, &sourceID, &adj.Originator.Type, &adj.Originator.ID,
		&adj.Label, &adj.Mandatory, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan adjustment: %w", err)
	}

	adj.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q on adjustment %s: %w", amount, adj.ID, err)
	}
	adj.Source = generic.Ref{Type: sourceType.String, ID: sourceID.String}
	adj.CreatedAt = parseTime(createdAt)
	adj.UpdatedAt = parseTime(updatedAt)
	return &adj, nil
}

// =============================================================================
// ADJUSTABLE STORE (generic.AdjustableStore interface)
// =============================================================================

// SaveAdjustable validates a and upserts it with its calculator.
func (s *Store) SaveAdjustable(ctx context.Context, a *generic.Adjustable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.saveAdjustable(ctx, sqlTx, a); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) saveAdjustable(ctx context.Context, db dbtx, a *generic.Adjustable) error {
	if err := generic.ValidateForSave(a); err != nil {
		return err
	}
	cj, err := s.factory.ToJSON(a.Calculator())
	if err != nil {
		return err
	}
	now := formatTime(time.Now().UTC())

	_, err = db.ExecContext(ctx, `
		INSERT INTO adjustables (id, kind, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, updated_at = excluded.updated_at
	`, a.ID, a.Kind, now, now)
	if err != nil {
		return fmt.Errorf("failed to save adjustable: %w", err)
	}

	// INSERT OR REPLACE deletes the previous row: the old calculator is discarded.
	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO calculators (adjustable_id, calculator_type, preferences_json)
		VALUES (?, ?, ?)
	`, a.ID, cj.Type, string(cj.Preferences))
	if err != nil {
		return fmt.Errorf("failed to save calculator: %w", err)
	}
	return nil
}

func (s *Store) LoadAdjustable(ctx context.Context, id generic.AdjustableID) (*generic.Adjustable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadAdjustable(ctx, s.db, id)
}

const selectAdjustables = `
	SELECT a.id, a.kind, c.calculator_type, c.preferences_json
	FROM adjustables a
	LEFT JOIN calculators c ON c.adjustable_id = a.id`

func (s *Store) loadAdjustable(ctx context.Context, db dbtx, id generic.AdjustableID) (*generic.Adjustable, error) {
	list, err := s.queryAdjustables(ctx, db, selectAdjustables+" WHERE a.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, generic.ErrAdjustableNotFound
	}
	return list[0], nil
}

// DeleteAdjustable removes the adjustable; the calculator row cascades.
func (s *Store) DeleteAdjustable(ctx context.Context, id generic.AdjustableID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteAdjustable(ctx, s.db, id)
}

func deleteAdjustable(ctx context.Context, db dbtx, id generic.AdjustableID) error {
	res, err := db.ExecContext(ctx, "DELETE FROM adjustables WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete adjustable: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete adjustable: %w", err)
	}
	if n == 0 {
		return generic.ErrAdjustableNotFound
	}
	return nil
}

func (s *Store) ListAdjustables(ctx context.Context, kind generic.AdjustableKind) ([]*generic.Adjustable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAdjustables(ctx, s.db, kind)
}

func (s *Store) listAdjustables(ctx context.Context, db dbtx, kind generic.AdjustableKind) ([]*generic.Adjustable, error) {
	if kind == "" {
		return s.queryAdjustables(ctx, db, selectAdjustables+" ORDER BY a.id")
	}
	return s.queryAdjustables(ctx, db, selectAdjustables+" WHERE a.kind = ? ORDER BY a.id", kind)
}

func (s *Store) queryAdjustables(ctx context.Context, db dbtx, query string, args ...any) ([]*generic.Adjustable, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustables: %w", err)
	}
	defer rows.Close()

	var result []*generic.Adjustable
	for rows.Next() {
		var (
			id       string
			kind     string
			calcType sql.NullString
			prefs    sql.NullString
		)
		if err := rows.Scan(&id, &kind, &calcType, &prefs); err != nil {
			return nil, fmt.Errorf("failed to scan adjustable: %w", err)
		}

		a := generic.NewAdjustable(generic.AdjustableID(id), generic.AdjustableKind(kind), s.factory.Registry)
		if calcType.Valid {
			cj := factory.CalculatorJSON{Type: calcType.String}
			if prefs.Valid {
				cj.Preferences = []byte(prefs.String)
			}
			calc, err := s.factory.FromJSON(cj)
			if err != nil {
				return nil, fmt.Errorf("failed to load calculator for %s: %w", id, err)
			}
			a.SetCalculator(calc)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every statement on the open transaction. The parent's lock
// is already held, so it must not call parent methods that lock.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) AppendAdjustment(ctx context.Context, adj *generic.Adjustment) error {
	return appendAdjustment(ctx, ts.tx, adj)
}

func (ts *txStore) WriteAmount(ctx context.Context, id generic.AdjustmentID, amount decimal.Decimal, at time.Time) error {
	return writeAmount(ctx, ts.tx, id, amount, at)
}

func (ts *txStore) GetAdjustment(ctx context.Context, id generic.AdjustmentID) (*generic.Adjustment, error) {
	return getAdjustment(ctx, ts.tx, id)
}

func (ts *txStore) LoadAdjustments(ctx context.Context, target generic.Ref) ([]*generic.Adjustment, error) {
	return loadAdjustments(ctx, ts.tx, target)
}

func (ts *txStore) SaveAdjustable(ctx context.Context, a *generic.Adjustable) error {
	return ts.parent.saveAdjustable(ctx, ts.tx, a)
}

func (ts *txStore) LoadAdjustable(ctx context.Context, id generic.AdjustableID) (*generic.Adjustable, error) {
	return ts.parent.loadAdjustable(ctx, ts.tx, id)
}

func (ts *txStore) DeleteAdjustable(ctx context.Context, id generic.AdjustableID) error {
	return deleteAdjustable(ctx, ts.tx, id)
}

func (ts *txStore) ListAdjustables(ctx context.Context, kind generic.AdjustableKind) ([]*generic.Adjustable, error) {
	return ts.parent.listAdjustables(ctx, ts.tx, kind)
}

// =============================================================================
// HELPERS
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"adjustments", "calculators", "adjustables"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// CountCalculators returns the number of calculator rows. Used to verify
// cascading deletes.
func (s *Store) CountCalculators(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calculators").Scan(&n)
	return n, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ generic.TxStore = (*Store)(nil)

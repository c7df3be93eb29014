// Package history records completed runs in a SQLite database so outcomes
// can be compared across runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/contractspec/packages/core/runner"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned by Run for an unknown id.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_us INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	p50_us      INTEGER NOT NULL,
	p95_us      INTEGER NOT NULL,
	p99_us      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	scenario    TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL,
	status      INTEGER NOT NULL,
	duration_us INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS outcomes_scenario ON outcomes (scenario);
`

// Run summarizes one recorded run.
type Run struct {
	ID        string
	Source    string
	StartedAt time.Time
	Duration  time.Duration
	Passed    int
	Failed    int
	Skipped   int
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
}

// Outcome is one scenario's recorded result.
type Outcome struct {
	RunID    string
	Scenario string
	Outcome  string
	Reason   string
	// Status is the HTTP status received, or 0 when no response arrived.
	Status   int
	Duration time.Duration
}

// Store is a run history backed by SQLite.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens or creates the history database. path may be a plain file
// path, "sqlite:path" or "sqlite://path"; ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	dsn, err := parseConnectionString(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:           db,
		queryTimeout: 30 * time.Second,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// parseConnectionString accepts sqlite:// and sqlite: prefixes as well as
// bare paths.
func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)

	switch {
	case strings.HasPrefix(connStr, "sqlite://"):
		connStr = strings.TrimPrefix(connStr, "sqlite://")
	case strings.HasPrefix(connStr, "sqlite:"):
		connStr = strings.TrimPrefix(connStr, "sqlite:")
	case strings.Contains(connStr, "://"):
		return "", fmt.Errorf("unsupported database scheme: %s", connStr[:strings.Index(connStr, "://")])
	}
	if connStr == "" {
		return "", errors.New("empty database path")
	}
	return connStr, nil
}

func (s *Store) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.queryTimeout)
}

// Record stores result and every scenario outcome in one transaction.
func (s *Store) Record(ctx context.Context, result *runner.RunResult) error {
	ctx, cancel := s.context(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, started_at, duration_us, passed, failed, skipped, p50_us, p95_us, p99_us)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.Source, result.StartedAt.UnixMicro(), result.Duration.Microseconds(),
		result.Passed, result.Failed, result.Skipped,
		result.Latency.P50.Microseconds(), result.Latency.P95.Microseconds(), result.Latency.P99.Microseconds())
	if err != nil {
		return fmt.Errorf("recording run %s: %w", result.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, position, scenario, outcome, reason, status, duration_us)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, res := range result.Results {
		status := 0
		if res.Response != nil {
			status = res.Response.StatusCode
		}
		if _, err := stmt.ExecContext(ctx, result.ID, i, res.Name, res.Outcome.String(), res.Reason, status, res.Duration.Microseconds()); err != nil {
			return fmt.Errorf("recording outcome of %s: %w", res.Name, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, source, started_at, duration_us, passed, failed, skipped, p50_us, p95_us, p99_us`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var startedAt, duration, p50, p95, p99 int64
	if err := row.Scan(&r.ID, &r.Source, &startedAt, &duration, &r.Passed, &r.Failed, &r.Skipped, &p50, &p95, &p99); err != nil {
		return nil, err
	}
	r.StartedAt = time.UnixMicro(startedAt)
	r.Duration = time.Duration(duration) * time.Microsecond
	r.P50 = time.Duration(p50) * time.Microsecond
	r.P95 = time.Duration(p95) * time.Microsecond
	r.P99 = time.Duration(p99) * time.Microsecond
	return &r, nil
}

// Runs returns up to limit runs, newest first. A limit of 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]*Run, error) {
	ctx, cancel := s.context(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Run returns the run with the given id.
func (s *Store) Run(ctx context.Context, id string) (*Run, error) {
	ctx, cancel := s.context(ctx)
	defer cancel()

	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return r, nil
}

func (s *Store) queryOutcomes(ctx context.Context, query string, args ...any) ([]*Outcome, error) {
	ctx, cancel := s.context(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []*Outcome
	for rows.Next() {
		var o Outcome
		var duration int64
		if err := rows.Scan(&o.RunID, &o.Scenario, &o.Outcome, &o.Reason, &o.Status, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		o.Duration = time.Duration(duration) * time.Microsecond
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// Outcomes returns the scenario outcomes of a run in execution order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]*Outcome, error) {
	return s.queryOutcomes(ctx,
		`SELECT run_id, scenario, outcome, reason, status, duration_us
		 FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
}

// ScenarioHistory returns the last limit outcomes of one scenario, newest
// first.
func (s *Store) ScenarioHistory(ctx context.Context, scenario string, limit int) ([]*Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryOutcomes(ctx,
		`SELECT o.run_id, o.scenario, o.outcome, o.reason, o.status, o.duration_us
		 FROM outcomes o JOIN runs r ON r.id = o.run_id
		 WHERE o.scenario = ? ORDER BY r.started_at DESC, r.rowid DESC LIMIT ?`, scenario, limit)
}

// Prune deletes all but the newest keep runs and returns how many were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	ctx, cancel := s.context(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const stale = `SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("pruning outcomes: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

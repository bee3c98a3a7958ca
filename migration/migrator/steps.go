package migrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stokaro/resmigrate/core/sqlutil"
	"github.com/stokaro/resmigrate/dbschema"
)

// ActionResult records one executed statement.
type ActionResult struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
}

// Step is one unit of a migration. Steps run strictly in order and never inside a
// transaction, so CREATE INDEX CONCURRENTLY is allowed.
type Step interface {
	// Run executes the step, recording every statement it issues through r.
	Run(ctx context.Context, r *Runner) error
	// Call describes the step as a call of the constructor with this name and
	// string arguments, used to write generated migration files.
	Call() (constructor string, args []string)
}

// Runner executes steps against a client and collects their results.
type Runner struct {
	client  dbschema.Client
	logger  *slog.Logger
	now     func() time.Time
	results []ActionResult
}

// NewRunner creates a runner for client.
func NewRunner(client dbschema.Client) *Runner {
	return &Runner{client: client, logger: slog.Default(), now: time.Now}
}

// WithLogger sets the logger for the runner
func (r *Runner) WithLogger(l *slog.Logger) *Runner {
	tmp := *r
	tmp.logger = l
	return &tmp
}

// Results returns the statements executed so far.
func (r *Runner) Results() []ActionResult {
	return r.results
}

// Exec runs a statement and records its name and duration.
func (r *Runner) Exec(ctx context.Context, sql string, args ...any) ([]dbschema.Row, error) {
	start := r.now()
	rows, err := r.client.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %q: %w", sql, err)
	}
	duration := r.now().Sub(start)
	r.results = append(r.results, ActionResult{Name: sql, DurationMs: duration.Milliseconds()})
	r.logger.Debug("Executed migration statement", "sql", sql, "durationMs", duration.Milliseconds())
	return rows, nil
}

// Check runs a read-only catalog query without recording it.
func (r *Runner) Check(ctx context.Context, sql string, args ...any) ([]dbschema.Row, error) {
	rows, err := r.client.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %q: %w", sql, err)
	}
	return rows, nil
}

// RunSteps runs steps in order. The first failure stops the run; the results of the
// statements executed before it are returned alongside the error.
func RunSteps(ctx context.Context, client dbschema.Client, steps []Step) ([]ActionResult, error) {
	return NewRunner(client).RunSteps(ctx, steps)
}

// RunSteps runs steps in order with this runner.
func (r *Runner) RunSteps(ctx context.Context, steps []Step) ([]ActionResult, error) {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return r.results, err
		}
		if err := step.Run(ctx, r); err != nil {
			return r.results, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return r.results, nil
}

type queryStep struct {
	sql string
}

// Query runs sql as is.
func Query(sql string) Step {
	return queryStep{sql: sql}
}

func (s queryStep) Run(ctx context.Context, r *Runner) error {
	_, err := r.Exec(ctx, s.sql)
	return err
}

func (s queryStep) Call() (string, []string) {
	return "Query", []string{s.sql}
}

type analyzeTableStep struct {
	table string
}

// AnalyzeTable refreshes planner statistics of a table.
func AnalyzeTable(table string) Step {
	return analyzeTableStep{table: table}
}

func (s analyzeTableStep) Run(ctx context.Context, r *Runner) error {
	_, err := r.Exec(ctx, "ANALYZE "+sqlutil.EscapeIdentifier(s.table))
	return err
}

func (s analyzeTableStep) Call() (string, []string) {
	return "AnalyzeTable", []string{s.table}
}

const indexValidityQuery = `SELECT i.indisvalid FROM pg_index i JOIN pg_class c ON c.oid = i.indexrelid JOIN pg_namespace n ON n.oid = c.relnamespace WHERE n.nspname = 'public' AND c.relname = $1`

type idempotentCreateIndexStep struct {
	indexName string
	sql       string
}

// IdempotentCreateIndex runs sql unless a valid index with that name exists. An
// invalid leftover of an interrupted concurrent build is dropped first.
func IdempotentCreateIndex(indexName, sql string) Step {
	return idempotentCreateIndexStep{indexName: indexName, sql: sql}
}

func (s idempotentCreateIndexStep) Run(ctx context.Context, r *Runner) error {
	rows, err := r.Check(ctx, indexValidityQuery, s.indexName)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		if rows[0].Bool("indisvalid") {
			return nil
		}
		r.logger.Warn("Dropping invalid index", "index", s.indexName)
		if _, err := r.Exec(ctx, "DROP INDEX IF EXISTS "+sqlutil.EscapeIdentifier(s.indexName)); err != nil {
			return err
		}
	}
	_, err = r.Exec(ctx, s.sql)
	return err
}

func (s idempotentCreateIndexStep) Call() (string, []string) {
	return "IdempotentCreateIndex", []string{s.indexName, s.sql}
}

const columnNotNullQuery = `SELECT a.attnotnull FROM pg_attribute a JOIN pg_class c ON c.oid = a.attrelid JOIN pg_namespace n ON n.oid = c.relnamespace WHERE n.nspname = 'public' AND c.relname = $1 AND a.attname = $2`

type nonBlockingAlterColumnNotNullStep struct {
	table  string
	column string
}

// NonBlockingAlterColumnNotNull sets NOT NULL without holding an exclusive lock while
// the table is scanned: a NOT VALID check constraint is added and validated, which
// lets SET NOT NULL skip the scan, and is dropped afterwards. Rows with NULL values
// make the step fail before anything is changed.
func NonBlockingAlterColumnNotNull(table, column string) Step {
	return nonBlockingAlterColumnNotNullStep{table: table, column: column}
}

func (s nonBlockingAlterColumnNotNullStep) Run(ctx context.Context, r *Runner) error {
	rows, err := r.Check(ctx, columnNotNullQuery, s.table, s.column)
	if err != nil {
		return err
	}
	if len(rows) > 0 && rows[0].Bool("attnotnull") {
		return nil
	}

	table := sqlutil.EscapeIdentifier(s.table)
	column := sqlutil.EscapeIdentifier(s.column)
	constraint := sqlutil.EscapeIdentifier(s.table + "_" + s.column + "_not_null")

	rows, err = r.Exec(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", table, column))
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		if n := rows[0].Int("count"); n > 0 {
			return fmt.Errorf("%w: Cannot alter %s.%s to NOT NULL because there are %d rows with NULL values",
				ErrNullValues, table, column, n)
		}
	}

	for _, sql := range []string{
		fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s IS NOT NULL) NOT VALID", table, constraint, column),
		fmt.Sprintf("ALTER TABLE %s VALIDATE CONSTRAINT %s", table, constraint),
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, column),
		fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, constraint),
	} {
		if _, err := r.Exec(ctx, sql); err != nil {
			return err
		}
	}
	return nil
}

func (s nonBlockingAlterColumnNotNullStep) Call() (string, []string) {
	return "NonBlockingAlterColumnNotNull", []string{s.table, s.column}
}

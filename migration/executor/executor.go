// Package executor applies migration actions directly to a live database, in process,
// instead of writing them to a migration file.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stokaro/resmigrate/dbschema"
	"github.com/stokaro/resmigrate/migration/migrator"
	"github.com/stokaro/resmigrate/migration/planner"
	difftypes "github.com/stokaro/resmigrate/migration/schemadiff/types"
)

// Executor runs actions against one client.
type Executor struct {
	client  dbschema.Client
	dialect string
	logger  *slog.Logger
}

// New creates an executor for client using the PostgreSQL planner.
func New(client dbschema.Client) *Executor {
	return &Executor{client: client, dialect: "postgres", logger: slog.Default()}
}

// WithLogger sets the logger for the executor
func (e *Executor) WithLogger(l *slog.Logger) *Executor {
	tmp := *e
	tmp.logger = l
	return &tmp
}

// Execute plans actions and runs the steps in order. It stops at the first failing
// statement and returns the results of the statements executed before it; nothing is
// rolled back.
func (e *Executor) Execute(ctx context.Context, actions []difftypes.MigrationAction) ([]migrator.ActionResult, error) {
	steps, err := planner.GenerateSteps(actions, e.dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to plan actions: %w", err)
	}

	e.logger.Info("Executing migration actions", "actions", len(actions), "steps", len(steps))
	results, err := migrator.NewRunner(e.client).WithLogger(e.logger).RunSteps(ctx, steps)
	if err != nil {
		e.logger.Error("Migration failed", "executed", len(results), "error", err)
		return results, err
	}
	e.logger.Info("Migration actions applied", "statements", len(results))
	return results, nil
}

// Execute runs actions against client with the default logger.
func Execute(ctx context.Context, client dbschema.Client, actions []difftypes.MigrationAction) ([]migrator.ActionResult, error) {
	return New(client).Execute(ctx, actions)
}

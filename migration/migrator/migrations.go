package migrator

import (
	"context"
	"errors"

	"github.com/stokaro/resmigrate/dbschema"
)

// ErrNullValues is returned by NonBlockingAlterColumnNotNull when the column still
// holds NULL values.
var ErrNullValues = errors.New("column contains NULL values")

// MigrationFunc applies one migration and reports the statements it ran.
type MigrationFunc func(ctx context.Context, client dbschema.Client) ([]ActionResult, error)

// NoopMigrationFunc is a no-op migration function
func NoopMigrationFunc(_ context.Context, _ dbschema.Client) ([]ActionResult, error) {
	return nil, nil
}

// StepsMigrationFunc returns a migration function running steps with RunSteps.
func StepsMigrationFunc(steps []Step) MigrationFunc {
	return func(ctx context.Context, client dbschema.Client) ([]ActionResult, error) {
		return RunSteps(ctx, client, steps)
	}
}

// Migration represents a database migration. Generated migrations only go up.
type Migration struct {
	Version     int
	Description string
	Up          MigrationFunc
}

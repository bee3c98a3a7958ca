// Package planner turns migration actions into dialect-specific steps.
package planner

import (
	"errors"
	"fmt"

	"github.com/stokaro/resmigrate/migration/migrator"
	"github.com/stokaro/resmigrate/migration/planner/dialects/postgres"
	difftypes "github.com/stokaro/resmigrate/migration/schemadiff/types"
)

// ErrUnsupportedDialect is returned for a dialect without a planner.
var ErrUnsupportedDialect = errors.New("unsupported dialect")

// Planner generates the steps applying actions.
type Planner interface {
	GenerateSteps(actions []difftypes.MigrationAction) ([]migrator.Step, error)
}

// GetPlanner returns the planner of dialect. The empty dialect is PostgreSQL.
func GetPlanner(dialect string) (Planner, error) {
	switch dialect {
	case postgres.DialectName, "postgresql", "":
		return postgres.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, dialect)
	}
}

// GenerateSteps plans actions for dialect.
func GenerateSteps(actions []difftypes.MigrationAction, dialect string) ([]migrator.Step, error) {
	p, err := GetPlanner(dialect)
	if err != nil {
		return nil, err
	}
	return p.GenerateSteps(actions)
}

// Package schemadiff is the diff engine: it compares the schema read from a database
// with the target schema and returns the ordered actions migrating one to the other.
package schemadiff

import (
	"fmt"
	"log/slog"

	"github.com/stokaro/resmigrate/config"
	"github.com/stokaro/resmigrate/dbschema/types"
	"github.com/stokaro/resmigrate/migration/schemadiff/internal/compare"
	difftypes "github.com/stokaro/resmigrate/migration/schemadiff/types"
)

// GenerateActions diffs start against target with the default logger. See Differ.Diff.
func GenerateActions(start, target *types.SchemaDefinition, opts *config.GenerateOptions, resourceTypes []string) ([]difftypes.MigrationAction, error) {
	return NewDiffer(opts).Diff(start, target, resourceTypes)
}

// Differ generates migration actions under one set of options.
type Differ struct {
	opts   *config.GenerateOptions
	logger *slog.Logger
}

// NewDiffer creates a differ. Nil options mean config.DefaultGenerateOptions, which
// fail on the first post-deploy action.
func NewDiffer(opts *config.GenerateOptions) *Differ {
	if opts == nil {
		opts = config.DefaultGenerateOptions()
	}
	return &Differ{opts: opts, logger: slog.Default()}
}

// WithLogger sets the logger for the differ
func (d *Differ) WithLogger(l *slog.Logger) *Differ {
	tmp := *d
	tmp.logger = l
	return &tmp
}

// Diff returns the actions turning start into target.
//
// The result is ordered as it must be applied:
//  1. CREATE_FUNCTION for every missing function
//  2. per target table, in target order, either CREATE_TABLE or its column and index
//     actions
//  3. with AnalyzeResourceTables, one ANALYZE_TABLE per resource type, whether or not
//     anything else changed
//
// Diffing a schema against itself returns no actions. Any error aborts the whole diff,
// so a partial action list is never returned.
func (d *Differ) Diff(start, target *types.SchemaDefinition, resourceTypes []string) ([]difftypes.MigrationAction, error) {
	if err := d.opts.Validate(); err != nil {
		return nil, err
	}
	policy := compare.NewPolicy(d.opts, d.logger)

	actions := compare.Functions(start, target)

	tableActions, err := compare.Tables(policy, start, target)
	if err != nil {
		return nil, fmt.Errorf("failed to diff tables: %w", err)
	}
	actions = append(actions, tableActions...)

	if d.opts.AnalyzeResourceTables {
		actions = append(actions, compare.AnalyzeTables(target, resourceTypes)...)
	}

	d.logger.Debug("Generated migration actions", "count", len(actions))
	return actions, nil
}

// Package compare holds the per-object comparisons of the diff engine. Each function
// returns the actions turning start into target for one kind of object, in the order
// they must be applied.
package compare

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"github.com/stokaro/resmigrate/config"
	dbpostgres "github.com/stokaro/resmigrate/dbschema/postgres"
	"github.com/stokaro/resmigrate/dbschema/types"
	"github.com/stokaro/resmigrate/migration/planner/dialects/postgres"
	difftypes "github.com/stokaro/resmigrate/migration/schemadiff/types"
)

// Policy carries what the comparisons of one run share: the options, the post-deploy
// guard built from them and the logger.
type Policy struct {
	Options *config.GenerateOptions
	Guard   config.PostDeployGuard
	Logger  *slog.Logger
}

// NewPolicy builds the policy for opts. Nil options mean the defaults.
func NewPolicy(opts *config.GenerateOptions, logger *slog.Logger) *Policy {
	if opts == nil {
		opts = config.DefaultGenerateOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{Options: opts, Guard: opts.Guard(logger), Logger: logger}
}

// Functions returns a CREATE_FUNCTION action for every target function missing from
// start. Functions are matched by name only; a changed body is not detected.
func Functions(start, target *types.SchemaDefinition) []difftypes.MigrationAction {
	var actions []difftypes.MigrationAction
	for _, fn := range target.Functions {
		if start.Function(fn.Name) != nil {
			continue
		}
		actions = append(actions, difftypes.MigrationAction{
			Kind:         difftypes.CreateFunction,
			FunctionName: fn.Name,
			CreateQuery:  fn.CreateQuery,
		})
	}
	return actions
}

// Tables compares every target table against start, in target order.
//
// A table missing from start becomes a single CREATE_TABLE action carrying the whole
// definition, indexes included. A table present on both sides is compared column by
// column and then index by index. Tables only present in start are logged and left
// alone: dropping a table is never generated.
func Tables(p *Policy, start, target *types.SchemaDefinition) ([]difftypes.MigrationAction, error) {
	var actions []difftypes.MigrationAction
	for i := range target.Tables {
		targetTable := &target.Tables[i]
		startTable := start.Table(targetTable.Name)
		if startTable == nil {
			if _, err := targetTable.IndexNames(); err != nil {
				return nil, err
			}
			actions = append(actions, difftypes.MigrationAction{Kind: difftypes.CreateTable, Table: targetTable})
			continue
		}

		columnActions, err := Columns(p, startTable, targetTable)
		if err != nil {
			return nil, err
		}
		actions = append(actions, columnActions...)

		indexActions, err := Indexes(p, startTable, targetTable)
		if err != nil {
			return nil, err
		}
		actions = append(actions, indexActions...)
	}

	for _, t := range start.Tables {
		if target.Table(t.Name) == nil {
			p.Logger.Warn("Existing table is not part of the target schema", "table", t.Name)
		}
	}
	return actions, nil
}

// Columns compares the columns of one table. Missing columns are added, differing
// columns are altered through the post-deploy guard and columns unknown to the
// target are dropped. Drops are not guarded.
func Columns(p *Policy, start, target *types.TableDefinition) ([]difftypes.MigrationAction, error) {
	var actions []difftypes.MigrationAction
	for _, targetCol := range target.Columns {
		startCol := start.Column(targetCol.Name)
		if startCol == nil {
			col := targetCol
			actions = append(actions, difftypes.MigrationAction{
				Kind:      difftypes.AddColumn,
				TableName: target.Name,
				Column:    &col,
			})
			continue
		}
		if types.ColumnDefinitionsEqual(target.Name, *startCol, targetCol) {
			continue
		}
		alter, err := AlterColumn(p, target.Name, *startCol, targetCol)
		if err != nil {
			return nil, err
		}
		actions = append(actions, alter...)
	}

	for _, startCol := range start.Columns {
		if target.Column(startCol.Name) == nil {
			actions = append(actions, difftypes.MigrationAction{
				Kind:       difftypes.DropColumn,
				TableName:  target.Name,
				ColumnName: startCol.Name,
			})
		}
	}
	return actions, nil
}

// AlterColumn returns the alterations of one column: default, then NOT NULL, then
// type. Each one passes the post-deploy guard on its own, so skipping leaves the
// column partially altered until a post-deploy run.
func AlterColumn(p *Policy, table string, startCol, targetCol types.ColumnDefinition) ([]difftypes.MigrationAction, error) {
	from := startCol.Resolved(table)
	to := targetCol.Resolved(table)

	var actions []difftypes.MigrationAction
	add := func(a difftypes.MigrationAction) func() {
		return func() { actions = append(actions, a) }
	}

	if from.DefaultValue != to.DefaultValue {
		action := difftypes.MigrationAction{Kind: difftypes.AlterColumnDropDefault, TableName: table, ColumnName: to.Name}
		if to.DefaultValue != "" {
			action.Kind = difftypes.AlterColumnSetDefault
			action.DefaultValue = to.DefaultValue
		}
		if err := p.Guard(fmt.Sprintf("Change default value of %s.%s", table, to.Name), add(action)); err != nil {
			return nil, err
		}
	}

	if from.NotNull != to.NotNull {
		action := difftypes.MigrationAction{
			Kind:       difftypes.AlterColumnUpdateNotNull,
			TableName:  table,
			ColumnName: to.Name,
			NotNull:    to.NotNull,
		}
		if err := p.Guard(fmt.Sprintf("Change NOT NULL of %s.%s", table, to.Name), add(action)); err != nil {
			return nil, err
		}
	}

	if from.Type != to.Type {
		action := difftypes.MigrationAction{
			Kind:       difftypes.AlterColumnType,
			TableName:  table,
			ColumnName: to.Name,
			ColumnType: to.Type,
		}
		if err := p.Guard(fmt.Sprintf("Change type of %s.%s", table, to.Name), add(action)); err != nil {
			return nil, err
		}
	}

	return actions, nil
}

// Indexes compares the indexes of one table by structure. Names only break ties
// between structurally equal indexes.
//
// The target set is the declared indexes followed by the primary key index. Each start
// index pairs with at most one target index. A target index left without a partner is
// built concurrently through the post-deploy guard. Start indexes matching no target
// index are logged, and dropped only with DropUnmatchedIndexes.
func Indexes(p *Policy, start, target *types.TableDefinition) ([]difftypes.MigrationAction, error) {
	targetIndexes := target.Indexes
	if pk, ok := target.PrimaryKeyIndex(); ok {
		targetIndexes = append(append([]types.IndexDefinition(nil), targetIndexes...), pk)
	}

	// A start definition that was not read from a database carries its primary key
	// only on the columns. A structurally equal unique index does not stand in for it.
	startIndexes := start.Indexes
	if pk, ok := start.PrimaryKeyIndex(); ok && !slices.ContainsFunc(startIndexes, func(idx types.IndexDefinition) bool {
		return isPrimaryKeyIndex(start.Name, idx)
	}) {
		startIndexes = append(append([]types.IndexDefinition(nil), startIndexes...), pk)
	}

	names := make([]string, len(targetIndexes))
	seen := make(map[string]bool, len(targetIndexes))
	for i, idx := range targetIndexes {
		name, err := idx.Name(target.Name)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", target.Name, err)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s on table %s", types.ErrDuplicateIndexName, name, target.Name)
		}
		seen[name] = true
		names[i] = name
	}

	// Structurally equal target indexes must pair with distinct start indexes. A start
	// index carrying the target's name is claimed first so that equal indexes pair up
	// by name.
	matched := make([]bool, len(startIndexes))
	pairs := make([]int, len(targetIndexes))
	for i, idx := range targetIndexes {
		pairs[i] = matchIndex(startIndexes, matched, idx, func(startIdx types.IndexDefinition) bool {
			name, ok := dbpostgres.ParseIndexName(startIdx.Indexdef)
			return ok && name == names[i]
		})
	}
	for i, idx := range targetIndexes {
		if pairs[i] < 0 {
			pairs[i] = matchIndex(startIndexes, matched, idx, func(types.IndexDefinition) bool { return true })
		}
	}

	var actions []difftypes.MigrationAction
	for i, idx := range targetIndexes {
		if pairs[i] >= 0 {
			continue
		}
		sql := postgres.BuildIndexSQL(target.Name, names[i], idx, postgres.IndexSQLOptions{Concurrent: true, IfNotExists: true})
		action := difftypes.MigrationAction{
			Kind:           difftypes.CreateIndex,
			TableName:      target.Name,
			IndexName:      names[i],
			CreateIndexSQL: sql,
		}
		if err := p.Guard(sql, func() { actions = append(actions, action) }); err != nil {
			return nil, err
		}
	}

	unmatched := lo.Filter(start.Indexes, func(_ types.IndexDefinition, i int) bool { return !matched[i] })
	for _, idx := range unmatched {
		p.Logger.Warn(fmt.Sprintf("[%s] Existing index should not exist:", target.Name), "indexdef", idx.Indexdef)
		if !p.Options.DropUnmatchedIndexes {
			continue
		}
		name, ok := dbpostgres.ParseIndexName(idx.Indexdef)
		if !ok {
			return nil, fmt.Errorf("%w: could not find index name in %q", dbpostgres.ErrMalformedIndexDefinition, idx.Indexdef)
		}
		actions = append(actions, difftypes.MigrationAction{
			Kind:      difftypes.DropIndex,
			TableName: target.Name,
			IndexName: name,
		})
	}
	return actions, nil
}

func isPrimaryKeyIndex(table string, idx types.IndexDefinition) bool {
	if idx.PrimaryKey {
		return true
	}
	name, ok := dbpostgres.ParseIndexName(idx.Indexdef)
	return ok && name == table+"_pkey"
}

// matchIndex claims the first unclaimed start index that is structurally equal to idx
// and accepted by pick. It returns its position, or -1.
func matchIndex(startIndexes []types.IndexDefinition, matched []bool, idx types.IndexDefinition, pick func(types.IndexDefinition) bool) int {
	for i, startIdx := range startIndexes {
		if !matched[i] && types.IndexDefinitionsEqual(startIdx, idx) && pick(startIdx) {
			matched[i] = true
			return i
		}
	}
	return -1
}

// AnalyzeTables returns one ANALYZE_TABLE action per resource table of target.
func AnalyzeTables(target *types.SchemaDefinition, resourceTypes []string) []difftypes.MigrationAction {
	present := lo.Filter(resourceTypes, func(rt string, _ int) bool { return target.Table(rt) != nil })
	return lo.Map(present, func(rt string, _ int) difftypes.MigrationAction {
		return difftypes.MigrationAction{Kind: difftypes.AnalyzeTable, TableName: rt}
	})
}

package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stokaro/resmigrate/core/sqlutil"
	"github.com/stokaro/resmigrate/dbschema/types"
	"github.com/stokaro/resmigrate/migration/migrator"
	difftypes "github.com/stokaro/resmigrate/migration/schemadiff/types"
)

const (
	// DialectName is the PostgreSQL dialect identifier
	DialectName = "postgres"
)

// ErrUnsupportedAction is returned for an action the planner cannot turn into steps.
var ErrUnsupportedAction = errors.New("unsupported migration action")

// IndexSQLOptions controls the optional clauses of BuildIndexSQL.
type IndexSQLOptions struct {
	Concurrent  bool
	IfNotExists bool
}

// BuildIndexSQL renders CREATE INDEX DDL for idx on table. Plain columns are quoted,
// expressions are emitted verbatim and USING is omitted for btree.
//
//	CREATE UNIQUE INDEX CONCURRENTLY IF NOT EXISTS "Coding_system_code_idx" ON "Coding" ("system", "code") WHERE ("synonymOf" IS NULL)
func BuildIndexSQL(table, indexName string, idx types.IndexDefinition, opts IndexSQLOptions) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique || idx.PrimaryKey {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if opts.Concurrent {
		b.WriteString("CONCURRENTLY ")
	}
	if opts.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(sqlutil.EscapeIdentifier(indexName))
	b.WriteString(" ON ")
	b.WriteString(sqlutil.EscapeIdentifier(table))
	b.WriteString(" ")
	if idx.IndexType != "" && idx.IndexType != types.IndexTypeBtree {
		b.WriteString("USING " + string(idx.IndexType) + " ")
	}

	cols := make([]string, len(idx.Columns))
	for i, col := range idx.Columns {
		if col.IsExpression() {
			cols[i] = col.Expression
		} else {
			cols[i] = sqlutil.EscapeIdentifier(col.Name)
		}
	}
	b.WriteString("(" + strings.Join(cols, ", ") + ")")

	if len(idx.Include) > 0 {
		include := make([]string, len(idx.Include))
		for i, col := range idx.Include {
			include[i] = sqlutil.EscapeIdentifier(col)
		}
		b.WriteString(" INCLUDE (" + strings.Join(include, ", ") + ")")
	}
	if idx.Where != "" {
		b.WriteString(" WHERE (" + idx.Where + ")")
	}
	return b.String()
}

// CreateTableQueries renders the CREATE TABLE statement of table followed by one
// CREATE INDEX per declared index. The primary key is declared inline and never gets
// its own index statement. With includeIfExists every statement is guarded with
// IF NOT EXISTS.
func CreateTableQueries(table *types.TableDefinition, includeIfExists bool) ([]string, error) {
	lines := make([]string, 0, len(table.Columns)+1)
	for _, col := range table.Columns {
		parts := []string{sqlutil.EscapeIdentifier(col.Name), col.Type}
		if col.PrimaryKey {
			parts = append(parts, "PRIMARY KEY")
		}
		if col.NotNull && !col.PrimaryKey {
			parts = append(parts, "NOT NULL")
		}
		if col.DefaultValue != "" {
			parts = append(parts, "DEFAULT "+col.DefaultValue)
		}
		lines = append(lines, "  "+strings.Join(parts, " "))
	}
	if len(table.CompositePrimaryKey) > 0 {
		pk := make([]string, len(table.CompositePrimaryKey))
		for i, col := range table.CompositePrimaryKey {
			pk[i] = sqlutil.EscapeMixedCaseIdentifier(col)
		}
		lines = append(lines, "  PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}

	create := "CREATE TABLE "
	if includeIfExists {
		create += "IF NOT EXISTS "
	}
	create += sqlutil.EscapeIdentifier(table.Name) + " (\n" + strings.Join(lines, ",\n") + "\n)"

	queries := []string{create}
	for _, idx := range table.Indexes {
		if idx.PrimaryKey {
			continue
		}
		name, err := idx.Name(table.Name)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", table.Name, err)
		}
		queries = append(queries, BuildIndexSQL(table.Name, name, idx, IndexSQLOptions{IfNotExists: includeIfExists}))
	}
	return queries, nil
}

func alterTable(table string) string {
	return "ALTER TABLE IF EXISTS " + sqlutil.EscapeIdentifier(table)
}

// AddColumnQuery renders ADD COLUMN IF NOT EXISTS for col.
func AddColumnQuery(table string, col types.ColumnDefinition) string {
	parts := []string{alterTable(table), "ADD COLUMN IF NOT EXISTS", sqlutil.EscapeIdentifier(col.Name), col.Type}
	if col.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if col.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if col.DefaultValue != "" {
		parts = append(parts, "DEFAULT "+col.DefaultValue)
	}
	return strings.Join(parts, " ")
}

// DropColumnQuery renders DROP COLUMN IF EXISTS.
func DropColumnQuery(table, column string) string {
	return alterTable(table) + " DROP COLUMN IF EXISTS " + sqlutil.EscapeIdentifier(column)
}

func alterColumn(table, column string) string {
	return alterTable(table) + " ALTER COLUMN " + sqlutil.EscapeIdentifier(column)
}

// SetDefaultQuery renders ALTER COLUMN SET DEFAULT. The default is an SQL expression.
func SetDefaultQuery(table, column, defaultValue string) string {
	return alterColumn(table, column) + " SET DEFAULT " + defaultValue
}

// DropDefaultQuery renders ALTER COLUMN DROP DEFAULT.
func DropDefaultQuery(table, column string) string {
	return alterColumn(table, column) + " DROP DEFAULT"
}

// NotNullQuery renders ALTER COLUMN SET NOT NULL or DROP NOT NULL.
func NotNullQuery(table, column string, notNull bool) string {
	if notNull {
		return alterColumn(table, column) + " SET NOT NULL"
	}
	return alterColumn(table, column) + " DROP NOT NULL"
}

// ColumnTypeQuery renders ALTER COLUMN TYPE.
func ColumnTypeQuery(table, column, columnType string) string {
	return alterColumn(table, column) + " TYPE " + columnType
}

// DropIndexQuery drops an index without blocking writes.
func DropIndexQuery(indexName string) string {
	return "DROP INDEX CONCURRENTLY IF EXISTS " + sqlutil.EscapeIdentifier(indexName)
}

// Planner turns migration actions into executable steps for PostgreSQL.
//
// Every step is safe to run outside a transaction and to re-run after a partial
// failure: columns and tables are guarded with IF [NOT] EXISTS, indexes are built
// concurrently by IdempotentCreateIndex, and NOT NULL is applied through a validated
// check constraint instead of a full table lock.
//
// The Planner is stateless and safe for concurrent use across multiple goroutines.
type Planner struct {
}

func New() *Planner {
	return &Planner{}
}

// GenerateSteps maps actions onto steps, preserving their order.
func (p *Planner) GenerateSteps(actions []difftypes.MigrationAction) ([]migrator.Step, error) {
	var steps []migrator.Step
	for i, action := range actions {
		actionSteps, err := p.stepsFor(action)
		if err != nil {
			return nil, fmt.Errorf("action %d (%s): %w", i+1, action.Kind, err)
		}
		steps = append(steps, actionSteps...)
	}
	return steps, nil
}

func (p *Planner) stepsFor(a difftypes.MigrationAction) ([]migrator.Step, error) {
	switch a.Kind {
	case difftypes.CreateFunction:
		return []migrator.Step{migrator.Query(a.CreateQuery)}, nil
	case difftypes.CreateTable:
		if a.Table == nil {
			return nil, fmt.Errorf("%w: missing table definition", ErrUnsupportedAction)
		}
		queries, err := CreateTableQueries(a.Table, true)
		if err != nil {
			return nil, err
		}
		steps := make([]migrator.Step, len(queries))
		for i, q := range queries {
			steps[i] = migrator.Query(q)
		}
		return steps, nil
	case difftypes.AddColumn:
		if a.Column == nil {
			return nil, fmt.Errorf("%w: missing column definition", ErrUnsupportedAction)
		}
		return []migrator.Step{migrator.Query(AddColumnQuery(a.TableName, *a.Column))}, nil
	case difftypes.DropColumn:
		return []migrator.Step{migrator.Query(DropColumnQuery(a.TableName, a.ColumnName))}, nil
	case difftypes.AlterColumnSetDefault:
		return []migrator.Step{migrator.Query(SetDefaultQuery(a.TableName, a.ColumnName, a.DefaultValue))}, nil
	case difftypes.AlterColumnDropDefault:
		return []migrator.Step{migrator.Query(DropDefaultQuery(a.TableName, a.ColumnName))}, nil
	case difftypes.AlterColumnUpdateNotNull:
		if a.NotNull {
			return []migrator.Step{migrator.NonBlockingAlterColumnNotNull(a.TableName, a.ColumnName)}, nil
		}
		return []migrator.Step{migrator.Query(NotNullQuery(a.TableName, a.ColumnName, false))}, nil
	case difftypes.AlterColumnType:
		return []migrator.Step{migrator.Query(ColumnTypeQuery(a.TableName, a.ColumnName, a.ColumnType))}, nil
	case difftypes.CreateIndex:
		return []migrator.Step{migrator.IdempotentCreateIndex(a.IndexName, a.CreateIndexSQL)}, nil
	case difftypes.DropIndex:
		return []migrator.Step{migrator.Query(DropIndexQuery(a.IndexName))}, nil
	case difftypes.AnalyzeTable:
		return []migrator.Step{migrator.AnalyzeTable(a.TableName)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, a.Kind)
	}
}

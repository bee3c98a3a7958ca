package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stokaro/resmigrate/core/sqlutil"
	"github.com/stokaro/resmigrate/dbschema"
	"github.com/stokaro/resmigrate/dbschema/types"
)

const (
	tableNamesQuery = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`

	columnsQuery = `
		SELECT
			a.attname,
			format_type(a.atttypid, a.atttypmod) AS data_type,
			a.attnotnull,
			COALESCE(i.indisprimary, false) AS primary_key,
			pg_get_expr(d.adbin, d.adrelid) AS default_value
		FROM pg_attribute a
		JOIN pg_class t ON t.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		LEFT JOIN pg_index i ON i.indrelid = a.attrelid AND i.indisprimary AND i.indnatts = 1 AND a.attnum = ANY(i.indkey)
		LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		WHERE n.nspname = 'public' AND t.relname = $1 AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`

	indexesQuery = `SELECT indexdef FROM pg_indexes WHERE schemaname = 'public' AND tablename = $1`

	functionQuery = `
		SELECT pg_get_functiondef(p.oid) AS pg_get_functiondef
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname = 'public' AND p.proname = $1`
)

// Reader introspects the public schema of a PostgreSQL database. Queries run one at
// a time.
type Reader struct {
	client dbschema.Client
	parser *IndexParser
	logger *slog.Logger
}

// NewReader creates a reader using DefaultSpecialCaseParsers.
func NewReader(client dbschema.Client) *Reader {
	return &Reader{
		client: client,
		parser: NewIndexParser(DefaultSpecialCaseParsers...),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the reader
func (r *Reader) WithLogger(l *slog.Logger) *Reader {
	tmp := *r
	tmp.logger = l
	return &tmp
}

// WithIndexParser replaces the index parser, e.g. to register other hooks.
func (r *Reader) WithIndexParser(p *IndexParser) *Reader {
	tmp := *r
	tmp.parser = p
	return &tmp
}

// IndexParser returns the parser used for index DDL.
func (r *Reader) IndexParser() *IndexParser {
	return r.parser
}

// ReadSchema reads every table of the public schema plus the named functions.
// Functions that do not exist are left out.
func (r *Reader) ReadSchema(ctx context.Context, functionNames []string) (*types.SchemaDefinition, error) {
	schema := &types.SchemaDefinition{}

	for _, name := range functionNames {
		fn, err := r.FunctionDefinition(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read function %s: %w", name, err)
		}
		if fn != nil {
			schema.Functions = append(schema.Functions, *fn)
		}
	}

	tableNames, err := r.TableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}

	for _, name := range tableNames {
		table, err := r.TableDefinition(ctx, name)
		if err != nil {
			return nil, err
		}
		schema.Tables = append(schema.Tables, *table)
	}

	r.logger.Debug("Read database schema", "tables", len(schema.Tables), "functions", len(schema.Functions))
	return schema, nil
}

// TableNames lists the tables of the public schema.
func (r *Reader) TableNames(ctx context.Context) ([]string, error) {
	rows, err := r.client.Query(ctx, tableNamesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.String("table_name"))
	}
	return names, nil
}

// TableDefinition reads the columns and indexes of one table.
func (r *Reader) TableDefinition(ctx context.Context, name string) (*types.TableDefinition, error) {
	columns, err := r.Columns(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns for table %s: %w", name, err)
	}
	indexes, err := r.Indexes(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes for table %s: %w", name, err)
	}
	return &types.TableDefinition{Name: name, Columns: columns, Indexes: indexes}, nil
}

// Columns reads the column metadata of a table. Only single-column primary keys mark
// a column as PrimaryKey; composite keys show up as a unique index.
func (r *Reader) Columns(ctx context.Context, table string) ([]types.ColumnDefinition, error) {
	rows, err := r.client.Query(ctx, columnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	columns := make([]types.ColumnDefinition, 0, len(rows))
	for _, row := range rows {
		columns = append(columns, types.ColumnDefinition{
			Name:         row.String("attname"),
			Type:         sqlutil.NormalizeColumnType(row.String("data_type")),
			NotNull:      row.Bool("attnotnull"),
			PrimaryKey:   row.Bool("primary_key"),
			DefaultValue: row.String("default_value"),
		})
	}
	return columns, nil
}

// Indexes reads and parses the index definitions of a table.
func (r *Reader) Indexes(ctx context.Context, table string) ([]types.IndexDefinition, error) {
	rows, err := r.client.Query(ctx, indexesQuery, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	indexes := make([]types.IndexDefinition, 0, len(rows))
	for _, row := range rows {
		idx, err := r.parser.Parse(row.String("indexdef"))
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

// FunctionDefinition returns the definition of a public function, or nil when the
// function does not exist.
func (r *Reader) FunctionDefinition(ctx context.Context, name string) (*types.FunctionDefinition, error) {
	rows, err := r.client.Query(ctx, functionQuery, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query function definition: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &types.FunctionDefinition{Name: name, CreateQuery: rows[0].String("pg_get_functiondef")}, nil
}

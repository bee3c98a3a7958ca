// Package dbschema is the database connection collaborator: a minimal query interface
// with pgx and lib/pq implementations.
package dbschema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// String returns the column as a string. NULL and missing columns yield "".
func (r Row) String(column string) string {
	switch v := r[column].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the column as a bool. NULL yields false.
func (r Row) Bool(column string) bool {
	switch v := r[column].(type) {
	case bool:
		return v
	case string:
		return v == "t" || v == "true"
	case []byte:
		return string(v) == "t" || string(v) == "true"
	default:
		return false
	}
}

// Int returns the column as an int64. NULL yields 0.
func (r Row) Int(column string) int64 {
	switch v := r[column].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		var n int64
		_, _ = fmt.Sscan(r.String(column), &n)
		return n
	}
}

// Client runs one statement at a time. Statements that return no rows (DDL, ANALYZE)
// go through Query as well and yield an empty slice.
type Client interface {
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
}

// PgxClient is a Client backed by a pgx connection pool.
type PgxClient struct {
	pool *pgxpool.Pool
}

// NewPgxClient wraps an existing pool.
func NewPgxClient(pool *pgxpool.Pool) *PgxClient {
	return &PgxClient{pool: pool}
}

// Query implements Client.
func (c *PgxClient) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	result := make([]Row, len(maps))
	for i, m := range maps {
		result[i] = Row(m)
	}
	return result, nil
}

// SQLClient is a Client backed by database/sql, used with the lib/pq driver.
type SQLClient struct {
	db *sql.DB
}

// NewSQLClient wraps an existing *sql.DB.
func NewSQLClient(db *sql.DB) *SQLClient {
	return &SQLClient{db: db}
}

// Query implements Client.
func (c *SQLClient) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

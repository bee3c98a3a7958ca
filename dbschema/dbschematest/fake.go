// Package dbschematest provides in-memory dbschema.Client fakes for tests.
package dbschematest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stokaro/resmigrate/dbschema"
)

// Query is one recorded call.
type Query struct {
	SQL  string
	Args []any
}

// Handler answers a query.
type Handler func(sql string, args []any) ([]dbschema.Row, error)

// FakeClient records every query and answers with Handler. A nil Handler returns no rows.
type FakeClient struct {
	Handler Handler

	mu      sync.Mutex
	queries []Query
}

// Query implements dbschema.Client.
func (f *FakeClient) Query(_ context.Context, sql string, args ...any) ([]dbschema.Row, error) {
	f.mu.Lock()
	f.queries = append(f.queries, Query{SQL: sql, Args: args})
	f.mu.Unlock()

	if f.Handler == nil {
		return nil, nil
	}
	return f.Handler(sql, args)
}

// Queries returns a copy of the recorded calls.
func (f *FakeClient) Queries() []Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Query(nil), f.queries...)
}

// SQL returns the recorded statements in order.
func (f *FakeClient) SQL() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	for i, q := range f.queries {
		out[i] = q.SQL
	}
	return out
}

// Table is the catalog content of one table in a Database fixture.
type Table struct {
	// Columns are rows shaped like the introspector's column query:
	// attname, data_type, attnotnull, primary_key, default_value.
	Columns []dbschema.Row
	// Indexdefs are pg_indexes.indexdef values.
	Indexdefs []string
}

// Database is a catalog fixture answering the introspection queries.
type Database struct {
	Tables    map[string]Table
	Functions map[string]string
}

// Column builds a column row.
func Column(name, dataType string, notNull bool) dbschema.Row {
	return dbschema.Row{"attname": name, "data_type": dataType, "attnotnull": notNull, "primary_key": false, "default_value": nil}
}

// NewCatalogClient returns a FakeClient that serves db to the introspector and
// fails every other statement.
func NewCatalogClient(db Database) *FakeClient {
	return &FakeClient{Handler: func(sql string, args []any) ([]dbschema.Row, error) {
		switch {
		case strings.Contains(sql, "information_schema.tables"):
			names := make([]string, 0, len(db.Tables))
			for name := range db.Tables {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([]dbschema.Row, len(names))
			for i, name := range names {
				rows[i] = dbschema.Row{"table_name": name}
			}
			return rows, nil
		case strings.Contains(sql, "pg_attribute"):
			return db.Tables[fmt.Sprint(args[0])].Columns, nil
		case strings.Contains(sql, "pg_indexes"):
			var rows []dbschema.Row
			for _, def := range db.Tables[fmt.Sprint(args[0])].Indexdefs {
				rows = append(rows, dbschema.Row{"indexdef": def})
			}
			return rows, nil
		case strings.Contains(sql, "pg_get_functiondef"):
			def, ok := db.Functions[fmt.Sprint(args[0])]
			if !ok {
				return nil, nil
			}
			return []dbschema.Row{{"pg_get_functiondef": def}}, nil
		default:
			return nil, fmt.Errorf("unexpected query: %s", sql)
		}
	}}
}

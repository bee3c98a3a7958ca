package types

import (
	"fmt"
	"slices"
	"strings"

	"github.com/stokaro/resmigrate/core/sqlutil"
)

var serialColumnTypes = map[string]string{
	"SMALLSERIAL": "SMALLINT",
	"SERIAL":      "INTEGER",
	"BIGSERIAL":   "BIGINT",
}

// desugarColumn rewrites a SERIAL column into what PostgreSQL reports for it: the
// integer type, NOT NULL and a nextval() default on the implicit sequence.
func desugarColumn(table string, col ColumnDefinition) ColumnDefinition {
	intType, ok := serialColumnTypes[strings.ToUpper(col.Type)]
	if !ok {
		return col
	}
	col.Type = intType
	col.NotNull = true
	seq := fmt.Sprintf("%s_%s_seq", table, col.Name)
	col.DefaultValue = fmt.Sprintf("nextval('%s'::regclass)", sqlutil.EscapeIdentifier(seq))
	return col
}

// ColumnDefinitionsEqual compares two columns of the given table after desugaring
// SERIAL types.
func ColumnDefinitionsEqual(table string, a, b ColumnDefinition) bool {
	return desugarColumn(table, a) == desugarColumn(table, b)
}

// IndexDefinitionsEqual compares indexes structurally. Naming inputs (suffix,
// override, expression names) and the raw DDL are ignored, and a primary key counts
// as a unique index.
func IndexDefinitionsEqual(a, b IndexDefinition) bool {
	if a.IndexType != b.IndexType {
		return false
	}
	if (a.Unique || a.PrimaryKey) != (b.Unique || b.PrimaryKey) {
		return false
	}
	if a.Where != b.Where {
		return false
	}
	if !slices.Equal(a.Include, b.Include) {
		return false
	}
	return slices.EqualFunc(a.Columns, b.Columns, func(x, y IndexColumn) bool {
		return x.Key() == y.Key()
	})
}

// Resolved returns the column the way PostgreSQL reports it once created in table.
func (c ColumnDefinition) Resolved(table string) ColumnDefinition {
	return desugarColumn(table, c)
}

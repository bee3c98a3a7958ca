package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stokaro/resmigrate/core/sqlutil"
)

// ErrIndexNameTooLong is returned when a derived index name exceeds the PostgreSQL
// identifier limit.
var ErrIndexNameTooLong = errors.New("index name too long")

// DefaultIndexNameSuffix ends every derived index name without an explicit suffix.
const DefaultIndexNameSuffix = "idx"

// Name derives the index name for table: the override, <table>_pkey for a primary
// key, or the abbreviated table and column names joined with the suffix.
func (idx IndexDefinition) Name(table string) (string, error) {
	if idx.IndexNameOverride != "" {
		return idx.IndexNameOverride, nil
	}
	if idx.PrimaryKey {
		return table + "_pkey", nil
	}

	parts := make([]string, 0, len(idx.Columns)+2)
	parts = append(parts, sqlutil.ApplyAbbreviations(table, sqlutil.TableNameAbbreviations))
	for _, col := range idx.Columns {
		parts = append(parts, sqlutil.ApplyAbbreviations(col.Name, sqlutil.ColumnNameAbbreviations))
	}
	suffix := idx.IndexNameSuffix
	if suffix == "" {
		suffix = DefaultIndexNameSuffix
	}
	parts = append(parts, suffix)

	name := strings.Join(parts, "_")
	if len(name) > sqlutil.MaxIdentifierLength {
		return "", fmt.Errorf("%w: %s", ErrIndexNameTooLong, name)
	}
	return name, nil
}

// ErrDuplicateIndexName is returned when two indexes of a table derive the same name.
var ErrDuplicateIndexName = errors.New("duplicate index name")

// IndexNames derives the name of every index of the table, the primary key index
// included, in declaration order. Names must be unique within the table.
func (t *TableDefinition) IndexNames() ([]string, error) {
	indexes := t.Indexes
	if pk, ok := t.PrimaryKeyIndex(); ok {
		indexes = append([]IndexDefinition{pk}, indexes...)
	}
	names := make([]string, 0, len(indexes))
	seen := make(map[string]bool, len(indexes))
	for _, idx := range indexes {
		name, err := idx.Name(t.Name)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.Name, err)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s on table %s", ErrDuplicateIndexName, name, t.Name)
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

package postgres

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/stokaro/resmigrate/core/sqlutil"
	"github.com/stokaro/resmigrate/dbschema/types"
)

var (
	// ErrUnsupportedIndexType is returned for access methods other than btree, gin and gist.
	ErrUnsupportedIndexType = errors.New("unsupported index type")
	// ErrMalformedIndexDefinition is returned when the DDL does not look like CREATE INDEX.
	ErrMalformedIndexDefinition = errors.New("malformed index definition")
)

// PlaceholderColumnName names expression columns whose logical name cannot be
// recovered from the index name. Expression names do not take part in equality.
const PlaceholderColumnName = "placeholder"

var (
	indexNameRe    = regexp.MustCompile(`(?i)INDEX (?:CONCURRENTLY )?(?:IF NOT EXISTS )?"?([^"\s]+)"? ON`)
	uniqueRe       = regexp.MustCompile(`(?i)^\s*CREATE UNIQUE INDEX`)
	whereRe        = regexp.MustCompile(`(?is)\s+WHERE\s+\((.*)\)\s*$`)
	withRe         = regexp.MustCompile(`(?is)\s+WITH\s*\(([^)]*)\)\s*$`)
	includeRe      = regexp.MustCompile(`(?is)\s+INCLUDE\s*\(([^)]*)\)\s*$`)
	bodyRe         = regexp.MustCompile(`(?is)\s+ON\s+(?:ONLY\s+)?(\S+)\s+(?:USING\s+(\w+)\s*)?\((.*)\)\s*$`)
	simpleColumnRe = regexp.MustCompile(`^[\w\s"]+$`)
	quotedIdentRe  = regexp.MustCompile(`^"([^"]+)"$`)
	nameSuffixRe   = regexp.MustCompile(`_idx(_tsv)?$`)
)

// ParseIndexName extracts the index name from CREATE INDEX DDL.
func ParseIndexName(indexdef string) (string, bool) {
	m := indexNameRe.FindStringSubmatch(indexdef)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseIndexDefinition turns CREATE INDEX DDL, as printed by pg_indexes or rendered by
// the planner, into an IndexDefinition. WHERE, WITH and INCLUDE clauses are stripped
// from the end in that order; storage parameters are discarded.
func ParseIndexDefinition(indexdef string) (types.IndexDefinition, error) {
	result := types.IndexDefinition{
		Unique:   uniqueRe.MatchString(indexdef),
		Indexdef: indexdef,
	}

	rest := indexdef
	if m := whereRe.FindStringSubmatchIndex(rest); m != nil {
		result.Where = strings.TrimSpace(rest[m[2]:m[3]])
		rest = rest[:m[0]]
	}
	if m := withRe.FindStringIndex(rest); m != nil {
		rest = rest[:m[0]]
	}
	if m := includeRe.FindStringSubmatchIndex(rest); m != nil {
		for _, col := range strings.Split(rest[m[2]:m[3]], ",") {
			result.Include = append(result.Include, unquoteIdentifier(strings.TrimSpace(col)))
		}
		rest = rest[:m[0]]
	}

	body := bodyRe.FindStringSubmatch(rest)
	if body == nil {
		return types.IndexDefinition{}, fmt.Errorf("%w: %s", ErrMalformedIndexDefinition, indexdef)
	}
	tableName := unquoteIdentifier(stripSchema(body[1]))

	result.IndexType = types.IndexTypeBtree
	if body[2] != "" {
		result.IndexType = types.IndexType(strings.ToLower(body[2]))
	}
	if !result.IndexType.Valid() {
		return types.IndexDefinition{}, fmt.Errorf("%w %q: %s", ErrUnsupportedIndexType, body[2], indexdef)
	}

	expressions, err := sqlutil.ParseIndexColumns(body[3])
	if err != nil {
		return types.IndexDefinition{}, fmt.Errorf("failed to parse columns of %s: %w", indexdef, err)
	}

	var logicalNames []string
	for i, expr := range expressions {
		if simpleColumnRe.MatchString(expr) {
			result.Columns = append(result.Columns, types.Col(unquoteIdentifier(expr)))
			continue
		}
		if logicalNames == nil {
			logicalNames = columnNamesFromIndexName(indexdef, tableName)
		}
		name := PlaceholderColumnName
		if len(logicalNames) == len(expressions) {
			name = logicalNames[i]
		}
		result.Columns = append(result.Columns, types.Expr(expr, name))
	}

	return result, nil
}

// columnNamesFromIndexName reverses types.IndexDefinition.Name for indexes following
// the <table>_<columns>_idx[_tsv] convention. It returns an empty, non-nil slice when
// the name does not follow it.
func columnNamesFromIndexName(indexdef, tableName string) []string {
	indexName, ok := ParseIndexName(indexdef)
	if !ok {
		return []string{}
	}
	prefix := sqlutil.ApplyAbbreviations(tableName, sqlutil.TableNameAbbreviations) + "_"
	if !strings.HasPrefix(indexName, prefix) {
		return []string{}
	}
	middle := strings.TrimPrefix(indexName, prefix)
	loc := nameSuffixRe.FindStringIndex(middle)
	if loc == nil {
		return []string{}
	}
	names := sqlutil.SplitIndexColumnNames(middle[:loc[0]])
	for i, n := range names {
		names[i] = sqlutil.ExpandAbbreviations(n, sqlutil.ColumnNameAbbreviations)
	}
	return names
}

func unquoteIdentifier(s string) string {
	if m := quotedIdentRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

func stripSchema(s string) string {
	if strings.HasPrefix(s, "public.") {
		return strings.TrimPrefix(s, "public.")
	}
	return s
}

// Package sqlutil holds the string helpers shared by the introspector, the target
// schema builder and the DDL renderer: identifier quoting, index column parsing,
// name abbreviation and escaping of database-derived text.
package sqlutil

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/lib/pq"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EscapeIdentifier always wraps the identifier in double quotes.
func EscapeIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// EscapeMixedCaseIdentifier quotes the identifier only when it contains an uppercase
// letter. PostgreSQL folds unquoted identifiers to lower case, so this matches the way
// pg_get_indexdef and friends print column references.
func EscapeMixedCaseIdentifier(name string) string {
	if strings.IndexFunc(name, unicode.IsUpper) >= 0 {
		return pq.QuoteIdentifier(name)
	}
	return name
}

// QuotedColumnName is an alias of EscapeMixedCaseIdentifier used where the argument is
// known to be a column.
func QuotedColumnName(column string) string {
	return EscapeMixedCaseIdentifier(column)
}

// TSVectorExpression renders the full text search expression used by tsvector indexes.
func TSVectorExpression(config, column string) string {
	return fmt.Sprintf("to_tsvector('%s'::regconfig, %s)", config, QuotedColumnName(column))
}

var upper = cases.Upper(language.Und)

// NormalizeColumnType turns the output of format_type() into the spelling used by
// generated column definitions.
func NormalizeColumnType(raw string) string {
	t := upper.String(strings.TrimSpace(raw))
	return strings.ReplaceAll(t, "TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ")
}

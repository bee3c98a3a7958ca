package dbschematest

import (
	"regexp"
	"strings"

	"github.com/stokaro/resmigrate/core/sqlutil"
	"github.com/stokaro/resmigrate/dbschema"
	"github.com/stokaro/resmigrate/dbschema/types"
)

// MigratedDatabase returns the catalog of a database that was migrated to target:
// desugared columns, lower-case types as format_type reports them and the indexdefs
// pg_get_indexdef prints for the generated indexes.
func MigratedDatabase(target *types.SchemaDefinition) (Database, error) {
	db := Database{Tables: map[string]Table{}, Functions: map[string]string{}}
	for _, fn := range target.Functions {
		db.Functions[fn.Name] = fn.CreateQuery
	}
	for _, t := range target.Tables {
		var table Table
		for _, col := range t.Columns {
			resolved := col.Resolved(t.Name)
			var def any
			if resolved.DefaultValue != "" {
				def = resolved.DefaultValue
			}
			table.Columns = append(table.Columns, dbschema.Row{
				"attname":       resolved.Name,
				"data_type":     strings.ToLower(resolved.Type),
				"attnotnull":    resolved.NotNull || resolved.PrimaryKey,
				"primary_key":   resolved.PrimaryKey,
				"default_value": def,
			})
		}
		indexes := t.Indexes
		if pk, ok := t.PrimaryKeyIndex(); ok {
			indexes = append(append([]types.IndexDefinition(nil), indexes...), pk)
		}
		for _, idx := range indexes {
			name, err := idx.Name(t.Name)
			if err != nil {
				return Database{}, err
			}
			table.Indexdefs = append(table.Indexdefs, Indexdef(t.Name, name, idx))
		}
		db.Tables[t.Name] = table
	}
	return db, nil
}

// Indexdef renders idx the way pg_get_indexdef prints it: schema-qualified table,
// explicit access method and identifiers quoted only where PostgreSQL requires it.
func Indexdef(table, name string, idx types.IndexDefinition) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique || idx.PrimaryKey {
		b.WriteString("UNIQUE ")
	}
	indexType := idx.IndexType
	if indexType == "" {
		indexType = types.IndexTypeBtree
	}
	b.WriteString("INDEX " + quoteIdent(name) + " ON public." + quoteIdent(table) + " USING " + string(indexType) + " (")
	for i, col := range idx.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if col.IsExpression() {
			b.WriteString(col.Expression)
		} else {
			b.WriteString(quoteIdent(col.Name))
		}
	}
	b.WriteString(")")
	if len(idx.Include) > 0 {
		include := make([]string, len(idx.Include))
		for i, col := range idx.Include {
			include[i] = quoteIdent(col)
		}
		b.WriteString(" INCLUDE (" + strings.Join(include, ", ") + ")")
	}
	if idx.Where != "" {
		b.WriteString(" WHERE (" + idx.Where + ")")
	}
	return b.String()
}

var plainIdentRe = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)

// reservedWords are the keywords quote_ident always quotes.
var reservedWords = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true, "array": true,
	"as": true, "asc": true, "both": true, "case": true, "cast": true, "check": true,
	"collate": true, "column": true, "constraint": true, "create": true, "default": true,
	"desc": true, "distinct": true, "do": true, "else": true, "end": true, "except": true,
	"false": true, "fetch": true, "for": true, "foreign": true, "from": true, "grant": true,
	"group": true, "having": true, "in": true, "intersect": true, "into": true, "is": true,
	"limit": true, "not": true, "null": true, "offset": true, "on": true, "only": true,
	"or": true, "order": true, "primary": true, "references": true, "select": true,
	"table": true, "then": true, "to": true, "true": true, "union": true, "unique": true,
	"user": true, "using": true, "when": true, "where": true, "window": true, "with": true,
}

func quoteIdent(name string) string {
	if plainIdentRe.MatchString(name) && !reservedWords[name] {
		return name
	}
	return sqlutil.EscapeIdentifier(name)
}

// NewMigratableClient serves db to the introspector like NewCatalogClient and accepts
// every other statement without returning rows.
func NewMigratableClient(db Database) *FakeClient {
	catalog := NewCatalogClient(db).Handler
	return &FakeClient{Handler: func(sql string, args []any) ([]dbschema.Row, error) {
		if isIntrospection(sql) {
			return catalog(sql, args)
		}
		return nil, nil
	}}
}

func isIntrospection(sql string) bool {
	for _, marker := range []string{"information_schema.tables", "pg_attribute", "pg_indexes", "pg_get_functiondef"} {
		if strings.Contains(sql, marker) {
			return true
		}
	}
	return false
}

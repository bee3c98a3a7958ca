// Package types holds the normalized schema model shared by the introspector and the
// target schema builder. Both sides produce the same shape so the diff engine can
// compare them structurally.
package types

// IndexType is the access method of an index.
type IndexType string

const (
	IndexTypeBtree IndexType = "btree"
	IndexTypeGin   IndexType = "gin"
	IndexTypeGist  IndexType = "gist"
)

// Valid reports whether t is one of the supported access methods.
func (t IndexType) Valid() bool {
	switch t {
	case IndexTypeBtree, IndexTypeGin, IndexTypeGist:
		return true
	default:
		return false
	}
}

// ColumnDefinition describes a table column. Type is an upper-case SQL type such as
// UUID, TEXT[] or TIMESTAMPTZ.
type ColumnDefinition struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	NotNull      bool   `json:"notNull,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty"`
	PrimaryKey   bool   `json:"primaryKey,omitempty"`
}

// IndexColumn is either a plain column (Expression empty) or an expression paired with
// a logical name. The name only feeds index name derivation.
type IndexColumn struct {
	Name       string `json:"name"`
	Expression string `json:"expression,omitempty"`
}

// Col returns a plain column reference.
func Col(name string) IndexColumn {
	return IndexColumn{Name: name}
}

// Expr returns an expression column with its logical name.
func Expr(expression, name string) IndexColumn {
	return IndexColumn{Name: name, Expression: expression}
}

// Cols is a shorthand for a list of plain column references.
func Cols(names ...string) []IndexColumn {
	cols := make([]IndexColumn, len(names))
	for i, n := range names {
		cols[i] = Col(n)
	}
	return cols
}

// IsExpression reports whether the column is an expression.
func (c IndexColumn) IsExpression() bool {
	return c.Expression != ""
}

// Key is the identity of the column for equality: the expression text or the name.
func (c IndexColumn) Key() string {
	if c.Expression != "" {
		return c.Expression
	}
	return c.Name
}

// IndexDefinition describes an index. Indexdef carries the original DDL when the
// definition was read from a database.
type IndexDefinition struct {
	Columns           []IndexColumn `json:"columns"`
	IndexType         IndexType     `json:"indexType"`
	Unique            bool          `json:"unique,omitempty"`
	Include           []string      `json:"include,omitempty"`
	Where             string        `json:"where,omitempty"`
	IndexNameSuffix   string        `json:"indexNameSuffix,omitempty"`
	IndexNameOverride string        `json:"indexNameOverride,omitempty"`
	PrimaryKey        bool          `json:"primaryKey,omitempty"`
	Indexdef          string        `json:"indexdef,omitempty"`
}

// TableDefinition describes a table with its columns and indexes. Column names are
// unique within a table.
type TableDefinition struct {
	Name                string             `json:"name"`
	Columns             []ColumnDefinition `json:"columns"`
	CompositePrimaryKey []string           `json:"compositePrimaryKey,omitempty"`
	Indexes             []IndexDefinition  `json:"indexes"`
}

// Column returns a pointer to the named column, or nil.
func (t *TableDefinition) Column(name string) *ColumnDefinition {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// PrimaryKeyIndex returns the unique btree index implied by the primary key, if any.
func (t *TableDefinition) PrimaryKeyIndex() (IndexDefinition, bool) {
	if len(t.CompositePrimaryKey) > 0 {
		return IndexDefinition{
			Columns:    Cols(t.CompositePrimaryKey...),
			IndexType:  IndexTypeBtree,
			Unique:     true,
			PrimaryKey: true,
		}, true
	}
	for _, col := range t.Columns {
		if col.PrimaryKey {
			return IndexDefinition{
				Columns:    Cols(col.Name),
				IndexType:  IndexTypeBtree,
				Unique:     true,
				PrimaryKey: true,
			}, true
		}
	}
	return IndexDefinition{}, false
}

// FunctionDefinition is a custom SQL function the schema depends on.
type FunctionDefinition struct {
	Name        string `json:"name"`
	CreateQuery string `json:"createQuery"`
}

// SchemaDefinition is the unit of comparison: every table and function of a schema.
type SchemaDefinition struct {
	Tables    []TableDefinition    `json:"tables"`
	Functions []FunctionDefinition `json:"functions"`
}

// Table returns a pointer to the named table, or nil.
func (s *SchemaDefinition) Table(name string) *TableDefinition {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// Function returns a pointer to the named function, or nil.
func (s *SchemaDefinition) Function(name string) *FunctionDefinition {
	for i := range s.Functions {
		if s.Functions[i].Name == name {
			return &s.Functions[i]
		}
	}
	return nil
}

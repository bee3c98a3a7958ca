// Package fromcatalog builds the target schema from the logical catalog.
//
// Every resource type becomes four tables:
//   - <Type>: system columns plus one column (or column cluster) per search parameter
//   - <Type>_History: the version log
//   - <Type>_Token: denormalized token rows
//   - <Type>_References: outgoing reference edges
//
// followed by the shared lookup and terminology tables. The build is deterministic and
// touches no database.
package fromcatalog

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/stokaro/resmigrate/catalog"
	"github.com/stokaro/resmigrate/core/sqlutil"
	"github.com/stokaro/resmigrate/dbschema/types"
)

var (
	// ErrColumnConflict is returned when two search parameters define the same column
	// with different types.
	ErrColumnConflict = errors.New("conflicting column definition")
	// ErrOverrideTarget is returned when a manual override cannot find what it patches.
	ErrOverrideTarget = errors.New("override target not found")
	// ErrInvalidSearchParameter is returned for parameters that cannot be mapped to columns.
	ErrInvalidSearchParameter = errors.New("invalid search parameter")
)

// ignoredSearchParameters are covered by the system columns.
var ignoredSearchParameters = []string{"_id", "_lastUpdated", "_profile", "_compartment", "_source"}

// Build synthesizes the complete target schema.
func Build(cat catalog.Catalog) (*types.SchemaDefinition, error) {
	schema := &types.SchemaDefinition{Functions: TargetFunctions()}

	for _, resourceType := range cat.ResourceTypes() {
		tables, err := buildResourceTables(cat, resourceType)
		if err != nil {
			return nil, err
		}
		schema.Tables = append(schema.Tables, tables...)
	}

	schema.Tables = append(schema.Tables,
		addressTable(),
		lookupTable("ContactPoint", []string{"system", "value"}),
		lookupTable("Identifier", []string{"system", "value"}),
		humanNameTable(),
		codingTable(),
		codingPropertyTable(),
		databaseMigrationTable(),
	)

	for i := range schema.Tables {
		if _, err := schema.Tables[i].IndexNames(); err != nil {
			return nil, err
		}
	}
	return schema, nil
}

func buildResourceTables(cat catalog.Catalog, resourceType string) ([]types.TableDefinition, error) {
	main := mainTable(resourceType)
	if err := addSearchColumns(&main, cat.SearchParameters(resourceType)); err != nil {
		return nil, err
	}
	if err := applyOverrides(&main); err != nil {
		return nil, err
	}
	return []types.TableDefinition{
		main,
		historyTable(resourceType),
		tokenTable(resourceType),
		referencesTable(resourceType),
	}, nil
}

func mainTable(resourceType string) types.TableDefinition {
	t := types.TableDefinition{
		Name: resourceType,
		Columns: []types.ColumnDefinition{
			{Name: "id", Type: "UUID", PrimaryKey: true, NotNull: true},
			{Name: "content", Type: "TEXT", NotNull: true},
			{Name: "lastUpdated", Type: "TIMESTAMPTZ", NotNull: true},
			{Name: "deleted", Type: "BOOLEAN", NotNull: true, DefaultValue: "false"},
			{Name: "projectId", Type: "UUID", NotNull: true},
			{Name: "__version", Type: "INTEGER", NotNull: true},
			{Name: "_source", Type: "TEXT"},
			{Name: "_profile", Type: "TEXT[]"},
		},
		Indexes: []types.IndexDefinition{
			btree("lastUpdated"),
			btree("projectId", "lastUpdated"),
			btree("projectId"),
			btree("_source"),
			gin("_profile"),
			btree("__version"),
			{
				Columns:           types.Cols("lastUpdated", "__version"),
				IndexType:         types.IndexTypeBtree,
				Where:             "deleted = false",
				IndexNameOverride: resourceType + "_reindex_idx",
			},
		},
	}
	if resourceType != "Binary" {
		t.Columns = append(t.Columns, types.ColumnDefinition{Name: "compartments", Type: "UUID[]", NotNull: true})
		t.Indexes = append(t.Indexes, gin("compartments"))
	}
	if resourceType == "MeasureReport" {
		t.Columns = append(t.Columns, types.ColumnDefinition{Name: "period_range", Type: "TSTZRANGE"})
		t.Indexes = append(t.Indexes, types.IndexDefinition{Columns: types.Cols("period_range"), IndexType: types.IndexTypeGist})
	}
	return t
}

func historyTable(resourceType string) types.TableDefinition {
	return types.TableDefinition{
		Name: resourceType + "_History",
		Columns: []types.ColumnDefinition{
			{Name: "versionId", Type: "UUID", PrimaryKey: true, NotNull: true},
			{Name: "id", Type: "UUID", NotNull: true},
			{Name: "content", Type: "TEXT", NotNull: true},
			{Name: "lastUpdated", Type: "TIMESTAMPTZ", NotNull: true},
		},
		Indexes: []types.IndexDefinition{btree("id"), btree("lastUpdated")},
	}
}

func tokenTable(resourceType string) types.TableDefinition {
	return types.TableDefinition{
		Name: resourceType + "_Token",
		Columns: []types.ColumnDefinition{
			{Name: "resourceId", Type: "UUID", NotNull: true},
			{Name: "code", Type: "TEXT", NotNull: true},
			{Name: "system", Type: "TEXT"},
			{Name: "value", Type: "TEXT"},
		},
		Indexes: []types.IndexDefinition{
			btree("resourceId"),
			btree("code", "system", "value"),
			{
				Columns:         []types.IndexColumn{types.Expr(sqlutil.TSVectorExpression("simple", "value"), "value")},
				IndexType:       types.IndexTypeGin,
				Where:           "system = 'text'::text",
				IndexNameSuffix: "idx_tsv",
			},
		},
	}
}

func referencesTable(resourceType string) types.TableDefinition {
	return types.TableDefinition{
		Name: resourceType + "_References",
		Columns: []types.ColumnDefinition{
			{Name: "resourceId", Type: "UUID", NotNull: true},
			{Name: "targetId", Type: "UUID", NotNull: true},
			{Name: "code", Type: "TEXT", NotNull: true},
		},
		CompositePrimaryKey: []string{"resourceId", "targetId", "code"},
		Indexes: []types.IndexDefinition{
			{Columns: types.Cols("targetId", "code"), IndexType: types.IndexTypeBtree, Include: []string{"resourceId"}},
		},
	}
}

func btree(columns ...string) types.IndexDefinition {
	return types.IndexDefinition{Columns: types.Cols(columns...), IndexType: types.IndexTypeBtree}
}

func gin(columns ...string) types.IndexDefinition {
	return types.IndexDefinition{Columns: types.Cols(columns...), IndexType: types.IndexTypeGin}
}

func addSearchColumns(table *types.TableDefinition, params []catalog.SearchParameter) error {
	for _, param := range params {
		if param.Type == catalog.TypeComposite || lo.Contains(ignoredSearchParameters, param.Code) {
			continue
		}
		if !lo.Contains(param.Base, table.Name) {
			return fmt.Errorf("%w: %s: base %v does not include resource type %s",
				ErrInvalidSearchParameter, param.Label(), param.Base, table.Name)
		}

		columns, indexes, err := searchParameterColumns(param)
		if err != nil {
			return err
		}
		for _, col := range columns {
			existing := table.Column(col.Name)
			if existing == nil {
				table.Columns = append(table.Columns, col)
				continue
			}
			if !types.ColumnDefinitionsEqual(table.Name, *existing, col) {
				return fmt.Errorf("%w: Search Parameter %s attempting to define the same column on %s with conflicting types: %s vs %s",
					ErrColumnConflict, param.Label(), table.Name, existing.Type, col.Type)
			}
		}
		for _, idx := range indexes {
			_, found := lo.Find(table.Indexes, func(existing types.IndexDefinition) bool {
				return types.IndexDefinitionsEqual(existing, idx)
			})
			if !found {
				table.Indexes = append(table.Indexes, idx)
			}
		}
	}
	return nil
}

func searchParameterColumns(param catalog.SearchParameter) ([]types.ColumnDefinition, []types.IndexDefinition, error) {
	name := param.ColumnName()

	switch param.Strategy {
	case catalog.StrategyColumn:
		baseType := columnBaseType(param, name)
		col := types.ColumnDefinition{Name: name, Type: baseType}
		idx := btree(name)
		if param.Array {
			col.Type += "[]"
			idx = gin(name)
		}
		indexes := []types.IndexDefinition{idx}
		if !param.Array && (param.Code == "date" || param.Code == "sent") {
			indexes = append(indexes, btree("projectId", name))
		}
		return []types.ColumnDefinition{col}, indexes, nil

	case catalog.StrategyTokenColumn:
		if baseType := columnBaseType(param, name); baseType != "TEXT" {
			return nil, nil, fmt.Errorf("%w: %s: token columns must have TEXT column type, got %s",
				ErrInvalidSearchParameter, param.Label(), baseType)
		}
		return tokenColumns(name)

	case catalog.StrategyLookupTable:
		if param.SortColumn == "" {
			return nil, nil, nil
		}
		return []types.ColumnDefinition{{Name: param.SortColumn, Type: "TEXT"}},
			[]types.IndexDefinition{btree(param.SortColumn)}, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s: unexpected strategy %q", ErrInvalidSearchParameter, param.Label(), param.Strategy)
	}
}

func columnBaseType(param catalog.SearchParameter, columnName string) string {
	switch param.Type {
	case catalog.TypeBoolean:
		return "BOOLEAN"
	case catalog.TypeDate:
		return "DATE"
	case catalog.TypeDateTime:
		return "TIMESTAMPTZ"
	case catalog.TypeNumber, catalog.TypeQuantity:
		if columnName == "priorityOrder" {
			return "INTEGER"
		}
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// tokenColumns is the column cluster of a token-column parameter named c:
// __cSystem, __cValue and __c (system|value) arrays, the __cText array searched by
// trigram, the __cSort column, and the legacy c array.
func tokenColumns(c string) ([]types.ColumnDefinition, []types.IndexDefinition, error) {
	system := "__" + c + "System"
	value := "__" + c + "Value"
	token := "__" + c
	text := "__" + c + "Text"
	sort := "__" + c + "Sort"

	columns := []types.ColumnDefinition{
		{Name: system, Type: "TEXT[]"},
		{Name: value, Type: "TEXT[]"},
		{Name: token, Type: "UUID[]"},
		{Name: text, Type: "TEXT[]"},
		{Name: sort, Type: "TEXT"},
		{Name: c, Type: "TEXT[]"},
	}
	indexes := []types.IndexDefinition{
		gin(system),
		gin(value),
		gin(token),
		{
			Columns: []types.IndexColumn{types.Expr(
				fmt.Sprintf("%s(%s) gin_trgm_ops", TokenArrayToTextFunction, sqlutil.EscapeIdentifier(text)),
				text+"Trgm",
			)},
			IndexType: types.IndexTypeGin,
		},
		btree(sort),
		gin(c),
	}
	return columns, indexes, nil
}

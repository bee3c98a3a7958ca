package fromcatalog

import (
	"github.com/stokaro/resmigrate/core/sqlutil"
	"github.com/stokaro/resmigrate/dbschema/types"
)

// TokenArrayToTextFunction flattens a token array into one string for trigram search.
const TokenArrayToTextFunction = "token_array_to_text"

// TargetFunctions are the SQL functions the target schema depends on.
func TargetFunctions() []types.FunctionDefinition {
	return []types.FunctionDefinition{{
		Name: TokenArrayToTextFunction,
		CreateQuery: "CREATE OR REPLACE FUNCTION " + TokenArrayToTextFunction + "(arr text[])\n" +
			" RETURNS text\n" +
			" LANGUAGE sql\n" +
			" IMMUTABLE\n" +
			"AS $function$SELECT e'\\x03'||array_to_string(arr, e'\\x03')||e'\\x03'$function$",
	}}
}

// FunctionNames lists the names of TargetFunctions, for introspection.
func FunctionNames() []string {
	fns := TargetFunctions()
	names := make([]string, len(fns))
	for i, fn := range fns {
		names[i] = fn.Name
	}
	return names
}

func tsVectorIndex(column string) types.IndexDefinition {
	return types.IndexDefinition{
		Columns:         []types.IndexColumn{types.Expr(sqlutil.TSVectorExpression("simple", column), column)},
		IndexType:       types.IndexTypeGin,
		IndexNameSuffix: "idx_tsv",
	}
}

func trigramIndex(column string) types.IndexDefinition {
	return types.IndexDefinition{
		Columns:   []types.IndexColumn{types.Expr(column+" gin_trgm_ops", column+"Trgm")},
		IndexType: types.IndexTypeGin,
	}
}

// lookupTable is a shared table keyed by resourceId with one TEXT column and btree
// index per field.
func lookupTable(name string, fields []string, extra ...types.IndexDefinition) types.TableDefinition {
	t := types.TableDefinition{
		Name:    name,
		Columns: []types.ColumnDefinition{{Name: "resourceId", Type: "UUID", NotNull: true}},
		Indexes: []types.IndexDefinition{btree("resourceId")},
	}
	for _, f := range fields {
		t.Columns = append(t.Columns, types.ColumnDefinition{Name: f, Type: "TEXT"})
		t.Indexes = append(t.Indexes, btree(f))
	}
	t.Indexes = append(t.Indexes, extra...)
	return t
}

func addressTable() types.TableDefinition {
	return lookupTable("Address",
		[]string{"address", "city", "country", "postalCode", "state", "use"},
		tsVectorIndex("address"),
		tsVectorIndex("postalCode"),
		tsVectorIndex("city"),
		tsVectorIndex("use"),
		tsVectorIndex("country"),
		tsVectorIndex("state"),
	)
}

func humanNameTable() types.TableDefinition {
	return lookupTable("HumanName",
		[]string{"name", "given", "family"},
		trigramIndex("name"),
		trigramIndex("given"),
		trigramIndex("family"),
		tsVectorIndex("name"),
		tsVectorIndex("given"),
		tsVectorIndex("family"),
	)
}

func codingTable() types.TableDefinition {
	return types.TableDefinition{
		Name: "Coding",
		Columns: []types.ColumnDefinition{
			{Name: "id", Type: "BIGSERIAL", PrimaryKey: true},
			{Name: "system", Type: "UUID", NotNull: true},
			{Name: "code", Type: "TEXT", NotNull: true},
			{Name: "display", Type: "TEXT"},
			{Name: "isSynonym", Type: "BOOLEAN", NotNull: true},
			{Name: "synonymOf", Type: "BIGINT"},
		},
		Indexes: []types.IndexDefinition{
			{Columns: types.Cols("id"), IndexType: types.IndexTypeBtree, Unique: true},
			{
				Columns:         types.Cols("system", "code"),
				IndexType:       types.IndexTypeBtree,
				Unique:          true,
				Include:         []string{"id"},
				Where:           `"synonymOf" IS NULL`,
				IndexNameSuffix: "primary_idx",
			},
			{
				Columns: []types.IndexColumn{
					types.Col("system"),
					types.Col("code"),
					types.Col("display"),
					types.Expr(`COALESCE("synonymOf", ('-1'::integer)::bigint)`, "synonymOf"),
				},
				IndexType: types.IndexTypeBtree,
				Unique:    true,
			},
			{
				Columns:   []types.IndexColumn{types.Col("system"), types.Expr("display gin_trgm_ops", "displayTrgm")},
				IndexType: types.IndexTypeGin,
			},
		},
	}
}

func codingPropertyTable() types.TableDefinition {
	return types.TableDefinition{
		Name: "Coding_Property",
		Columns: []types.ColumnDefinition{
			{Name: "coding", Type: "BIGINT", NotNull: true},
			{Name: "property", Type: "BIGINT", NotNull: true},
			{Name: "target", Type: "BIGINT"},
			{Name: "value", Type: "TEXT", NotNull: true},
		},
		Indexes: []types.IndexDefinition{
			{Columns: types.Cols("target", "property", "coding"), IndexType: types.IndexTypeBtree, Where: "target IS NOT NULL"},
			{Columns: types.Cols("coding", "property"), IndexType: types.IndexTypeBtree, IndexNameSuffix: "_idx"},
			{
				Columns:         types.Cols("property", "value", "coding", "target"),
				IndexType:       types.IndexTypeBtree,
				Unique:          true,
				IndexNameSuffix: "full_idx",
			},
		},
	}
}

func databaseMigrationTable() types.TableDefinition {
	return types.TableDefinition{
		Name: "DatabaseMigration",
		Columns: []types.ColumnDefinition{
			{Name: "id", Type: "INTEGER", NotNull: true, PrimaryKey: true},
			{Name: "version", Type: "INTEGER", NotNull: true},
			{Name: "dataVersion", Type: "INTEGER", NotNull: true},
			{Name: "firstBoot", Type: "BOOLEAN", NotNull: true, DefaultValue: "false"},
		},
	}
}

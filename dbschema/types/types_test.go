package types_test

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/resmigrate/dbschema/types"
)

func TestIndexDefinitionsEqual(t *testing.T) {
	base := types.IndexDefinition{
		Columns:   []types.IndexColumn{types.Expr("to_tsvector('simple'::regconfig, name)", "name")},
		IndexType: types.IndexTypeGin,
	}

	tests := []struct {
		name     string
		other    types.IndexDefinition
		expected bool
	}{
		{
			name: "suffix and indexdef are ignored",
			other: types.IndexDefinition{
				Columns:         []types.IndexColumn{types.Expr("to_tsvector('simple'::regconfig, name)", "name")},
				IndexType:       types.IndexTypeGin,
				IndexNameSuffix: "idx_tsv",
				Indexdef:        `CREATE INDEX "HumanName_name_idx_tsv" ON public."HumanName" USING gin (to_tsvector('simple'::regconfig, name))`,
			},
			expected: true,
		},
		{
			name: "expression names are ignored",
			other: types.IndexDefinition{
				Columns:   []types.IndexColumn{types.Expr("to_tsvector('simple'::regconfig, name)", "placeholder")},
				IndexType: types.IndexTypeGin,
			},
			expected: true,
		},
		{
			name: "plain column matching expression text",
			other: types.IndexDefinition{
				Columns:   types.Cols("to_tsvector('simple'::regconfig, name)"),
				IndexType: types.IndexTypeGin,
			},
			expected: true,
		},
		{
			name: "different index type",
			other: types.IndexDefinition{
				Columns:   []types.IndexColumn{types.Expr("to_tsvector('simple'::regconfig, name)", "name")},
				IndexType: types.IndexTypeBtree,
			},
			expected: false,
		},
		{
			name: "unique differs",
			other: types.IndexDefinition{
				Columns:   []types.IndexColumn{types.Expr("to_tsvector('simple'::regconfig, name)", "name")},
				IndexType: types.IndexTypeGin,
				Unique:    true,
			},
			expected: false,
		},
		{
			name: "where differs",
			other: types.IndexDefinition{
				Columns:   []types.IndexColumn{types.Expr("to_tsvector('simple'::regconfig, name)", "name")},
				IndexType: types.IndexTypeGin,
				Where:     "deleted = false",
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(types.IndexDefinitionsEqual(base, tt.other), qt.Equals, tt.expected)
			c.Assert(types.IndexDefinitionsEqual(tt.other, base), qt.Equals, tt.expected)
		})
	}
}

func TestIndexDefinitionsEqual_PrimaryKeyIsUnique(t *testing.T) {
	c := qt.New(t)

	table := types.TableDefinition{
		Name:                "Patient_References",
		CompositePrimaryKey: []string{"resourceId", "targetId", "code"},
	}
	pk, ok := table.PrimaryKeyIndex()
	c.Assert(ok, qt.IsTrue)

	parsed := types.IndexDefinition{
		Columns:   types.Cols("resourceId", "targetId", "code"),
		IndexType: types.IndexTypeBtree,
		Unique:    true,
		Include:   []string{},
	}
	c.Assert(types.IndexDefinitionsEqual(pk, parsed), qt.IsTrue)
}

func TestColumnDefinitionsEqual(t *testing.T) {
	c := qt.New(t)

	c.Assert(types.ColumnDefinitionsEqual("Patient",
		types.ColumnDefinition{Name: "name", Type: "TEXT"},
		types.ColumnDefinition{Name: "name", Type: "TEXT", NotNull: false},
	), qt.IsTrue)

	c.Assert(types.ColumnDefinitionsEqual("Patient",
		types.ColumnDefinition{Name: "name", Type: "TEXT"},
		types.ColumnDefinition{Name: "name", Type: "TEXT", DefaultValue: "''::text"},
	), qt.IsFalse)

	serial := types.ColumnDefinition{Name: "id", Type: "BIGSERIAL", PrimaryKey: true}
	introspected := types.ColumnDefinition{
		Name:         "id",
		Type:         "BIGINT",
		NotNull:      true,
		PrimaryKey:   true,
		DefaultValue: `nextval('"Coding_id_seq"'::regclass)`,
	}
	c.Assert(types.ColumnDefinitionsEqual("Coding", serial, introspected), qt.IsTrue)
	c.Assert(types.ColumnDefinitionsEqual("Other", serial, introspected), qt.IsFalse)
}

func TestIndexName(t *testing.T) {
	tests := []struct {
		name     string
		table    string
		index    types.IndexDefinition
		expected string
	}{
		{
			name:     "single column",
			table:    "Patient",
			index:    types.IndexDefinition{Columns: types.Cols("lastUpdated")},
			expected: "Patient_lastUpdated_idx",
		},
		{
			name:     "composite with underscored column",
			table:    "Patient",
			index:    types.IndexDefinition{Columns: types.Cols("lastUpdated", "__version")},
			expected: "Patient_lastUpdated___version_idx",
		},
		{
			name:     "suffix",
			table:    "Address",
			index:    types.IndexDefinition{Columns: []types.IndexColumn{types.Expr("x", "address")}, IndexNameSuffix: "idx_tsv"},
			expected: "Address_address_idx_tsv",
		},
		{
			name:     "override",
			table:    "Patient",
			index:    types.IndexDefinition{Columns: types.Cols("lastUpdated"), IndexNameOverride: "Patient_reindex_idx"},
			expected: "Patient_reindex_idx",
		},
		{
			name:     "primary key",
			table:    "Patient",
			index:    types.IndexDefinition{Columns: types.Cols("id"), PrimaryKey: true},
			expected: "Patient_pkey",
		},
		{
			name:     "abbreviated references table",
			table:    "MedicinalProductAuthorization_References",
			index:    types.IndexDefinition{Columns: types.Cols("targetId", "code")},
			expected: "MPA_Refs_targetId_code_idx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			name, err := tt.index.Name(tt.table)
			c.Assert(err, qt.IsNil)
			c.Assert(name, qt.Equals, tt.expected)
		})
	}
}

func TestIndexName_TooLong(t *testing.T) {
	c := qt.New(t)

	column := strings.Repeat("x", 70-len("T__idx"))
	idx := types.IndexDefinition{Columns: types.Cols(column)}

	_, err := idx.Name("T")
	c.Assert(err, qt.ErrorIs, types.ErrIndexNameTooLong)
	c.Assert(err, qt.ErrorMatches, "index name too long: T_x+_idx")
}

func TestFingerprint(t *testing.T) {
	c := qt.New(t)

	a := &types.SchemaDefinition{Tables: []types.TableDefinition{{Name: "Patient", Columns: []types.ColumnDefinition{{Name: "id", Type: "UUID"}}}}}
	b := &types.SchemaDefinition{Tables: []types.TableDefinition{{Name: "Patient", Columns: []types.ColumnDefinition{{Name: "id", Type: "UUID"}}}}}
	d := &types.SchemaDefinition{Tables: []types.TableDefinition{{Name: "Patient", Columns: []types.ColumnDefinition{{Name: "id", Type: "TEXT"}}}}}

	fa, err := a.Fingerprint()
	c.Assert(err, qt.IsNil)
	fb, err := b.Fingerprint()
	c.Assert(err, qt.IsNil)
	fd, err := d.Fingerprint()
	c.Assert(err, qt.IsNil)

	c.Assert(fa, qt.HasLen, 16)
	c.Assert(fa, qt.Equals, fb)
	c.Assert(fa, qt.Not(qt.Equals), fd)
}

func TestLookups(t *testing.T) {
	c := qt.New(t)

	schema := &types.SchemaDefinition{
		Tables:    []types.TableDefinition{{Name: "Patient", Columns: []types.ColumnDefinition{{Name: "id", Type: "UUID", PrimaryKey: true}}}},
		Functions: []types.FunctionDefinition{{Name: "token_array_to_text"}},
	}

	table := schema.Table("Patient")
	c.Assert(table, qt.IsNotNil)
	c.Assert(schema.Table("Observation"), qt.IsNil)
	c.Assert(schema.Function("token_array_to_text"), qt.IsNotNil)
	c.Assert(schema.Function("missing"), qt.IsNil)

	table.Column("id").DefaultValue = "gen_random_uuid()"
	c.Assert(schema.Tables[0].Columns[0].DefaultValue, qt.Equals, "gen_random_uuid()")

	pk, ok := table.PrimaryKeyIndex()
	c.Assert(ok, qt.IsTrue)
	c.Assert(pk.Columns, qt.DeepEquals, types.Cols("id"))
}

func TestTableIndexNames(t *testing.T) {
	c := qt.New(t)

	table := types.TableDefinition{
		Name: "Patient_References",
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
	names, err := table.IndexNames()
	c.Assert(err, qt.IsNil)
	c.Assert(names, qt.DeepEquals, []string{"Patient_References_pkey", "Patient_Refs_targetId_code_idx"})

	table.Indexes = append(table.Indexes, types.IndexDefinition{Columns: types.Cols("targetId", "code"), IndexType: types.IndexTypeGin})
	_, err = table.IndexNames()
	c.Assert(err, qt.ErrorIs, types.ErrDuplicateIndexName)
	c.Assert(err, qt.ErrorMatches, `duplicate index name: Patient_Refs_targetId_code_idx on table Patient_References`)
}

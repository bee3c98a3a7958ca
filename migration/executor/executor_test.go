package executor_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/resmigrate/dbschema"
	"github.com/stokaro/resmigrate/dbschema/dbschematest"
	"github.com/stokaro/resmigrate/dbschema/types"
	"github.com/stokaro/resmigrate/migration/executor"
	difftypes "github.com/stokaro/resmigrate/migration/schemadiff/types"
)

func TestExecute(t *testing.T) {
	c := qt.New(t)

	client := &dbschematest.FakeClient{}
	actions := []difftypes.MigrationAction{
		{Kind: difftypes.AddColumn, TableName: "Patient", Column: &types.ColumnDefinition{Name: "birthdate", Type: "DATE"}},
		{Kind: difftypes.CreateIndex, TableName: "Patient", IndexName: "Patient_birthdate_idx",
			CreateIndexSQL: `CREATE INDEX CONCURRENTLY IF NOT EXISTS "Patient_birthdate_idx" ON "Patient" ("birthdate")`},
		{Kind: difftypes.AnalyzeTable, TableName: "Patient"},
	}

	results, err := executor.Execute(context.Background(), client, actions)
	c.Assert(err, qt.IsNil)

	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	c.Assert(names, qt.DeepEquals, []string{
		`ALTER TABLE IF EXISTS "Patient" ADD COLUMN IF NOT EXISTS "birthdate" DATE`,
		`CREATE INDEX CONCURRENTLY IF NOT EXISTS "Patient_birthdate_idx" ON "Patient" ("birthdate")`,
		`ANALYZE "Patient"`,
	})
	// The index validity check runs but is not reported.
	c.Assert(client.SQL(), qt.HasLen, 4)
}

func TestExecute_StopsAtFirstFailure(t *testing.T) {
	c := qt.New(t)

	boom := errors.New("relation does not exist")
	client := &dbschematest.FakeClient{Handler: func(sql string, _ []any) ([]dbschema.Row, error) {
		if strings.Contains(sql, "DROP COLUMN") {
			return nil, boom
		}
		return nil, nil
	}}
	actions := []difftypes.MigrationAction{
		{Kind: difftypes.AddColumn, TableName: "Patient", Column: &types.ColumnDefinition{Name: "a", Type: "TEXT"}},
		{Kind: difftypes.DropColumn, TableName: "Patient", ColumnName: "b"},
		{Kind: difftypes.AnalyzeTable, TableName: "Patient"},
	}

	results, err := executor.Execute(context.Background(), client, actions)
	c.Assert(err, qt.ErrorIs, boom)
	c.Assert(results, qt.HasLen, 1)
	c.Assert(client.SQL(), qt.HasLen, 2)
}

func TestExecute_UnsupportedAction(t *testing.T) {
	c := qt.New(t)

	client := &dbschematest.FakeClient{}
	_, err := executor.Execute(context.Background(), client, []difftypes.MigrationAction{{Kind: difftypes.CreateTable}})
	c.Assert(err, qt.ErrorMatches, "failed to plan actions: .*")
	c.Assert(client.SQL(), qt.HasLen, 0)
}

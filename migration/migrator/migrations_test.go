package migrator_test

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/resmigrate/dbschema/dbschematest"
	"github.com/stokaro/resmigrate/migration/migrator"
)

func TestNoopMigrationFunc(t *testing.T) {
	c := qt.New(t)

	client := &dbschematest.FakeClient{}
	results, err := migrator.NoopMigrationFunc(context.Background(), client)
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.HasLen, 0)
	c.Assert(client.SQL(), qt.HasLen, 0)
}

func TestStepsMigrationFunc(t *testing.T) {
	c := qt.New(t)

	up := migrator.StepsMigrationFunc([]migrator.Step{
		migrator.Query("SELECT 1"),
		migrator.AnalyzeTable("Patient"),
	})

	client := &dbschematest.FakeClient{}
	results, err := up(context.Background(), client)
	c.Assert(err, qt.IsNil)
	c.Assert(resultNames(results), qt.DeepEquals, []string{"SELECT 1", `ANALYZE "Patient"`})
}

package planner_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/resmigrate/migration/planner"
	difftypes "github.com/stokaro/resmigrate/migration/schemadiff/types"
)

func TestGenerateSteps(t *testing.T) {
	c := qt.New(t)

	for _, dialect := range []string{"", "postgres", "postgresql"} {
		steps, err := planner.GenerateSteps([]difftypes.MigrationAction{{Kind: difftypes.AnalyzeTable, TableName: "Patient"}}, dialect)
		c.Assert(err, qt.IsNil)
		c.Assert(steps, qt.HasLen, 1)
	}

	_, err := planner.GenerateSteps(nil, "mysql")
	c.Assert(err, qt.ErrorIs, planner.ErrUnsupportedDialect)
	c.Assert(err, qt.ErrorMatches, "unsupported dialect: mysql")
}

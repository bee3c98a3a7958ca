package migrator_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/resmigrate/dbschema"
	"github.com/stokaro/resmigrate/dbschema/dbschematest"
	"github.com/stokaro/resmigrate/migration/migrator"
)

// versionDB emulates the DatabaseMigration row.
type versionDB struct {
	version int
	client  *dbschematest.FakeClient
}

func newVersionDB(version int) *versionDB {
	db := &versionDB{version: version}
	db.client = &dbschematest.FakeClient{Handler: func(sql string, args []any) ([]dbschema.Row, error) {
		switch {
		case strings.HasPrefix(sql, `SELECT "version"`):
			return []dbschema.Row{{"version": int64(db.version)}}, nil
		case strings.HasPrefix(sql, `UPDATE "DatabaseMigration"`):
			db.version = args[0].(int)
		}
		return nil, nil
	}}
	return db
}

func TestNewMigrator(t *testing.T) {
	c := qt.New(t)

	provider := migrator.NewRegisteredMigrationProvider()
	m := migrator.NewMigrator(nil, provider)
	c.Assert(m, qt.IsNotNil)
	c.Assert(m.MigrationProvider(), qt.Equals, provider)

	m2 := m.WithLogger(slog.Default())
	c.Assert(m2, qt.Not(qt.Equals), m)
}

func TestMigrator_Initialize(t *testing.T) {
	c := qt.New(t)

	db := newVersionDB(0)
	m := migrator.NewMigrator(db.client, migrator.NewRegisteredMigrationProvider())
	c.Assert(m.Initialize(context.Background()), qt.IsNil)
	c.Assert(m.Initialize(context.Background()), qt.IsNil)

	sqls := db.client.SQL()
	c.Assert(sqls, qt.HasLen, 2)
	c.Assert(sqls[0], qt.Contains, `CREATE TABLE IF NOT EXISTS "DatabaseMigration"`)
	c.Assert(sqls[1], qt.Contains, "ON CONFLICT DO NOTHING")
}

func TestMigrator_MigrateUp(t *testing.T) {
	c := qt.New(t)

	db := newVersionDB(1)
	var applied []int
	provider := migrator.NewRegisteredMigrationProvider()
	for _, v := range []int{3, 1, 2} {
		provider.Register(&migrator.Migration{
			Version: v,
			Up: func(ctx context.Context, client dbschema.Client) ([]migrator.ActionResult, error) {
				applied = append(applied, v)
				return migrator.RunSteps(ctx, client, []migrator.Step{migrator.Query("SELECT 1")})
			},
		})
	}

	m := migrator.NewMigrator(db.client, provider)

	status, err := m.GetMigrationStatus(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.DeepEquals, &migrator.MigrationStatus{
		CurrentVersion:    1,
		PendingMigrations: []int{2, 3},
		TotalMigrations:   3,
		HasPendingChanges: true,
	})

	results, err := m.MigrateUp(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(applied, qt.DeepEquals, []int{2, 3})
	c.Assert(results, qt.HasLen, 2)
	c.Assert(db.version, qt.Equals, 3)

	pending, err := m.GetPendingMigrations(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(pending, qt.HasLen, 0)
}

func TestMigrator_MigrateTo(t *testing.T) {
	c := qt.New(t)

	db := newVersionDB(0)
	provider := migrator.NewRegisteredMigrationProvider(migration(1), migration(2), migration(3))
	m := migrator.NewMigrator(db.client, provider)

	_, err := m.MigrateTo(context.Background(), 2)
	c.Assert(err, qt.IsNil)
	c.Assert(db.version, qt.Equals, 2)
}

func TestMigrator_FailureKeepsVersion(t *testing.T) {
	c := qt.New(t)

	db := newVersionDB(0)
	boom := errors.New("boom")
	provider := migrator.NewRegisteredMigrationProvider(
		migration(1),
		&migrator.Migration{
			Version: 2,
			Up: func(context.Context, dbschema.Client) ([]migrator.ActionResult, error) {
				return []migrator.ActionResult{{Name: "SELECT 2"}}, boom
			},
		},
		migration(3),
	)
	m := migrator.NewMigrator(db.client, provider)

	results, err := m.MigrateUp(context.Background())
	c.Assert(err, qt.ErrorIs, boom)
	c.Assert(err, qt.ErrorMatches, "failed to apply migration 2: boom")
	c.Assert(results, qt.DeepEquals, []migrator.ActionResult{{Name: "SELECT 2"}})
	c.Assert(db.version, qt.Equals, 1)
}

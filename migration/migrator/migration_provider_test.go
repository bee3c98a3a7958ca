package migrator_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/resmigrate/migration/migrator"
)

func migration(version int) *migrator.Migration {
	return &migrator.Migration{
		Version:     version,
		Description: "migration",
		Up:          migrator.NoopMigrationFunc,
	}
}

func TestNewRegisteredMigrationProvider(t *testing.T) {
	c := qt.New(t)

	provider := migrator.NewRegisteredMigrationProvider()
	c.Assert(provider.Migrations(), qt.HasLen, 0)

	provider = migrator.NewRegisteredMigrationProvider(migration(1), migration(2))
	c.Assert(provider.Migrations(), qt.HasLen, 2)
}

func TestRegisteredMigrationProvider_Sorting(t *testing.T) {
	c := qt.New(t)

	provider := migrator.NewRegisteredMigrationProvider()
	provider.Register(migration(3))
	provider.Register(migration(1))
	c.Assert(provider.Migrations()[0].Version, qt.Equals, 1)

	provider.Register(migration(2))
	migrations := provider.Migrations()
	c.Assert(migrations, qt.HasLen, 3)
	c.Assert(migrations[0].Version, qt.Equals, 1)
	c.Assert(migrations[1].Version, qt.Equals, 2)
	c.Assert(migrations[2].Version, qt.Equals, 3)
}

func TestRegisteredMigrationProvider_Validate(t *testing.T) {
	c := qt.New(t)

	c.Assert(migrator.NewRegisteredMigrationProvider(migration(1), migration(2)).Validate(), qt.IsNil)

	err := migrator.NewRegisteredMigrationProvider(migration(2), migration(2)).Validate()
	c.Assert(err, qt.ErrorMatches, "duplicate migration version 2")

	err = migrator.NewRegisteredMigrationProvider(&migrator.Migration{Version: 4}).Validate()
	c.Assert(err, qt.ErrorMatches, "migration 4 has no up function")
}

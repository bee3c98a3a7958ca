package migrator

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sort"

	"github.com/stokaro/resmigrate/dbschema"
)

//go:embed base/schema.sql
var migrationsSchemaSQL string

//go:embed base/init_version.sql
var initVersionSQL string

//go:embed base/get_version.sql
var getVersionSQL string

//go:embed base/record_migration.sql
var recordMigrationSQL string

// MigrationStatus represents the current state of migrations
type MigrationStatus struct {
	CurrentVersion    int   `json:"current_version"`
	PendingMigrations []int `json:"pending_migrations"`
	TotalMigrations   int   `json:"total_migrations"`
	HasPendingChanges bool  `json:"has_pending_changes"`
}

// Migrator applies registered schema migrations and tracks the applied version in
// the single row (id 1) of the DatabaseMigration table.
type Migrator struct {
	client            dbschema.Client
	migrationProvider MigrationProvider
	initialized       bool
	logger            *slog.Logger
}

// NewMigrator creates a new migrator with the given database client
func NewMigrator(client dbschema.Client, provider MigrationProvider) *Migrator {
	return &Migrator{
		client:            client,
		migrationProvider: provider,
		logger:            slog.Default(),
	}
}

// WithLogger sets the logger for the migrator
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// Initialize creates the version table and row if they don't exist
func (m *Migrator) Initialize(ctx context.Context) error {
	if m.initialized {
		return nil
	}
	if _, err := m.client.Query(ctx, migrationsSchemaSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	if _, err := m.client.Query(ctx, initVersionSQL); err != nil {
		return fmt.Errorf("failed to initialize migration version: %w", err)
	}
	m.initialized = true
	return nil
}

// GetCurrentVersion returns the current migration version from the database
func (m *Migrator) GetCurrentVersion(ctx context.Context) (int, error) {
	if err := m.Initialize(ctx); err != nil {
		return 0, fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	rows, err := m.client.Query(ctx, getVersionSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(rows[0].Int("version")), nil
}

// GetPendingMigrations returns a list of pending migration versions
func (m *Migrator) GetPendingMigrations(ctx context.Context) ([]int, error) {
	currentVersion, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	var pending []int
	for _, migration := range m.migrationProvider.Migrations() {
		if migration.Version > currentVersion {
			pending = append(pending, migration.Version)
		}
	}

	sort.Ints(pending)
	return pending, nil
}

// GetMigrationStatus returns information about the current migration status
func (m *Migrator) GetMigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	currentVersion, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}

	pendingMigrations, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending migrations: %w", err)
	}

	return &MigrationStatus{
		CurrentVersion:    currentVersion,
		PendingMigrations: pendingMigrations,
		TotalMigrations:   len(m.migrationProvider.Migrations()),
		HasPendingChanges: len(pendingMigrations) > 0,
	}, nil
}

// MigrateUp applies every migration newer than the current version.
func (m *Migrator) MigrateUp(ctx context.Context) ([]ActionResult, error) {
	return m.MigrateTo(ctx, -1)
}

// MigrateTo applies migrations up to and including targetVersion; a negative target
// means the latest. Migrations run outside transactions and the version is recorded
// after each one, so an interrupted run resumes at the failed migration.
func (m *Migrator) MigrateTo(ctx context.Context, targetVersion int) ([]ActionResult, error) {
	currentVersion, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}

	migrations := m.migrationProvider.Migrations()
	m.logger.Info("Migrating up", "currentVersion", currentVersion, "targetVersion", targetVersion, "totalMigrations", len(migrations))

	var all []ActionResult
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			m.logger.Debug("Skipping migration", "version", migration.Version, "description", migration.Description)
			continue
		}
		if targetVersion >= 0 && migration.Version > targetVersion {
			break
		}

		m.logger.Info("Applying migration", "version", migration.Version, "description", migration.Description)

		results, err := migration.Up(ctx, m.client)
		all = append(all, results...)
		if err != nil {
			return all, fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}

		if _, err := m.client.Query(ctx, recordMigrationSQL, migration.Version); err != nil {
			return all, fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		m.logger.Info("Applied migration", "version", migration.Version, "statements", len(results))
	}

	m.logger.Info("All migrations applied successfully")
	return all, nil
}

// MigrationProvider returns the migration provider
func (m *Migrator) MigrationProvider() MigrationProvider {
	return m.migrationProvider
}

package migrate

import (
	"fmt"
	"strconv"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/resmigrate/cmd/apply"
	"github.com/stokaro/resmigrate/cmd/internal/cliutil"
	"github.com/stokaro/resmigrate/migration/migrator"
)

const (
	toFlag     = "to"
	statusFlag = "status"
)

// NewMigrateCommand returns the command running the migrations of provider, usually
// the Provider function of a generated migrations package.
func NewMigrateCommand(provider migrator.MigrationProvider) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the registered schema migrations",
		Long: `Apply the generated schema migrations compiled into this binary, in version order,
starting after the version recorded in the "DatabaseMigration" table.

Examples:
  resmigrate migrate
  resmigrate migrate --to 3
  resmigrate migrate --status`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrateCommand(cmd, provider)
		},
	}

	flags := cliutil.DatabaseFlags()
	flags[toFlag] = &cobraflags.StringFlag{
		Name:  toFlag,
		Value: "",
		Usage: "Stop after this version instead of the latest",
	}
	cobraflags.RegisterMap(migrateCmd, flags)
	migrateCmd.Flags().Bool(statusFlag, false, "Print the current version and pending migrations without migrating")
	return migrateCmd
}

func migrateCommand(cmd *cobra.Command, provider migrator.MigrationProvider) error {
	target := -1
	if to, _ := cmd.Flags().GetString(toFlag); to != "" {
		v, err := strconv.Atoi(to)
		if err != nil || v < 0 {
			return fmt.Errorf("invalid --%s version: %q", toFlag, to)
		}
		target = v
	}
	statusOnly, err := cmd.Flags().GetBool(statusFlag)
	if err != nil {
		return err
	}

	settings, err := cliutil.LoadSettings(cmd)
	if err != nil {
		return err
	}
	logger := cliutil.NewLogger(settings.LogLevel)
	conn, err := cliutil.Connect(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer conn.Close()

	m := migrator.NewMigrator(conn, provider).WithLogger(logger)
	out := cmd.OutOrStdout()

	if statusOnly {
		status, err := m.GetMigrationStatus(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Current version: %d\n", status.CurrentVersion)
		fmt.Fprintf(out, "Registered migrations: %d\n", status.TotalMigrations)
		fmt.Fprintf(out, "Pending migrations: %v\n", status.PendingMigrations)
		return nil
	}

	results, err := m.MigrateTo(cmd.Context(), target)
	apply.WriteResults(out, results)
	if err != nil {
		return err
	}
	version, err := m.GetCurrentVersion(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Database schema is at version %d\n", version)
	return nil
}

package generate

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/resmigrate/cmd/internal/cliutil"
	"github.com/stokaro/resmigrate/migration/generator"
)

const (
	outputDirFlag = "output-dir"
	packageFlag   = "package"
)

func NewGenerateCommand() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the next schema migration file",
		Long: `Compare the live database with the target schema built from the resource catalog
and write the difference as the next versioned Go migration file.

The file is named v<N>.go where N is one more than the highest version already in the
output directory, and index.go is regenerated to register it. Nothing is written when
the database is up to date.

Examples:
  resmigrate generate --db-url postgres://localhost/medplum
  resmigrate generate --output-dir ./migrations/schema --allow-post-deploy-actions`,
		RunE: generateCommand,
	}

	flags := cliutil.PlanFlags()
	flags[outputDirFlag] = &cobraflags.StringFlag{
		Name:  outputDirFlag,
		Value: "",
		Usage: "Directory holding the generated migrations",
	}
	flags[packageFlag] = &cobraflags.StringFlag{
		Name:  packageFlag,
		Value: "",
		Usage: "Go package name of the generated migrations",
	}
	cobraflags.RegisterMap(generateCmd, flags)
	cliutil.RegisterPolicyFlags(generateCmd)
	return generateCmd
}

func generateCommand(cmd *cobra.Command, _ []string) error {
	settings, err := cliutil.LoadSettings(cmd)
	if err != nil {
		return err
	}
	logger := cliutil.NewLogger(settings.LogLevel)
	opts, err := cliutil.PlanOptions(settings, logger)
	if err != nil {
		return err
	}

	conn, err := cliutil.Connect(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer conn.Close()

	file, err := generator.GenerateMigration(cmd.Context(), conn, generator.GenerateMigrationOptions{
		Options:   opts,
		OutputDir: settings.MigrationsDir,
		Package:   settings.MigrationsPackage,
	})
	if err != nil {
		return fmt.Errorf("error generating migration: %w", err)
	}

	out := cmd.OutOrStdout()
	if file == nil {
		fmt.Fprintln(out, "Database schema is up to date, no migration written")
		return nil
	}
	fmt.Fprintf(out, "Wrote %s with %d %s\n", file.Path, file.Actions, cliutil.Noun(file.Actions, "action"))
	fmt.Fprintf(out, "Updated %s\n", file.IndexPath)
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stokaro/resmigrate/cmd/apply"
	"github.com/stokaro/resmigrate/cmd/diff"
	"github.com/stokaro/resmigrate/cmd/generate"
	"github.com/stokaro/resmigrate/cmd/migrate"
	"github.com/stokaro/resmigrate/cmd/schema"
	"github.com/stokaro/resmigrate/cmd/serve"
	migrations "github.com/stokaro/resmigrate/migrations/schema"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "resmigrate",
		Short: "PostgreSQL schema migrations for FHIR resource tables",
		Long: `resmigrate derives the PostgreSQL schema of the FHIR resource tables from the
resource catalog, compares it with a live database and turns the difference into
versioned Go migrations, a dry-run report, an immediate apply or a bootstrap script.

Settings come from flags, RESMIGRATE_* environment variables and an optional config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		generate.NewGenerateCommand(),
		diff.NewDiffCommand(),
		apply.NewApplyCommand(),
		schema.NewSchemaCommand(),
		migrate.NewMigrateCommand(migrations.Provider()),
		serve.NewServeCommand(),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

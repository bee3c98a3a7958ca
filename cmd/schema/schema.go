package schema

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/resmigrate/cmd/internal/cliutil"
	"github.com/stokaro/resmigrate/migration/generator"
)

const (
	outputFlag   = "output"
	databaseFlag = "database"
)

func NewSchemaCommand() *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Write a psql script that creates the target schema from scratch",
		Long: `Write the complete target schema as a psql bootstrap script. No database
connection is needed.

With --database the script drops and recreates that database first, guarded so it
refuses to run against a database holding resources.

Examples:
  resmigrate schema --output schema.sql
  psql -f schema.sql`,
		RunE: schemaCommand,
	}

	cobraflags.RegisterMap(schemaCmd, map[string]cobraflags.Flag{
		cliutil.ConfigFlag: &cobraflags.StringFlag{
			Name:  cliutil.ConfigFlag,
			Value: "",
			Usage: "Config file (YAML, JSON or TOML)",
		},
		cliutil.CatalogFlag: &cobraflags.StringFlag{
			Name:  cliutil.CatalogFlag,
			Value: "",
			Usage: "Catalog file (YAML or JSON) replacing the built-in resource catalog",
		},
		outputFlag: &cobraflags.StringFlag{
			Name:  outputFlag,
			Value: "",
			Usage: "Path of the generated script",
		},
		databaseFlag: &cobraflags.StringFlag{
			Name:  databaseFlag,
			Value: "",
			Usage: "Database to drop and recreate at the start of the script",
		},
	})
	return schemaCmd
}

func schemaCommand(cmd *cobra.Command, _ []string) error {
	settings, err := cliutil.LoadSettings(cmd)
	if err != nil {
		return err
	}
	databaseName, err := cmd.Flags().GetString(databaseFlag)
	if err != nil {
		return err
	}
	cat, err := cliutil.Catalog(settings)
	if err != nil {
		return err
	}

	actions, err := generator.SchemaActions(cat)
	if err != nil {
		return err
	}
	if err := generator.WriteSchemaFile(settings.SchemaFile, actions, generator.SchemaScriptOptions{DatabaseName: databaseName}); err != nil {
		return fmt.Errorf("error writing schema file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", settings.SchemaFile)
	return nil
}

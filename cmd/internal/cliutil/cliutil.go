// Package cliutil holds the flag, settings and connection plumbing shared by the
// resmigrate commands.
package cliutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/go-openapi/inflect"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stokaro/resmigrate/catalog"
	"github.com/stokaro/resmigrate/config"
	"github.com/stokaro/resmigrate/dbschema"
	"github.com/stokaro/resmigrate/migration/generator"
)

// Flag names shared by several commands.
const (
	ConfigFlag      = "config"
	DatabaseURLFlag = "db-url"
	DriverFlag      = "driver"
	LogLevelFlag    = "log-level"
	CatalogFlag     = "catalog"

	DropUnmatchedIndexesFlag   = "drop-unmatched-indexes"
	SkipPostDeployActionsFlag  = "skip-post-deploy-actions"
	AllowPostDeployActionsFlag = "allow-post-deploy-actions"
	AnalyzeResourceTablesFlag  = "analyze-resource-tables"
)

// settingKeys maps a flag name to the Settings key it overrides.
var settingKeys = map[string]string{
	DatabaseURLFlag:            "database_url",
	DriverFlag:                 "driver",
	LogLevelFlag:               "log_level",
	CatalogFlag:                "catalog_file",
	DropUnmatchedIndexesFlag:   "drop_unmatched_indexes",
	SkipPostDeployActionsFlag:  "skip_post_deploy_actions",
	AllowPostDeployActionsFlag: "allow_post_deploy_actions",
	AnalyzeResourceTablesFlag:  "analyze_resource_tables",
	"output-dir":               "migrations_dir",
	"package":                  "migrations_package",
	"output":                   "schema_file",
	"listen":                   "listen_addr",
}

// DatabaseFlags returns the connection flags. Every command gets its own map since a
// cobraflags.Flag registers on one command.
func DatabaseFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		ConfigFlag: &cobraflags.StringFlag{
			Name:  ConfigFlag,
			Value: "",
			Usage: "Config file (YAML, JSON or TOML)",
		},
		DatabaseURLFlag: &cobraflags.StringFlag{
			Name:  DatabaseURLFlag,
			Value: "",
			Usage: "PostgreSQL connection URL (env RESMIGRATE_DATABASE_URL)",
		},
		DriverFlag: &cobraflags.StringFlag{
			Name:  DriverFlag,
			Value: "",
			Usage: "Database driver: pgx or pq",
		},
		LogLevelFlag: &cobraflags.StringFlag{
			Name:  LogLevelFlag,
			Value: "",
			Usage: "Log level: debug, info, warn or error",
		},
	}
}

// PlanFlags returns the catalog flag on top of DatabaseFlags.
func PlanFlags() map[string]cobraflags.Flag {
	flags := DatabaseFlags()
	flags[CatalogFlag] = &cobraflags.StringFlag{
		Name:  CatalogFlag,
		Value: "",
		Usage: "Catalog file (YAML or JSON) replacing the built-in resource catalog",
	}
	return flags
}

// RegisterPolicyFlags adds the diff policy switches to cmd.
func RegisterPolicyFlags(cmd *cobra.Command) {
	cmd.Flags().Bool(DropUnmatchedIndexesFlag, false, "Drop existing indexes that are not part of the target schema")
	cmd.Flags().Bool(SkipPostDeployActionsFlag, false, "Leave out actions that need a post-deploy migration")
	cmd.Flags().Bool(AllowPostDeployActionsFlag, false, "Include actions that need a post-deploy migration")
	cmd.Flags().Bool(AnalyzeResourceTablesFlag, false, "Finish with ANALYZE on every resource table")
}

// LoadSettings reads the settings for cmd: defaults, then the config file, then the
// environment, then every flag set on the command line.
func LoadSettings(cmd *cobra.Command) (*config.Settings, error) {
	v := config.NewViper()
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}

	var configFile string
	if f := cmd.Flags().Lookup(ConfigFlag); f != nil {
		configFile = f.Value.String()
	}
	return config.LoadSettings(v, configFile)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := settingKeys[f.Name]
		if !ok || err != nil {
			return
		}
		if !f.Changed {
			return
		}
		err = v.BindPFlag(key, f)
	})
	if err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	return nil
}

// NewLogger returns a text logger on stderr at level.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// Catalog returns the catalog named by the settings, or the built-in one.
func Catalog(s *config.Settings) (catalog.Catalog, error) {
	if s.CatalogFile == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(s.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("error loading catalog: %w", err)
	}
	return cat, nil
}

// Connect opens the configured database.
func Connect(ctx context.Context, s *config.Settings) (*dbschema.DatabaseConnection, error) {
	if err := s.RequireDatabase(); err != nil {
		return nil, err
	}
	conn, err := dbschema.Connect(ctx, s.DatabaseURL, dbschema.ConnectOptions{
		Driver:   s.Driver,
		MaxConns: s.MaxConns,
		MinConns: s.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return conn, nil
}

// PlanOptions builds the generator options from the settings.
func PlanOptions(s *config.Settings, logger *slog.Logger) (generator.Options, error) {
	cat, err := Catalog(s)
	if err != nil {
		return generator.Options{}, err
	}
	return generator.Options{
		Catalog:  cat,
		Generate: s.GenerateOptions(),
		Logger:   logger,
	}, nil
}

// Noun returns word, pluralized unless n is one.
func Noun(n int, word string) string {
	if n == 1 {
		return word
	}
	return inflect.Pluralize(word)
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. RESMIGRATE_DATABASE_URL.
const EnvPrefix = "RESMIGRATE"

// Settings are the application settings shared by the CLI and the server.
type Settings struct {
	DatabaseURL string `mapstructure:"database_url"`
	// Driver is pgx (default) or pq.
	Driver   string `mapstructure:"driver"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`

	// CatalogFile replaces the built-in catalog when set.
	CatalogFile       string `mapstructure:"catalog_file"`
	MigrationsDir     string `mapstructure:"migrations_dir"`
	MigrationsPackage string `mapstructure:"migrations_package"`
	SchemaFile        string `mapstructure:"schema_file"`

	DropUnmatchedIndexes   bool `mapstructure:"drop_unmatched_indexes"`
	SkipPostDeployActions  bool `mapstructure:"skip_post_deploy_actions"`
	AllowPostDeployActions bool `mapstructure:"allow_post_deploy_actions"`
	AnalyzeResourceTables  bool `mapstructure:"analyze_resource_tables"`

	ListenAddr string `mapstructure:"listen_addr"`
	AdminKey   string `mapstructure:"admin_key"`
	LogLevel   string `mapstructure:"log_level"`
}

var defaults = map[string]any{
	"database_url":              "",
	"driver":                    "pgx",
	"max_conns":                 4,
	"min_conns":                 1,
	"catalog_file":              "",
	"migrations_dir":            "migrations/schema",
	"migrations_package":        "schema",
	"schema_file":               "schema.sql",
	"drop_unmatched_indexes":    false,
	"skip_post_deploy_actions":  false,
	"allow_post_deploy_actions": false,
	"analyze_resource_tables":   false,
	"listen_addr":               ":8103",
	"admin_key":                 "",
	"log_level":                 "info",
}

// NewViper returns a viper instance with the defaults and environment binding used by
// LoadSettings. Callers may bind command line flags to it before loading.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// LoadSettings reads the optional config file (YAML, JSON or TOML by extension) and
// the environment into Settings.
func LoadSettings(v *viper.Viper, configFile string) (*Settings, error) {
	if v == nil {
		v = NewViper()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if err := s.GenerateOptions().Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// GenerateOptions extracts the diff options.
func (s *Settings) GenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		DropUnmatchedIndexes:   s.DropUnmatchedIndexes,
		SkipPostDeployActions:  s.SkipPostDeployActions,
		AllowPostDeployActions: s.AllowPostDeployActions,
		AnalyzeResourceTables:  s.AnalyzeResourceTables,
	}
}

// ErrDatabaseURLRequired is returned by RequireDatabase.
var ErrDatabaseURLRequired = errors.New("database URL is required (set RESMIGRATE_DATABASE_URL or --db-url)")

// RequireDatabase fails when no database URL is configured.
func (s *Settings) RequireDatabase() error {
	if s.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}
	return nil
}

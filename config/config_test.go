package config_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/resmigrate/config"
)

func TestDefaultGenerateOptions(t *testing.T) {
	c := qt.New(t)

	opts := config.DefaultGenerateOptions()
	c.Assert(opts, qt.DeepEquals, &config.GenerateOptions{})
	c.Assert(opts.Validate(), qt.IsNil)
}

func TestGuard(t *testing.T) {
	tests := []struct {
		name      string
		opts      *config.GenerateOptions
		wantAdded bool
		wantErr   string
		wantLog   string
	}{
		{
			name:    "default fails",
			opts:    config.DefaultGenerateOptions(),
			wantErr: `post-deploy migration required for: CREATE INDEX "Patient_x_idx"`,
		},
		{
			name:    "skip logs and omits",
			opts:    config.WithSkipPostDeployActions(),
			wantLog: "Skipping post-deploy migration",
		},
		{
			name:      "allow adds",
			opts:      config.WithAllowPostDeployActions(),
			wantAdded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			added := false
			err := tt.opts.Guard(logger)(`CREATE INDEX "Patient_x_idx"`, func() { added = true })
			if tt.wantErr != "" {
				c.Assert(err, qt.ErrorIs, config.ErrPostDeployRequired)
				c.Assert(err, qt.ErrorMatches, tt.wantErr)
			} else {
				c.Assert(err, qt.IsNil)
			}
			c.Assert(added, qt.Equals, tt.wantAdded)
			c.Assert(buf.String(), qt.Contains, tt.wantLog)
		})
	}
}

func TestValidate_Conflict(t *testing.T) {
	c := qt.New(t)

	opts := &config.GenerateOptions{SkipPostDeployActions: true, AllowPostDeployActions: true}
	c.Assert(opts.Validate(), qt.ErrorIs, config.ErrConflictingPostDeployOptions)
}

func TestLoadSettings_Defaults(t *testing.T) {
	c := qt.New(t)

	s, err := config.LoadSettings(nil, "")
	c.Assert(err, qt.IsNil)
	c.Assert(s.Driver, qt.Equals, "pgx")
	c.Assert(s.MigrationsDir, qt.Equals, "migrations/schema")
	c.Assert(s.ListenAddr, qt.Equals, ":8103")
	c.Assert(s.RequireDatabase(), qt.ErrorIs, config.ErrDatabaseURLRequired)
}

func TestLoadSettings_EnvAndFile(t *testing.T) {
	c := qt.New(t)

	c.Setenv("RESMIGRATE_DATABASE_URL", "postgres://localhost/medplum")
	c.Setenv("RESMIGRATE_SKIP_POST_DEPLOY_ACTIONS", "true")

	path := filepath.Join(c.TempDir(), "resmigrate.yaml")
	c.Assert(os.WriteFile(path, []byte("driver: pq\nanalyze_resource_tables: true\nmax_conns: 9\n"), 0o600), qt.IsNil)

	s, err := config.LoadSettings(config.NewViper(), path)
	c.Assert(err, qt.IsNil)
	c.Assert(s.DatabaseURL, qt.Equals, "postgres://localhost/medplum")
	c.Assert(s.Driver, qt.Equals, "pq")
	c.Assert(s.MaxConns, qt.Equals, int32(9))
	c.Assert(s.RequireDatabase(), qt.IsNil)
	c.Assert(s.GenerateOptions(), qt.DeepEquals, &config.GenerateOptions{
		SkipPostDeployActions: true,
		AnalyzeResourceTables: true,
	})
}

func TestLoadSettings_Conflict(t *testing.T) {
	c := qt.New(t)

	c.Setenv("RESMIGRATE_SKIP_POST_DEPLOY_ACTIONS", "true")
	c.Setenv("RESMIGRATE_ALLOW_POST_DEPLOY_ACTIONS", "true")

	_, err := config.LoadSettings(nil, "")
	c.Assert(err, qt.ErrorIs, config.ErrConflictingPostDeployOptions)
}

func TestLoadSettings_MissingFile(t *testing.T) {
	c := qt.New(t)

	_, err := config.LoadSettings(nil, filepath.Join(c.TempDir(), "missing.yaml"))
	c.Assert(err, qt.ErrorMatches, `failed to read config file: .*`)
}

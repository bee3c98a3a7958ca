package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/resmigrate/config"
)

func run(c *qt.C, args ...string) (string, error) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSchemaCommand(t *testing.T) {
	c := qt.New(t)

	path := filepath.Join(c.TempDir(), "schema.sql")
	out, err := run(c, "schema", "--output", path)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, "Wrote "+path+"\n")

	script, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.HasPrefix(string(script), "\\set ON_ERROR_STOP true\n"), qt.IsTrue)
	c.Assert(string(script), qt.Contains, `CREATE TABLE "Patient" (`)
}

func TestSchemaCommand_RecreatesDatabase(t *testing.T) {
	c := qt.New(t)

	path := filepath.Join(c.TempDir(), "schema.sql")
	_, err := run(c, "schema", "--output", path, "--database", "medplum_test")
	c.Assert(err, qt.IsNil)

	script, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(string(script), qt.Contains, "DROP DATABASE IF EXISTS \"medplum_test\";\nCREATE DATABASE \"medplum_test\";\n")
}

func TestSchemaCommand_ConfigFile(t *testing.T) {
	c := qt.New(t)

	dir := c.TempDir()
	path := filepath.Join(dir, "from-config.sql")
	cfg := filepath.Join(dir, "resmigrate.yaml")
	c.Assert(os.WriteFile(cfg, []byte("schema_file: "+path+"\n"), 0o600), qt.IsNil)

	_, err := run(c, "schema", "--config", cfg)
	c.Assert(err, qt.IsNil)
	_, err = os.Stat(path)
	c.Assert(err, qt.IsNil)
}

func TestCommandsRequireDatabaseURL(t *testing.T) {
	c := qt.New(t)
	c.Setenv("RESMIGRATE_DATABASE_URL", "")

	for _, name := range []string{"generate", "diff", "apply", "migrate", "serve"} {
		_, err := run(c, name)
		c.Assert(err, qt.ErrorIs, config.ErrDatabaseURLRequired, qt.Commentf("command %s", name))
	}
}

func TestConflictingPolicyFlags(t *testing.T) {
	c := qt.New(t)

	_, err := run(c, "diff", "--skip-post-deploy-actions", "--allow-post-deploy-actions")
	c.Assert(err, qt.ErrorIs, config.ErrConflictingPostDeployOptions)
}

func TestDiffCommand_RejectsUnknownFormat(t *testing.T) {
	c := qt.New(t)

	_, err := run(c, "diff", "--format", "yaml")
	c.Assert(err, qt.ErrorMatches, `unsupported format: "yaml"`)
}

func TestMigrateCommand_RejectsInvalidVersion(t *testing.T) {
	c := qt.New(t)

	_, err := run(c, "migrate", "--to", "latest")
	c.Assert(err, qt.ErrorMatches, `invalid --to version: "latest"`)
}

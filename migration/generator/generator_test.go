package generator_test

import (
	"context"
	"errors"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-extras/go-kit/must"

	"github.com/stokaro/resmigrate/catalog"
	"github.com/stokaro/resmigrate/config"
	"github.com/stokaro/resmigrate/core/convert/fromcatalog"
	"github.com/stokaro/resmigrate/dbschema"
	"github.com/stokaro/resmigrate/dbschema/dbschematest"
	dbpostgres "github.com/stokaro/resmigrate/dbschema/postgres"
	"github.com/stokaro/resmigrate/migration/generator"
	"github.com/stokaro/resmigrate/migration/migrator"
	difftypes "github.com/stokaro/resmigrate/migration/schemadiff/types"
)

func TestBuildPlan_MigratedDatabaseIsUpToDate(t *testing.T) {
	c := qt.New(t)

	target := must.Must(fromcatalog.Build(catalog.Default()))
	client := dbschematest.NewCatalogClient(must.Must(dbschematest.MigratedDatabase(target)))

	plan, err := generator.BuildPlan(context.Background(), client, generator.Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(plan.Actions, qt.HasLen, 0)
	c.Assert(plan.Fingerprint, qt.Equals, must.Must(target.Fingerprint()))
}

func TestBuildPlan_DropUnmatchedIndexesKeepsMigratedIndexes(t *testing.T) {
	c := qt.New(t)

	target := must.Must(fromcatalog.Build(catalog.Default()))
	client := dbschematest.NewCatalogClient(must.Must(dbschematest.MigratedDatabase(target)))

	plan, err := generator.BuildPlan(context.Background(), client, generator.Options{
		Generate: &config.GenerateOptions{DropUnmatchedIndexes: true},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(plan.Actions, qt.HasLen, 0)
}

func TestBuildPlan_UnusedSpecialCaseParserFails(t *testing.T) {
	c := qt.New(t)

	target := must.Must(fromcatalog.Build(catalog.Default()))
	db := must.Must(dbschematest.MigratedDatabase(target))
	coding := db.Tables["Coding"]
	var kept []string
	for _, def := range coding.Indexdefs {
		if !strings.Contains(def, "Coding_system_code_display_synonymOf_idx") {
			kept = append(kept, def)
		}
	}
	c.Assert(kept, qt.HasLen, len(coding.Indexdefs)-1)
	coding.Indexdefs = kept
	db.Tables["Coding"] = coding

	_, err := generator.BuildPlan(context.Background(), dbschematest.NewCatalogClient(db), generator.Options{
		Generate: config.WithAllowPostDeployActions(),
	})
	c.Assert(err, qt.ErrorIs, dbpostgres.ErrUnusedSpecialCaseParser)
	c.Assert(err, qt.ErrorMatches, "error reading database schema: unused special-case index parser: Coding_system_code_display_synonymOf_idx")

	// A database that is still missing tables only gets a warning.
	delete(db.Tables, "Patient")
	plan, err := generator.BuildPlan(context.Background(), dbschematest.NewCatalogClient(db), generator.Options{
		Generate: config.WithAllowPostDeployActions(),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(plan.Actions, qt.Not(qt.HasLen), 0)
}

func TestBuildPlan_ReadErrorAborts(t *testing.T) {
	c := qt.New(t)

	boom := errors.New("connection refused")
	client := &dbschematest.FakeClient{Handler: func(string, []any) ([]dbschema.Row, error) { return nil, boom }}
	_, err := generator.BuildPlan(context.Background(), client, generator.Options{})
	c.Assert(err, qt.ErrorIs, boom)
	c.Assert(err, qt.ErrorMatches, "error reading database schema: .*")
}

func TestGenerateMigration_EmptyDatabase(t *testing.T) {
	c := qt.New(t)

	dir := c.TempDir()
	client := dbschematest.NewCatalogClient(dbschematest.Database{})

	file, err := generator.GenerateMigration(context.Background(), client, generator.GenerateMigrationOptions{
		OutputDir: dir,
		Package:   "schema",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(file, qt.IsNotNil)
	c.Assert(file.Version, qt.Equals, 1)
	c.Assert(file.Path, qt.Equals, filepath.Join(dir, "v1.go"))

	target := must.Must(fromcatalog.Build(catalog.Default()))
	c.Assert(file.Actions, qt.Equals, len(target.Functions)+len(target.Tables))

	src := string(must.Must(os.ReadFile(file.Path)))
	c.Assert(src, qt.Contains, "// Code generated by resmigrate. DO NOT EDIT.")
	c.Assert(src, qt.Contains, "// Target schema fingerprint: "+must.Must(target.Fingerprint()))
	c.Assert(src, qt.Contains, "func V1(ctx context.Context, client dbschema.Client) ([]migrator.ActionResult, error)")
	c.Assert(src, qt.Contains, "migrator.Query(`CREATE TABLE IF NOT EXISTS \"Patient\" (")

	index := string(must.Must(os.ReadFile(file.IndexPath)))
	c.Assert(index, qt.Contains, `{Version: 1, Description: "schema v1", Up: V1},`)

	// Both files must be valid Go.
	fset := token.NewFileSet()
	_, err = parser.ParseFile(fset, file.Path, nil, 0)
	c.Assert(err, qt.IsNil)
	_, err = parser.ParseFile(fset, file.IndexPath, nil, 0)
	c.Assert(err, qt.IsNil)
}

func TestGenerateMigration_NothingToDo(t *testing.T) {
	c := qt.New(t)

	dir := c.TempDir()
	target := must.Must(fromcatalog.Build(catalog.Default()))
	client := dbschematest.NewCatalogClient(must.Must(dbschematest.MigratedDatabase(target)))

	file, err := generator.GenerateMigration(context.Background(), client, generator.GenerateMigrationOptions{OutputDir: dir})
	c.Assert(err, qt.IsNil)
	c.Assert(file, qt.IsNil)

	entries, err := os.ReadDir(dir)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 0)
}

func TestGenerateMigration_PostDeployPolicy(t *testing.T) {
	c := qt.New(t)

	target := must.Must(fromcatalog.Build(catalog.Default()))
	db := must.Must(dbschematest.MigratedDatabase(target))
	patient := db.Tables["Patient"]
	patient.Indexdefs = patient.Indexdefs[1:]
	db.Tables["Patient"] = patient

	_, err := generator.GenerateMigration(context.Background(), dbschematest.NewCatalogClient(db), generator.GenerateMigrationOptions{OutputDir: c.TempDir()})
	c.Assert(err, qt.ErrorIs, config.ErrPostDeployRequired)

	plan, err := generator.BuildPlan(context.Background(), dbschematest.NewCatalogClient(db), generator.Options{Generate: config.WithAllowPostDeployActions()})
	c.Assert(err, qt.IsNil)
	c.Assert(plan.Actions, qt.HasLen, 1)
	c.Assert(plan.Actions[0].Kind, qt.Equals, difftypes.CreateIndex)

	statements, err := plan.Statements()
	c.Assert(err, qt.IsNil)
	c.Assert(statements, qt.DeepEquals, []string{plan.Actions[0].CreateIndexSQL})
}

func TestNextVersion(t *testing.T) {
	c := qt.New(t)

	dir := c.TempDir()
	v, err := generator.NextVersion(filepath.Join(dir, "missing"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, 1)

	for _, name := range []string{"v1.go", "v2.go", "v10.go", "index.go", "notes.txt", "v3_test.go"} {
		c.Assert(os.WriteFile(filepath.Join(dir, name), []byte("package schema\n"), 0644), qt.IsNil)
	}
	v, err = generator.NextVersion(dir)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, 11)

	versions, err := generator.Versions(dir)
	c.Assert(err, qt.IsNil)
	c.Assert(versions, qt.DeepEquals, []int{1, 2, 10})
}

func TestRenderMigration_StringLiterals(t *testing.T) {
	c := qt.New(t)

	src, err := generator.RenderMigration("schema", 7, []migrator.Step{
		migrator.Query("SELECT 1"),
		migrator.Query("SELECT '\x01'"),
		migrator.Query("SELECT 'é'"),
		migrator.Query("SELECT `x`"),
		migrator.NonBlockingAlterColumnNotNull("Patient", "active"),
	}, "")
	c.Assert(err, qt.IsNil)

	out := string(src)
	c.Assert(out, qt.Contains, "migrator.Query(`SELECT 1`),")
	c.Assert(out, qt.Contains, `migrator.Query("SELECT '\x01'"),`)
	c.Assert(out, qt.Contains, `migrator.Query("SELECT '\u00e9'"),`)
	c.Assert(out, qt.Contains, "migrator.Query(\"SELECT `x`\"),")
	c.Assert(out, qt.Contains, "migrator.NonBlockingAlterColumnNotNull(`Patient`, `active`),")
	c.Assert(out, qt.Not(qt.Contains), "fingerprint")

	_, err = parser.ParseFile(token.NewFileSet(), "v7.go", src, 0)
	c.Assert(err, qt.IsNil)
}

func TestWriteIndexFile(t *testing.T) {
	c := qt.New(t)

	dir := c.TempDir()
	for _, v := range []int{2, 1} {
		_, err := generator.WriteMigrationFile(dir, "schema", v, []migrator.Step{migrator.AnalyzeTable("Patient")}, "")
		c.Assert(err, qt.IsNil)
	}
	path, err := generator.WriteIndexFile(dir, "schema")
	c.Assert(err, qt.IsNil)

	index := string(must.Must(os.ReadFile(path)))
	first := strings.Index(index, "Up: V1}")
	second := strings.Index(index, "Up: V2}")
	c.Assert(first > 0 && second > first, qt.IsTrue, qt.Commentf("%s", index))
	c.Assert(index, qt.Contains, "func Provider() *migrator.RegisteredMigrationProvider")
}

func TestSchemaScript(t *testing.T) {
	c := qt.New(t)

	actions, err := generator.SchemaActions(nil)
	c.Assert(err, qt.IsNil)

	script, err := generator.SchemaScript(actions, generator.SchemaScriptOptions{})
	c.Assert(err, qt.IsNil)
	c.Assert(strings.HasPrefix(script, "\\set ON_ERROR_STOP true\n\\set QUIET on\n\nCREATE EXTENSION IF NOT EXISTS btree_gin;\nCREATE EXTENSION IF NOT EXISTS pg_trgm;\n"), qt.IsTrue)
	c.Assert(script, qt.Contains, "$function$;\n")
	c.Assert(script, qt.Contains, "CREATE TABLE \"Patient\" (\n")
	c.Assert(script, qt.Not(qt.Contains), "IF NOT EXISTS \"Patient\"")
	c.Assert(script, qt.Not(qt.Contains), "CONCURRENTLY")
	c.Assert(script, qt.Not(qt.Contains), "DROP DATABASE")

	script, err = generator.SchemaScript(nil, generator.SchemaScriptOptions{DatabaseName: "medplum"})
	c.Assert(err, qt.IsNil)
	c.Assert(script, qt.Contains, "DROP DATABASE IF EXISTS \"medplum\";\nCREATE DATABASE \"medplum\";\n\n\\c \"medplum\"\n")
	c.Assert(script, qt.Contains, "IF current_database() NOT IN ('medplum') THEN")
}

func TestSchemaScript_UnsupportedAction(t *testing.T) {
	c := qt.New(t)

	_, err := generator.SchemaScript([]difftypes.MigrationAction{{Kind: difftypes.AddColumn}}, generator.SchemaScriptOptions{})
	c.Assert(err, qt.ErrorIs, generator.ErrUnsupportedSchemaAction)
	c.Assert(err, qt.ErrorMatches, "unsupported schema script action: ADD_COLUMN")
}

func TestWriteSchemaFile(t *testing.T) {
	c := qt.New(t)

	path := filepath.Join(c.TempDir(), "schema.sql")
	actions := must.Must(generator.SchemaActions(catalog.Default()))
	c.Assert(generator.WriteSchemaFile(path, actions, generator.SchemaScriptOptions{}), qt.IsNil)

	data := must.Must(os.ReadFile(path))
	c.Assert(string(data), qt.Contains, `CREATE TABLE "DatabaseMigration"`)
}

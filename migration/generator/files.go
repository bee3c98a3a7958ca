package generator

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"go/format"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/stokaro/resmigrate/core/sqlutil"
	"github.com/stokaro/resmigrate/migration/migrator"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(templateFS, "templates/*.tmpl"))

var versionFileRe = regexp.MustCompile(`^v(\d+)\.go$`)

// IndexFileName is the file listing every generated migration.
const IndexFileName = "index.go"

// MigrationFileName returns the file name of a schema version.
func MigrationFileName(version int) string {
	return fmt.Sprintf("v%d.go", version)
}

// Versions returns the versions of the migration files in dir, ascending. A missing
// directory has no versions.
func Versions(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	var versions []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := versionFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid migration file name %s: %w", e.Name(), err)
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}

// NextVersion returns the highest version in dir plus one.
func NextVersion(dir string) (int, error) {
	versions, err := Versions(dir)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 1, nil
	}
	return versions[len(versions)-1] + 1, nil
}

// goString renders s as a Go string literal: a raw string when s survives one
// unchanged, an ASCII-only interpreted literal otherwise.
func goString(s string) string {
	if sqlutil.EscapeUnicode(s) == s && !strings.ContainsAny(s, "`\r") {
		return "`" + s + "`"
	}
	return strconv.QuoteToASCII(s)
}

type stepCall struct {
	Constructor string
	Args        []string
}

type migrationData struct {
	Package     string
	Version     int
	Fingerprint string
	Steps       []stepCall
}

// RenderMigration returns the gofmt'd source of a migration file running steps.
func RenderMigration(pkg string, version int, steps []migrator.Step, fingerprint string) ([]byte, error) {
	data := migrationData{Package: pkg, Version: version, Fingerprint: fingerprint}
	for _, s := range steps {
		name, args := s.Call()
		call := stepCall{Constructor: name}
		for _, a := range args {
			call.Args = append(call.Args, goString(a))
		}
		data.Steps = append(data.Steps, call)
	}
	return render("migration.go.tmpl", data)
}

// WriteMigrationFile writes v<version>.go to dir and returns its path.
func WriteMigrationFile(dir, pkg string, version int, steps []migrator.Step, fingerprint string) (string, error) {
	src, err := RenderMigration(pkg, version, steps, fingerprint)
	if err != nil {
		return "", err
	}
	return writeFile(dir, MigrationFileName(version), src)
}

// WriteIndexFile regenerates index.go in dir from the migration files present.
func WriteIndexFile(dir, pkg string) (string, error) {
	versions, err := Versions(dir)
	if err != nil {
		return "", err
	}
	src, err := render("index.go.tmpl", struct {
		Package  string
		Versions []int
	}{pkg, versions})
	if err != nil {
		return "", err
	}
	return writeFile(dir, IndexFileName, src)
}

func render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", name, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", name, err)
	}
	return src, nil
}

func writeFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec // 0644 is fine
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

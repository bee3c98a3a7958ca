package generator

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/stokaro/resmigrate/core/sqlutil"
	"github.com/stokaro/resmigrate/migration/planner/dialects/postgres"
	difftypes "github.com/stokaro/resmigrate/migration/schemadiff/types"
)

// ErrUnsupportedSchemaAction is returned when a schema script is asked to contain
// anything but functions and tables.
var ErrUnsupportedSchemaAction = errors.New("unsupported schema script action")

// SchemaScriptOptions tunes SchemaScript.
type SchemaScriptOptions struct {
	// DatabaseName, when set, makes the script recreate that database, connect to it
	// and refuse to continue anywhere else.
	DatabaseName string
}

// SchemaScript renders a psql script creating a schema from scratch. actions come
// from diffing an empty schema against the target, so they are only CREATE_FUNCTION
// and CREATE_TABLE.
func SchemaScript(actions []difftypes.MigrationAction, opts SchemaScriptOptions) (string, error) {
	var b strings.Builder
	line := func(s string) { b.WriteString(s + "\n") }

	line(`\set ON_ERROR_STOP true`)
	line(`\set QUIET on`)
	line("")

	if db := opts.DatabaseName; db != "" {
		ident := sqlutil.EscapeIdentifier(db)
		line("DROP DATABASE IF EXISTS " + ident + ";")
		line("CREATE DATABASE " + ident + ";")
		line("")
		line(`\c ` + ident)
		line("")
		line("DO $$")
		line("BEGIN")
		line("  IF current_database() NOT IN ('" + strings.ReplaceAll(db, "'", "''") + "') THEN")
		line("    RAISE EXCEPTION 'Connected to wrong database: %', current_database();")
		line("  END IF;")
		line("END $$;")
		line("")
	}

	line("CREATE EXTENSION IF NOT EXISTS btree_gin;")
	line("CREATE EXTENSION IF NOT EXISTS pg_trgm;")
	line("")

	for _, a := range actions {
		switch a.Kind {
		case difftypes.CreateFunction:
			line(ensureSemicolon(sqlutil.EscapeUnicode(a.CreateQuery)))
			line("")
		case difftypes.CreateTable:
			if a.Table == nil {
				return "", fmt.Errorf("%w: CREATE_TABLE without table", ErrUnsupportedSchemaAction)
			}
			queries, err := postgres.CreateTableQueries(a.Table, false)
			if err != nil {
				return "", err
			}
			for _, q := range queries {
				line(ensureSemicolon(q))
			}
			line("")
		default:
			return "", fmt.Errorf("%w: %s", ErrUnsupportedSchemaAction, a.Kind)
		}
	}
	return b.String(), nil
}

// WriteSchemaFile writes SchemaScript to path.
func WriteSchemaFile(path string, actions []difftypes.MigrationAction, opts SchemaScriptOptions) error {
	script, err := SchemaScript(actions, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(script), 0644); err != nil { //nolint:gosec // 0644 is fine
		return fmt.Errorf("failed to write schema file: %w", err)
	}
	return nil
}

func ensureSemicolon(query string) string {
	if strings.HasSuffix(query, ";") {
		return query
	}
	return query + ";"
}

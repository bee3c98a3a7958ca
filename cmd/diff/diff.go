package diff

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/resmigrate/cmd/internal/cliutil"
	"github.com/stokaro/resmigrate/migration/generator"
	difftypes "github.com/stokaro/resmigrate/migration/schemadiff/types"
)

const formatFlag = "format"

// Report is the JSON form of a dry run.
type Report struct {
	Fingerprint string                       `json:"fingerprint"`
	Actions     []difftypes.MigrationAction  `json:"actions"`
	Counts      map[difftypes.ActionKind]int `json:"counts"`
	Statements  []string                     `json:"statements"`
}

func NewDiffCommand() *cobra.Command {
	diffCmd := &cobra.Command{
		Use:   "diff",
		Short: "Show the actions that would bring the database to the target schema",
		Long: `Read the live database schema, diff it against the target schema and print the
resulting actions and SQL without executing anything.

Examples:
  resmigrate diff
  resmigrate diff --format json --skip-post-deploy-actions`,
		RunE: diffCommand,
	}

	flags := cliutil.PlanFlags()
	flags[formatFlag] = &cobraflags.StringFlag{
		Name:  formatFlag,
		Value: "text",
		Usage: "Output format: text or json",
	}
	cobraflags.RegisterMap(diffCmd, flags)
	cliutil.RegisterPolicyFlags(diffCmd)
	return diffCmd
}

func diffCommand(cmd *cobra.Command, _ []string) error {
	format, err := cmd.Flags().GetString(formatFlag)
	if err != nil {
		return err
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format: %q", format)
	}

	settings, err := cliutil.LoadSettings(cmd)
	if err != nil {
		return err
	}
	opts, err := cliutil.PlanOptions(settings, cliutil.NewLogger(settings.LogLevel))
	if err != nil {
		return err
	}
	conn, err := cliutil.Connect(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer conn.Close()

	plan, err := generator.BuildPlan(cmd.Context(), conn, opts)
	if err != nil {
		return err
	}
	statements, err := plan.Statements()
	if err != nil {
		return err
	}

	if format == "json" {
		return WriteJSON(cmd.OutOrStdout(), plan, statements)
	}
	WriteText(cmd.OutOrStdout(), plan, statements)
	return nil
}

// WriteJSON writes the plan as an indented Report.
func WriteJSON(w io.Writer, plan *generator.Plan, statements []string) error {
	report := Report{
		Fingerprint: plan.Fingerprint,
		Actions:     plan.Actions,
		Counts:      difftypes.CountByKind(plan.Actions),
		Statements:  statements,
	}
	if report.Actions == nil {
		report.Actions = []difftypes.MigrationAction{}
	}
	if report.Statements == nil {
		report.Statements = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// WriteText writes a summary line per action kind followed by the statements.
func WriteText(w io.Writer, plan *generator.Plan, statements []string) {
	fmt.Fprintf(w, "-- Target schema fingerprint: %s\n", plan.Fingerprint)
	if len(plan.Actions) == 0 {
		fmt.Fprintln(w, "-- Database schema is up to date")
		return
	}

	counts := difftypes.CountByKind(plan.Actions)
	kinds := make([]difftypes.ActionKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	fmt.Fprintf(w, "-- %d %s\n", len(plan.Actions), cliutil.Noun(len(plan.Actions), "action"))
	for _, k := range kinds {
		fmt.Fprintf(w, "--   %s: %d\n", k, counts[k])
	}
	for _, s := range statements {
		fmt.Fprintf(w, "\n%s;\n", strings.TrimSuffix(s, ";"))
	}
}

package apply

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/resmigrate/cmd/internal/cliutil"
	"github.com/stokaro/resmigrate/migration/executor"
	"github.com/stokaro/resmigrate/migration/generator"
	"github.com/stokaro/resmigrate/migration/migrator"
)

func NewApplyCommand() *cobra.Command {
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute the schema actions against the database now",
		Long: `Diff the live database against the target schema and execute the actions in
process, printing the duration of every statement.

Statements run one at a time outside a transaction. The first failure stops the run;
statements that already ran are not rolled back.`,
		RunE: applyCommand,
	}

	cobraflags.RegisterMap(applyCmd, cliutil.PlanFlags())
	cliutil.RegisterPolicyFlags(applyCmd)
	return applyCmd
}

func applyCommand(cmd *cobra.Command, _ []string) error {
	settings, err := cliutil.LoadSettings(cmd)
	if err != nil {
		return err
	}
	logger := cliutil.NewLogger(settings.LogLevel)
	opts, err := cliutil.PlanOptions(settings, logger)
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
	out := cmd.OutOrStdout()
	if len(plan.Actions) == 0 {
		fmt.Fprintln(out, "Database schema is up to date")
		return nil
	}

	results, err := executor.New(conn).WithLogger(logger).Execute(cmd.Context(), plan.Actions)
	WriteResults(out, results)
	if err != nil {
		return fmt.Errorf("migration stopped after %d %s: %w", len(results), cliutil.Noun(len(results), "statement"), err)
	}
	fmt.Fprintf(out, "Applied %d %s\n", len(plan.Actions), cliutil.Noun(len(plan.Actions), "action"))
	return nil
}

// WriteResults prints one line per executed statement with its duration.
func WriteResults(w io.Writer, results []migrator.ActionResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(tw, "%d ms\t%s\n", r.DurationMs, r.Name)
	}
	_ = tw.Flush()
}

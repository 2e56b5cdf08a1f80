// Package recategorize implements the backfill command that re-runs
// commitment classification over stored recommendations.
package recategorize

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/advisor/internal/app"
	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/pipeline"
)

// Options represents recategorize command options.
type Options struct {
	Filter   string
	ReportID string
	DryRun   bool
}

// NewCommand creates the recategorize command.
func NewCommand(global *app.Options) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "recategorize",
		Short: "Re-run commitment classification over stored recommendations",
		Example: `  advisor recategorize --filter uncategorized_only --dry-run
  advisor recategorize --filter all --report 3f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.Open(cmd.Context(), *global)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return Run(cmd, a.Service, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", string(database.ScopeUncategorizedOnly), "Which records to revisit (all or uncategorized_only)")
	cmd.Flags().StringVar(&opts.ReportID, "report", "", "Limit the backfill to one report")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report what would change without writing")
	return cmd
}

// Run executes the backfill.
func Run(cmd *cobra.Command, svc *pipeline.Service, opts *Options) error {
	scope := database.RecategorizeScope(opts.Filter)
	if !scope.Valid() {
		return fmt.Errorf("unknown filter %q (want %s or %s)", opts.Filter, database.ScopeAll, database.ScopeUncategorizedOnly)
	}

	res, err := svc.Recategorize(cmd.Context(), pipeline.RecategorizeFilter{
		Scope:    scope,
		ReportID: opts.ReportID,
		DryRun:   opts.DryRun,
	})
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res, opts.DryRun)
	return nil
}

func printResult(w io.Writer, res *pipeline.RecategorizeResult, dryRun bool) {
	verb := "Updated"
	if dryRun {
		verb = "Would update"
	}
	fmt.Fprintf(w, "Scanned %d recommendations in %d batches\n", res.Scanned, res.Batches)
	fmt.Fprintf(w, "%s %d recommendations\n", verb, res.Updated)
	for _, c := range models.CommitmentCategories() {
		if n := res.ByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-28s %d\n", c.Label(), n)
		}
	}
}

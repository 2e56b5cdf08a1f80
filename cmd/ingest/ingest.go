// Package ingest implements the ingest command for loading an advisor export.
package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/advisor/internal/app"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/pipeline"
)

// Options represents ingest command options.
type Options struct {
	ReportID   string
	ReportType string
	Title      string
	Generate   bool
}

// NewCommand creates the ingest command.
func NewCommand(global *app.Options) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Upload an advisor export and parse it into recommendations",
		Example: `  advisor ingest export.csv --type cost --title "Q3 review"
  advisor ingest export.csv --report 3f1c... --generate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd.Context(), *global)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return Run(cmd, a.Service, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.ReportID, "report", "", "Existing report ID (a new report is created when empty)")
	cmd.Flags().StringVar(&opts.ReportType, "type", string(models.ReportDetailed), "Report type for a new report")
	cmd.Flags().StringVar(&opts.Title, "title", "", "Title for a new report")
	cmd.Flags().BoolVar(&opts.Generate, "generate", false, "Generate the report once ingest succeeds")
	return cmd
}

// Run uploads file, ingests it and optionally generates the report.
func Run(cmd *cobra.Command, svc *pipeline.Service, file string, opts *Options) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	data, err := os.ReadFile(file) //nolint:gosec // user-supplied input file
	if err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}

	reportID := opts.ReportID
	if reportID == "" {
		rt, err := models.ParseReportType(opts.ReportType)
		if err != nil {
			return err
		}
		r, err := svc.CreateReport(ctx, rt, opts.Title)
		if err != nil {
			return err
		}
		reportID = r.ID
		fmt.Fprintf(out, "Created report %s\n", reportID)
	}

	if _, err := svc.AttachSource(ctx, reportID, filepath.Base(file), data); err != nil {
		return err
	}

	res, err := svc.Ingest(ctx, reportID, "")
	if err != nil {
		return err
	}
	printIngest(out, res)

	if !opts.Generate {
		return nil
	}
	gen, err := svc.Generate(ctx, reportID, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Generated %s report with %s: %s\n", gen.Report.ReportType, gen.Report.Engine, gen.Report.PDFRef)
	return nil
}

func printIngest(w io.Writer, res *pipeline.IngestResult) {
	if res.Skipped {
		fmt.Fprintf(w, "Report %s was already ingested\n", res.Report.ID)
		return
	}
	fmt.Fprintf(w, "Ingested %d recommendations (%s)\n", res.Records, res.Encoding)
	if len(res.Warnings) == 0 {
		return
	}
	fmt.Fprintf(w, "Skipped %d rows:\n", len(res.Warnings))
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "  line %d: %s\n", warn.Line, warn.Reason)
	}
}

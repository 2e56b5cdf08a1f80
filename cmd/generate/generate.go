// Package generate implements the generate command for rendering reports.
package generate

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/advisor/internal/app"
	"github.com/joshsymonds/advisor/internal/artifacts"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/pipeline"
)

// Options represents generate command options.
type Options struct {
	ReportType string
	OutputDir  string
}

// NewCommand creates the generate command.
func NewCommand(global *app.Options) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "generate <report-id>",
		Short: "Render an ingested report to HTML and PDF",
		Example: `  advisor generate 3f1c...
  advisor generate 3f1c... --type all --out ./reports`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd.Context(), *global)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return Run(cmd, a.Service, a.Blobs, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.ReportType, "type", "", "Report type, or \"all\" (defaults to the report's own type)")
	cmd.Flags().StringVar(&opts.OutputDir, "out", "", "Copy the generated files into this directory")
	return cmd
}

// Run generates the requested report types.
func Run(cmd *cobra.Command, svc *pipeline.Service, blobs artifacts.Store, reportID string, opts *Options) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	types, err := reportTypes(opts.ReportType)
	if err != nil {
		return err
	}

	for _, rt := range types {
		res, err := svc.Generate(ctx, reportID, rt)
		if err != nil {
			return err
		}
		a := res.Artifact
		if a == nil {
			return fmt.Errorf("report %s: no artifact recorded", reportID)
		}
		verb := "Generated"
		if res.Skipped {
			verb = "Already generated"
		}
		fmt.Fprintf(out, "%s %s report (%s, %d charts): %s\n", verb, a.ReportType, a.Engine, a.ChartCount, a.PDFRef)

		if opts.OutputDir == "" {
			continue
		}
		for _, key := range []string{a.HTMLRef, a.PDFRef} {
			dst, err := export(cmd, blobs, key, opts.OutputDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  wrote %s\n", dst)
		}
	}
	return nil
}

func reportTypes(s string) ([]models.ReportType, error) {
	switch s {
	case "":
		return []models.ReportType{""}, nil
	case "all":
		return models.ReportTypes(), nil
	}
	rt, err := models.ParseReportType(s)
	if err != nil {
		return nil, err
	}
	return []models.ReportType{rt}, nil
}

func export(cmd *cobra.Command, blobs artifacts.Store, key, dir string) (string, error) {
	data, err := blobs.Get(cmd.Context(), key)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	// reports/<id>/<type>.<ext> flattens to <id>-<type>.<ext>
	name := path.Base(path.Dir(key)) + "-" + path.Base(key)
	dst := filepath.Join(dir, name)
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", dst, err)
	}
	return dst, nil
}

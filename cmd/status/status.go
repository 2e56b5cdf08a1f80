// Package status implements the status command for inspecting reports.
package status

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/advisor/internal/app"
	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/ui"
)

// Options represents status command options.
type Options struct {
	Status string
	Type   string
	Format string
	Limit  int
}

// NewCommand creates the status command.
func NewCommand(global *app.Options) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "status [report-id]",
		Short: "Show one report in detail or list recent reports",
		Example: `  advisor status
  advisor status --status failed
  advisor status 3f1c... --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd.Context(), *global)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if len(args) == 1 {
				return Show(cmd, a.DB, args[0], opts)
			}
			return List(cmd, a.DB, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Only list reports in this status")
	cmd.Flags().StringVar(&opts.Type, "type", "", "Only list reports of this type")
	cmd.Flags().StringVar(&opts.Format, "format", "table", "Output format (table, json)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Maximum number of reports to list")
	return cmd
}

// List prints recent reports.
func List(cmd *cobra.Command, db *database.DB, opts *Options) error {
	filter := database.ReportFilter{Limit: opts.Limit}
	if opts.Status != "" {
		s := models.ReportStatus(opts.Status)
		filter.Status = &s
	}
	if opts.Type != "" {
		rt, err := models.ParseReportType(opts.Type)
		if err != nil {
			return err
		}
		filter.ReportType = &rt
	}

	reports, err := db.ListReports(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		return writeJSON(cmd, reports)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.ReportTable(reports))
	return nil
}

// Show prints one report with its recommendation counts and artifacts.
func Show(cmd *cobra.Command, db *database.DB, id string, opts *Options) error {
	ctx := cmd.Context()
	r, err := db.GetReport(ctx, id)
	if err != nil {
		return err
	}
	counts, err := db.GetRecommendationCounts(ctx, id)
	if err != nil {
		return err
	}
	arts, err := db.ListArtifacts(ctx, id)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return writeJSON(cmd, struct {
			Report    *models.Report                 `json:"report"`
			Counts    *database.RecommendationCounts `json:"counts"`
			Artifacts []models.Artifact              `json:"artifacts"`
		}{r, counts, arts})
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.ReportDetail(r, counts, arts))
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// Package submit implements the submit command that enqueues pipeline jobs
// for workers instead of running them in-process.
package submit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/advisor/internal/app"
	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/queue"
)

// Options represents submit command options.
type Options struct {
	File       string
	ReportID   string
	ReportType string
	Title      string
	Filter     string
}

// NewCommand creates the submit command.
func NewCommand(global *app.Options) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "submit <ingest|generate|recategorize>",
		Short: "Enqueue a job for the worker pool",
		Example: `  advisor submit ingest --file export.csv --type cost
  advisor submit generate --report 3f1c... --type executive
  advisor submit recategorize --filter all`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(queue.KindIngest), string(queue.KindGenerate), string(queue.KindRecategorize)},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd.Context(), *global)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			producer, err := a.Producer()
			if err != nil {
				return err
			}
			defer func() { _ = producer.Close() }()

			m, err := Prepare(cmd, a, queue.Kind(args[0]), opts)
			if err != nil {
				return err
			}
			if err := producer.Publish(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s job for %s\n", m.Kind, target(m))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "Export to upload before queueing an ingest job")
	cmd.Flags().StringVar(&opts.ReportID, "report", "", "Report ID")
	cmd.Flags().StringVar(&opts.ReportType, "type", "", "Report type")
	cmd.Flags().StringVar(&opts.Title, "title", "", "Title for a new report")
	cmd.Flags().StringVar(&opts.Filter, "filter", string(database.ScopeUncategorizedOnly), "Recategorize filter (all or uncategorized_only)")
	return cmd
}

// Prepare builds the job message. For ingest jobs with --file it creates
// the report when needed and uploads the export first.
func Prepare(cmd *cobra.Command, a *app.App, kind queue.Kind, opts *Options) (queue.Message, error) {
	m := queue.Message{Kind: kind, ReportID: opts.ReportID}

	switch kind {
	case queue.KindIngest:
		if opts.File != "" {
			id, err := upload(cmd, a, opts)
			if err != nil {
				return m, err
			}
			m.ReportID = id
		}
	case queue.KindGenerate:
		if opts.ReportType != "" {
			rt, err := models.ParseReportType(opts.ReportType)
			if err != nil {
				return m, err
			}
			m.ReportType = rt
		}
	case queue.KindRecategorize:
		m.Filter = database.RecategorizeScope(opts.Filter)
	}

	return m, m.Validate()
}

func upload(cmd *cobra.Command, a *app.App, opts *Options) (string, error) {
	ctx := cmd.Context()
	data, err := os.ReadFile(opts.File) //nolint:gosec // user-supplied input file
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", opts.File, err)
	}

	id := opts.ReportID
	if id == "" {
		rt := models.ReportDetailed
		if opts.ReportType != "" {
			if rt, err = models.ParseReportType(opts.ReportType); err != nil {
				return "", err
			}
		}
		r, err := a.Service.CreateReport(ctx, rt, opts.Title)
		if err != nil {
			return "", err
		}
		id = r.ID
	}
	if _, err := a.Service.AttachSource(ctx, id, filepath.Base(opts.File), data); err != nil {
		return "", err
	}
	return id, nil
}

func target(m queue.Message) string {
	if m.ReportID != "" {
		return "report " + m.ReportID
	}
	return "all reports"
}

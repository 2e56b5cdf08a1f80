// Package config implements the config command for validating configuration files.
package config

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/advisor/internal/app"
	"github.com/joshsymonds/advisor/internal/config"
)

// NewCommand creates the config command.
func NewCommand(global *app.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "validate",
		Short:   "Validate the configuration and print the effective settings",
		Example: "  advisor --config advisor.yaml config validate",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(*global)
			if err != nil {
				return fmt.Errorf("configuration is invalid: %w", err)
			}
			PrintSummary(cmd.OutOrStdout(), cfg)
			fmt.Fprintln(cmd.OutOrStdout(), "\nConfiguration is valid.")
			return nil
		},
	})
	return cmd
}

// PrintSummary writes the effective settings, omitting secrets.
func PrintSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Storage:")
	fmt.Fprintf(w, "   Database: %s\n", cfg.Database.Driver)
	switch cfg.Artifacts.Backend {
	case "s3":
		fmt.Fprintf(w, "   Artifacts: s3://%s/%s\n", cfg.Artifacts.S3.Bucket, cfg.Artifacts.S3.Prefix)
	default:
		fmt.Fprintf(w, "   Artifacts: %s\n", cfg.Artifacts.BaseDir)
	}
	fmt.Fprintf(w, "   Cache: %s (ttl %s)\n", cfg.Cache.Backend, cfg.Cache.TTL)
	fmt.Fprintf(w, "   Lock: %s (ttl %s)\n", cfg.Lock.Backend, cfg.Lock.TTL)

	fmt.Fprintln(w, "\nIngest:")
	fmt.Fprintf(w, "   Max rows: %d\n", cfg.Parser.MaxRows)
	fmt.Fprintf(w, "   Max bytes: %d\n", cfg.Parser.MaxBytes)
	dict := cfg.Classifier.Dictionary
	if dict == "" {
		dict = "built-in"
	}
	fmt.Fprintf(w, "   Dictionary: %s\n", dict)
	fmt.Fprintf(w, "   Default commitment term: %d years\n", cfg.Classifier.DefaultTermYears)

	fmt.Fprintln(w, "\nReports:")
	fmt.Fprintf(w, "   Currency: %s\n", cfg.Report.DefaultCurrency)
	fmt.Fprintf(w, "   Top N: %d\n", cfg.Report.TopN)
	fmt.Fprintf(w, "   Quick-win percentile: %.0f\n", cfg.Report.QuickWinPercentile)
	severities := make([]string, 0, len(cfg.Report.SecurityWeights))
	for s := range cfg.Report.SecurityWeights {
		severities = append(severities, s)
	}
	sort.Strings(severities)
	weights := make([]string, 0, len(severities))
	for _, s := range severities {
		weights = append(weights, fmt.Sprintf("%s=%g", s, cfg.Report.SecurityWeights[s]))
	}
	fmt.Fprintf(w, "   Security weights: %s\n", strings.Join(weights, ", "))

	fmt.Fprintln(w, "\nConversion:")
	fmt.Fprintf(w, "   Mode: %s\n", cfg.Converter.Mode)
	fmt.Fprintf(w, "   Timeout: %s\n", cfg.Converter.Timeout)
	fmt.Fprintf(w, "   Primary retries: %d\n", cfg.Converter.PrimaryRetries)

	if len(cfg.Queue.Brokers) > 0 {
		fmt.Fprintln(w, "\nQueue:")
		fmt.Fprintf(w, "   Brokers: %s\n", strings.Join(cfg.Queue.Brokers, ", "))
		fmt.Fprintf(w, "   Topic: %s (group %s)\n", cfg.Queue.Topic, cfg.Queue.GroupID)
	}
	fmt.Fprintf(w, "\nMetrics: %s\n", cfg.Metrics.Listen)
}

// Package main is the entry point for the advisor CLI.
// Advisor ingests cloud advisor exports, classifies commitment
// recommendations and produces audience-specific HTML and PDF reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	configcmd "github.com/joshsymonds/advisor/cmd/config"
	"github.com/joshsymonds/advisor/cmd/generate"
	"github.com/joshsymonds/advisor/cmd/ingest"
	"github.com/joshsymonds/advisor/cmd/recategorize"
	"github.com/joshsymonds/advisor/cmd/status"
	"github.com/joshsymonds/advisor/cmd/submit"
	"github.com/joshsymonds/advisor/cmd/worker"
	"github.com/joshsymonds/advisor/internal/app"
	"github.com/joshsymonds/advisor/pkg/logger"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func newRootCmd() *cobra.Command {
	opts := &app.Options{}

	root := &cobra.Command{
		Use:           "advisor",
		Short:         "Turn cloud advisor exports into classified, audience-specific reports",
		Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Configuration file (YAML)")
	root.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "Log format (text or json)")

	root.AddCommand(
		ingest.NewCommand(opts),
		generate.NewCommand(opts),
		recategorize.NewCommand(opts),
		status.NewCommand(opts),
		submit.NewCommand(opts),
		worker.NewCommand(opts),
		configcmd.NewCommand(opts),
	)
	return root
}

package app

import (
	"context"

	"github.com/joshsymonds/advisor/internal/config"
	"github.com/joshsymonds/advisor/pkg/logger"
)

// Options are the global command-line settings shared by every command.
type Options struct {
	ConfigPath string
	LogFormat  string
	Debug      bool
}

// LoadConfig reads the configuration and lets command-line flags override
// the logging section, then installs the global logger.
func LoadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if opts.Debug {
		cfg.Log.Debug = true
	}
	logger.SetupLogger(cfg.Log.Debug, cfg.Log.Format)
	return cfg, nil
}

// Open loads the configuration and assembles the application.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, logger.GetGlobalLogger())
}

// Package convert turns rendered HTML into PDF. A Converter owns the
// policy (mode, timeouts, retry, failover); engines only convert.
package convert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joshsymonds/advisor/internal/metrics"
	"github.com/joshsymonds/advisor/internal/report"
	"github.com/joshsymonds/advisor/pkg/logger"
)

// Engine converts a self-contained HTML document to PDF.
type Engine interface {
	// Name identifies the engine in logs, metrics and results.
	Name() string
	// Convert returns the PDF bytes for markup.
	Convert(ctx context.Context, markup []byte) ([]byte, error)
}

// Mode selects which engines a Converter may use.
type Mode string

// Conversion modes.
const (
	ModeAuto     Mode = "auto"
	ModePrimary  Mode = "primary"
	ModeFallback Mode = "fallback"
)

// ParseMode validates a configured mode. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModePrimary, ModeFallback:
		return m, nil
	default:
		return "", fmt.Errorf("unknown conversion mode %q", s)
	}
}

// DefaultTimeout bounds a single conversion attempt.
const DefaultTimeout = 60 * time.Second

// ErrEmptyOutput is returned when an engine produced no bytes.
var ErrEmptyOutput = errors.New("engine produced empty output")

// EngineError is one failed attempt.
type EngineError struct {
	Err     error
	Engine  string
	Attempt int
}

func (e EngineError) Error() string {
	return fmt.Sprintf("%s attempt %d: %v", e.Engine, e.Attempt, e.Err)
}

// ConversionError is returned when every permitted engine failed. It keeps
// each engine's error verbatim.
type ConversionError struct {
	Attempts []EngineError
}

func (e *ConversionError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return "document conversion failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the underlying engine errors to errors.Is and errors.As.
func (e *ConversionError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// Retryable reports whether the job may be retried later. Conversion
// failures are usually environmental.
func (e *ConversionError) Retryable() bool {
	return true
}

// Result is a successful conversion.
type Result struct {
	Engine   string
	PDF      []byte
	Attempts int
	// ChartCount is the number of chart markers in the input markup. Engines
	// only print after the page signals charts-ready, so every marker is drawn
	// before the PDF is captured; the PDF itself is not inspected.
	ChartCount int
}

// Options configures a Converter.
type Options struct {
	Mode           Mode
	Timeout        time.Duration
	PrimaryRetries int
}

// Converter runs the primary engine, retries it, then fails over.
type Converter struct {
	primary  Engine
	fallback Engine
	logger   logger.Logger
	opts     Options
}

// New creates a converter. Either engine may be nil when the mode does not
// need it.
func New(primary, fallback Engine, opts Options) (*Converter, error) {
	return NewWithLogger(primary, fallback, opts, logger.GetGlobalLogger())
}

// NewWithLogger creates a converter with a custom logger.
func NewWithLogger(primary, fallback Engine, opts Options, log logger.Logger) (*Converter, error) {
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PrimaryRetries < 0 {
		opts.PrimaryRetries = 0
	}

	switch opts.Mode {
	case ModeAuto:
		if primary == nil && fallback == nil {
			return nil, fmt.Errorf("auto mode needs at least one engine")
		}
	case ModePrimary:
		if primary == nil {
			return nil, fmt.Errorf("primary mode needs a primary engine")
		}
	case ModeFallback:
		if fallback == nil {
			return nil, fmt.Errorf("fallback mode needs a fallback engine")
		}
	default:
		return nil, fmt.Errorf("unknown conversion mode %q", opts.Mode)
	}

	return &Converter{primary: primary, fallback: fallback, opts: opts, logger: log}, nil
}

type step struct {
	engine Engine
	tries  int
}

func (c *Converter) plan() []step {
	var steps []step
	if c.primary != nil && c.opts.Mode != ModeFallback {
		steps = append(steps, step{engine: c.primary, tries: 1 + c.opts.PrimaryRetries})
	}
	if c.fallback != nil && c.opts.Mode != ModePrimary {
		steps = append(steps, step{engine: c.fallback, tries: 1})
	}
	return steps
}

// Convert produces a PDF from markup.
func (c *Converter) Convert(ctx context.Context, markup []byte) (*Result, error) {
	charts := report.CountCharts(markup)
	convErr := &ConversionError{}
	attempts := 0

	for i, s := range c.plan() {
		if i > 0 {
			c.logger.Warn("Primary conversion failed, using fallback engine",
				"fallback", s.engine.Name(),
				"attempts", attempts)
		}
		for try := 1; try <= s.tries; try++ {
			if err := ctx.Err(); err != nil {
				convErr.Attempts = append(convErr.Attempts, EngineError{Engine: s.engine.Name(), Attempt: try, Err: err})
				return nil, convErr
			}
			attempts++

			pdf, err := c.attempt(ctx, s.engine, markup)
			if err == nil {
				c.logger.Info("Converted document",
					"engine", s.engine.Name(),
					"attempts", attempts,
					"bytes", len(pdf),
					"charts", charts)
				return &Result{PDF: pdf, Engine: s.engine.Name(), Attempts: attempts, ChartCount: charts}, nil
			}

			c.logger.Warn("Conversion attempt failed",
				"engine", s.engine.Name(),
				"attempt", try,
				"error", err)
			convErr.Attempts = append(convErr.Attempts, EngineError{Engine: s.engine.Name(), Attempt: try, Err: err})
		}
	}

	if len(convErr.Attempts) == 0 {
		return nil, fmt.Errorf("no conversion engine available for mode %q", c.opts.Mode)
	}
	return nil, convErr
}

func (c *Converter) attempt(ctx context.Context, e Engine, markup []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	pdf, err := e.Convert(ctx, markup)
	if err == nil && len(pdf) == 0 {
		err = ErrEmptyOutput
	}

	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.RecordConversion(e.Name(), status, time.Since(start).Seconds())
	return pdf, err
}

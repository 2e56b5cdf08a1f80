package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/joshsymonds/advisor/pkg/logger"
)

// WindowStatus is the window.status value charts set once rendered.
const WindowStatus = "charts-ready"

// WkhtmltopdfEngine prints documents with the wkhtmltopdf binary.
type WkhtmltopdfEngine struct {
	logger logger.Logger
	binary string
}

// NewWkhtmltopdfEngine creates the engine. An empty binary means
// "wkhtmltopdf" on PATH.
func NewWkhtmltopdfEngine(binary string, log logger.Logger) *WkhtmltopdfEngine {
	if binary == "" {
		binary = "wkhtmltopdf"
	}
	return &WkhtmltopdfEngine{binary: binary, logger: log}
}

// Name implements Engine.
func (e *WkhtmltopdfEngine) Name() string {
	return "wkhtmltopdf"
}

// Available reports whether the binary can be found.
func (e *WkhtmltopdfEngine) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

func (e *WkhtmltopdfEngine) args(in, out string) []string {
	return []string{
		"--quiet",
		"--encoding", "utf-8",
		"--enable-javascript",
		"--window-status", WindowStatus,
		"--print-media-type",
		"--orientation", "Portrait",
		"--page-size", "A4",
		"--margin-top", "18mm",
		"--margin-bottom", "18mm",
		"--margin-left", "14mm",
		"--margin-right", "14mm",
		in, out,
	}
}

// Convert writes markup to a scratch directory and runs wkhtmltopdf on it.
func (e *WkhtmltopdfEngine) Convert(ctx context.Context, markup []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "advisor-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() {
		if rerr := os.RemoveAll(dir); rerr != nil {
			e.logger.Warn("Failed to remove scratch directory", "dir", dir, "error", rerr)
		}
	}()

	in := filepath.Join(dir, "report.html")
	out := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(in, markup, 0600); err != nil {
		return nil, fmt.Errorf("writing markup: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.binary, e.args(in, out)...) // #nosec G204 - binary comes from configuration
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("wkhtmltopdf: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("wkhtmltopdf: %w", err)
	}

	pdf, err := os.ReadFile(out) // #nosec G304 - path is inside our scratch directory
	if err != nil {
		return nil, fmt.Errorf("reading wkhtmltopdf output: %w", err)
	}
	e.logger.Debug("wkhtmltopdf printed document", "bytes", len(pdf))
	return pdf, nil
}

package convert

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/joshsymonds/advisor/pkg/logger"
)

// ChartsReadySelector matches the body once charts have rendered.
const ChartsReadySelector = "body[data-charts-ready]"

// ChromeEngine prints documents with headless Chrome.
type ChromeEngine struct {
	logger    logger.Logger
	execPath  string
	noSandbox bool
}

// NewChromeEngine creates a Chrome engine. An empty execPath lets chromedp
// find a browser on PATH.
func NewChromeEngine(execPath string, log logger.Logger) *ChromeEngine {
	return &ChromeEngine{execPath: execPath, noSandbox: true, logger: log}
}

// Name implements Engine.
func (e *ChromeEngine) Name() string {
	return "chrome"
}

// Convert loads markup into a blank page, waits for charts and prints it.
// Page size and margins come from the document's @page rule.
func (e *ChromeEngine) Convert(ctx context.Context, markup []byte) ([]byte, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if e.execPath != "" {
		opts = append(opts, chromedp.ExecPath(e.execPath))
	}
	if e.noSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("getting frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, string(markup)).Do(ctx)
		}),
		chromedp.WaitReady(ChartsReadySelector, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("printing to pdf: %w", err)
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome: %w", err)
	}

	e.logger.Debug("Chrome printed document", "bytes", len(pdf))
	return pdf, nil
}

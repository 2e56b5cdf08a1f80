// Package report renders report contexts into self-contained HTML documents.
package report

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/joshsymonds/advisor/internal/analysis"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/report/format"
	"github.com/joshsymonds/advisor/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets/charts.js
var chartsJS string

//go:embed assets/report.css
var reportCSS string

// ChartMarker is the attribute every chart placeholder carries.
const ChartMarker = `data-chart="`

// CountCharts returns the number of chart placeholders in markup.
func CountCharts(markup []byte) int {
	return bytes.Count(markup, []byte(ChartMarker))
}

var templateFiles = map[models.ReportType]string{
	models.ReportExecutive:  "executive.html",
	models.ReportCost:       "cost.html",
	models.ReportSecurity:   "security.html",
	models.ReportOperations: "operations.html",
	models.ReportDetailed:   "detailed.html",
}

// Document is a rendered report.
type Document struct {
	HTML       []byte
	ChartCount int
}

// Renderer turns report contexts into self-contained HTML.
type Renderer struct {
	logger    logger.Logger
	templates map[models.ReportType]*template.Template
}

// NewRenderer parses every report template.
func NewRenderer() (*Renderer, error) {
	return NewRendererWithLogger(logger.GetGlobalLogger())
}

// NewRendererWithLogger parses every report template with a custom logger.
// It fails if any report type has no template.
func NewRendererWithLogger(log logger.Logger) (*Renderer, error) {
	base, err := template.New("layout.html").
		Funcs(templateFuncs()).
		ParseFS(templateFS, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return nil, fmt.Errorf("parsing layout: %w", err)
	}

	r := &Renderer{logger: log, templates: make(map[models.ReportType]*template.Template)}
	for _, rt := range models.ReportTypes() {
		file, ok := templateFiles[rt]
		if !ok {
			return nil, fmt.Errorf("no template registered for report type %q", rt)
		}
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning layout for %s: %w", rt, err)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+file); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
		r.templates[rt] = t
	}
	return r, nil
}

// Types returns the report types the renderer can produce.
func (r *Renderer) Types() []models.ReportType {
	out := make([]models.ReportType, 0, len(r.templates))
	for _, rt := range models.ReportTypes() {
		if _, ok := r.templates[rt]; ok {
			out = append(out, rt)
		}
	}
	return out
}

type page struct {
	*analysis.ReportContext
	CSS     template.CSS
	Scripts template.JS
}

// Render executes the template for rc.Type.
func (r *Renderer) Render(rc *analysis.ReportContext) (*Document, error) {
	if rc == nil {
		return nil, fmt.Errorf("nil report context")
	}
	t, ok := r.templates[rc.Type]
	if !ok {
		return nil, fmt.Errorf("no template for report type %q", rc.Type)
	}

	var buf bytes.Buffer
	data := page{ReportContext: rc, CSS: template.CSS(reportCSS), Scripts: template.JS(chartsJS)} // #nosec G203 - embedded assets
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		return nil, fmt.Errorf("executing %s template: %w", rc.Type, err)
	}

	doc := &Document{HTML: buf.Bytes(), ChartCount: CountCharts(buf.Bytes())}
	r.logger.Debug("Rendered report",
		"report_id", rc.Meta.ReportID,
		"report_type", rc.Type,
		"bytes", len(doc.HTML),
		"charts", doc.ChartCount)
	return doc, nil
}

type itemTable struct {
	Currency string
	Items    []analysis.Item
}

type countTable struct {
	Heading  string
	Currency string
	Counts   []analysis.Count
}

type chartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// clip shortens s to at most n characters, never splitting a rune.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

// templateFuncs returns the shared formatters plus layout helpers.
func templateFuncs() template.FuncMap {
	funcs := format.FuncMap()
	funcs["label"] = analysis.Label
	funcs["severityClass"] = func(severity string) string {
		return "severity-" + severity
	}
	funcs["truncate"] = clip
	funcs["add"] = func(a, b int) int {
		return a + b
	}
	funcs["table"] = func(items []analysis.Item, currency string) itemTable {
		return itemTable{Items: items, Currency: currency}
	}
	funcs["counts"] = func(heading string, counts []analysis.Count, currency string) countTable {
		return countTable{Heading: heading, Counts: counts, Currency: currency}
	}
	funcs["countSeries"] = func(counts []analysis.Count) (string, error) {
		return series(counts, func(c analysis.Count) float64 { return float64(c.Count) })
	}
	funcs["savingsSeries"] = func(counts []analysis.Count) (string, error) {
		return series(counts, func(c analysis.Count) float64 { return c.Savings })
	}
	funcs["slaSeries"] = func(buckets []analysis.SLABucket) (string, error) {
		points := make([]chartPoint, len(buckets))
		for i, b := range buckets {
			points[i] = chartPoint{Label: analysis.Label(b.Severity), Value: float64(b.Count)}
		}
		return marshal(points)
	}
	funcs["automationSeries"] = func(buckets []analysis.AutomationBucket) (string, error) {
		points := make([]chartPoint, 0, len(buckets))
		for _, b := range buckets {
			points = append(points, chartPoint{Label: b.Label, Value: float64(b.Count)})
		}
		return marshal(points)
	}
	funcs["groupSeries"] = func(groups []analysis.CategoryGroup) (string, error) {
		points := make([]chartPoint, len(groups))
		for i, g := range groups {
			points[i] = chartPoint{Label: g.Label, Value: float64(g.Count)}
		}
		return marshal(points)
	}
	return funcs
}

func series(counts []analysis.Count, value func(analysis.Count) float64) (string, error) {
	points := make([]chartPoint, len(counts))
	for i, c := range counts {
		points[i] = chartPoint{Label: c.Label, Value: value(c)}
	}
	return marshal(points)
}

func marshal(points []chartPoint) (string, error) {
	b, err := json.Marshal(points)
	if err != nil {
		return "", fmt.Errorf("encoding chart data: %w", err)
	}
	return string(b), nil
}

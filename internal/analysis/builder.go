package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/pkg/logger"
)

// Options tunes the builder.
type Options struct {
	SecurityWeights    map[string]float64
	EffortHours        map[Effort]float64
	DefaultCurrency    string
	TopN               int
	QuickWinPercentile float64
	HourlyRate         float64
	CostMultiplier     float64
}

// DefaultOptions returns the built-in tuning.
func DefaultOptions() Options {
	return Options{
		DefaultCurrency:    "USD",
		TopN:               10,
		QuickWinPercentile: 75,
		HourlyRate:         150,
		CostMultiplier:     1.0,
		SecurityWeights: map[string]float64{
			models.SeverityCritical: 15,
			models.SeverityHigh:     8,
			models.SeverityMedium:   3,
			models.SeverityLow:      1,
		},
		EffortHours: DefaultEffortHours(),
	}
}

// Builder computes report contexts.
type Builder struct {
	logger logger.Logger
	now    func() time.Time
	opts   Options
}

// NewBuilder creates a builder. Zero-valued options fall back to defaults.
func NewBuilder(opts Options) *Builder {
	return NewBuilderWithLogger(opts, logger.GetGlobalLogger())
}

// NewBuilderWithLogger creates a builder with a custom logger.
func NewBuilderWithLogger(opts Options, log logger.Logger) *Builder {
	def := DefaultOptions()
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = def.DefaultCurrency
	}
	if opts.TopN <= 0 {
		opts.TopN = def.TopN
	}
	if opts.QuickWinPercentile <= 0 {
		opts.QuickWinPercentile = def.QuickWinPercentile
	}
	if opts.SecurityWeights == nil {
		opts.SecurityWeights = def.SecurityWeights
	}
	if opts.EffortHours == nil {
		opts.EffortHours = def.EffortHours
	}
	return &Builder{opts: opts, logger: log, now: time.Now}
}

// Build computes the shared summary plus the specialization for reportType.
func (b *Builder) Build(recs []models.Recommendation, reportType models.ReportType, meta Meta) (*ReportContext, error) {
	if !reportType.Valid() {
		return nil, fmt.Errorf("unknown report type %q", reportType)
	}
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = b.now().UTC()
	}

	items := make([]Item, len(recs))
	for i := range recs {
		items[i] = newItem(&recs[i])
	}

	rc := &ReportContext{
		Type:    reportType,
		Meta:    meta,
		Summary: b.summarize(recs, items),
	}

	switch reportType {
	case models.ReportExecutive:
		rc.Executive = b.executive(items, &rc.Summary)
	case models.ReportCost:
		rc.Cost = b.cost(items, &rc.Summary)
	case models.ReportSecurity:
		rc.Security = b.security(items)
	case models.ReportOperations:
		rc.Operations = b.operations(items)
	case models.ReportDetailed:
		rc.Detailed = b.detailed(items)
	}

	b.logger.Debug("Built report context",
		"report_id", meta.ReportID,
		"report_type", reportType,
		"records", len(recs))
	return rc, nil
}

var titleCase = cases.Title(language.English)

// Label title-cases an enum value for display.
func Label(s string) string {
	return titleCase.String(strings.ReplaceAll(s, "_", " "))
}

func (b *Builder) summarize(recs []models.Recommendation, items []Item) Summary {
	s := Summary{TotalCount: len(items)}

	categories := make(map[string]*Count)
	impacts := make(map[string]*Count)
	severities := make(map[string]*Count)
	commitments := make(map[string]*Count)
	subscriptions := make(map[string]struct{})
	resources := make(map[string]struct{})
	currencies := make(map[string]int)

	bump := func(m map[string]*Count, key string, item Item) {
		c, ok := m[key]
		if !ok {
			c = &Count{Key: key}
			m[key] = c
		}
		c.Count++
		c.Savings += item.SavingsValue()
	}

	for i, item := range items {
		bump(categories, string(item.Category), item)
		bump(impacts, string(item.Impact), item)
		bump(severities, item.Severity, item)
		bump(commitments, string(item.Commitment), item)

		if item.HasSavings() {
			s.WithSavings++
			s.AnnualSavings += *item.Savings
			if cur := recs[i].Currency; cur != "" {
				currencies[cur]++
			}
		}
		if item.SubscriptionID != "" || item.SubscriptionName != "" {
			subscriptions[strings.ToLower(item.SubscriptionID+"|"+item.SubscriptionName)] = struct{}{}
		}
		if item.ResourceName != "" {
			resources[recs[i].ResourceKey()] = struct{}{}
		}
	}
	s.MonthlySavings = s.AnnualSavings / 12
	s.UniqueSubscriptions = len(subscriptions)
	s.UniqueResources = len(resources)
	s.Currency, s.MixedCurrency = dominantCurrency(currencies, b.opts.DefaultCurrency)
	if s.MixedCurrency {
		b.logger.Warn("Savings use more than one currency; totals use the dominant one", "currency", s.Currency)
	}

	for _, c := range models.Categories() {
		s.Categories = append(s.Categories, ordered(categories, string(c), Label(string(c)), s.TotalCount))
	}
	for _, i := range models.Impacts() {
		s.Impacts = append(s.Impacts, ordered(impacts, string(i), Label(string(i)), s.TotalCount))
	}
	for _, sev := range models.Severities() {
		s.Severities = append(s.Severities, ordered(severities, sev, Label(sev), s.TotalCount))
	}
	for _, c := range models.CommitmentCategories() {
		s.Commitments = append(s.Commitments, ordered(commitments, string(c), c.Label(), s.TotalCount))
	}

	s.TopSavings = topBySavings(items, b.opts.TopN)
	return s
}

func ordered(m map[string]*Count, key, label string, total int) Count {
	out := Count{Key: key, Label: label}
	if c, ok := m[key]; ok {
		out.Count = c.Count
		out.Savings = c.Savings
	}
	if total > 0 {
		out.Percent = float64(out.Count) / float64(total) * 100
	}
	return out
}

func dominantCurrency(counts map[string]int, fallback string) (string, bool) {
	best, bestN := "", 0
	for cur, n := range counts {
		if n > bestN || (n == bestN && cur < best) {
			best, bestN = cur, n
		}
	}
	if best == "" {
		return fallback, false
	}
	return best, len(counts) > 1
}

// sortBySavings orders items by savings descending; missing savings sort
// last and ties keep source order.
func sortBySavings(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.HasSavings() != b.HasSavings() {
			return a.HasSavings()
		}
		if a.SavingsValue() != b.SavingsValue() {
			return a.SavingsValue() > b.SavingsValue()
		}
		return a.SourceRow < b.SourceRow
	})
}

func topBySavings(items []Item, n int) []Item {
	var with []Item
	for _, item := range items {
		if item.HasSavings() && *item.Savings > 0 {
			with = append(with, item)
		}
	}
	sortBySavings(with)
	if len(with) > n {
		with = with[:n]
	}
	return with
}

// groupSavings buckets items by key, largest savings first, capped at n.
func groupSavings(items []Item, key func(Item) string, n int) []Count {
	buckets := make(map[string]*Count)
	var keys []string
	for _, item := range items {
		k := key(item)
		if k == "" {
			k = "unspecified"
		}
		c, ok := buckets[k]
		if !ok {
			c = &Count{Key: k, Label: k}
			buckets[k] = c
			keys = append(keys, k)
		}
		c.Count++
		c.Savings += item.SavingsValue()
	}

	out := make([]Count, 0, len(keys))
	for _, k := range keys {
		c := *buckets[k]
		if len(items) > 0 {
			c.Percent = float64(c.Count) / float64(len(items)) * 100
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Savings != out[j].Savings {
			return out[i].Savings > out[j].Savings
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

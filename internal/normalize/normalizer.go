// Package normalize maps parsed export rows onto typed recommendations.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/tabular"
)

// Canonical field names.
const (
	FieldCategory          = "category"
	FieldImpact            = "impact"
	FieldSeverity          = "severity"
	FieldRecommendation    = "recommendation"
	FieldDescription       = "description"
	FieldPotentialBenefits = "potential_benefits"
	FieldSubscriptionID    = "subscription_id"
	FieldSubscriptionName  = "subscription_name"
	FieldResourceGroup     = "resource_group"
	FieldResourceName      = "resource_name"
	FieldResourceType      = "resource_type"
	FieldSavings           = "potential_savings"
	FieldMonthlySavings    = "potential_monthly_savings"
	FieldCurrency          = "currency"
	FieldRetirementDate    = "retirement_date"
	FieldRetirementFeature = "retirement_feature"
)

var (
	// ErrMissingField marks a row without a required value.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidValue marks a row whose value is outside the known domain.
	ErrInvalidValue = errors.New("invalid value")
)

// aliases maps each canonical field to accepted header spellings, compared
// after headerKey folding.
var aliases = map[string][]string{
	FieldCategory:          {"category", "recommendation category", "advisor category", "pillar"},
	FieldImpact:            {"impact", "business impact", "impact level"},
	FieldSeverity:          {"severity", "risk", "risk level"},
	FieldRecommendation:    {"recommendation", "recommendation text", "problem", "short description", "title"},
	FieldDescription:       {"description", "long description", "details", "solution"},
	FieldPotentialBenefits: {"potential benefits", "benefits", "benefit"},
	FieldSubscriptionID:    {"subscription id", "subscription"},
	FieldSubscriptionName:  {"subscription name"},
	FieldResourceGroup:     {"resource group", "resource group name"},
	FieldResourceName:      {"resource name", "resource", "impacted value", "impacted resource"},
	FieldResourceType:      {"resource type", "impacted field", "type"},
	FieldSavings: {
		"potential annual cost savings", "potential annual savings", "potential savings",
		"annual savings", "estimated savings", "cost savings", "savings",
	},
	FieldMonthlySavings:    {"potential monthly savings", "monthly savings", "potential monthly cost savings"},
	FieldCurrency:          {"currency", "savings currency", "potential cost savings currency"},
	FieldRetirementDate:    {"retirement date"},
	FieldRetirementFeature: {"retirement feature"},
}

var required = []string{FieldCategory, FieldRecommendation}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// headerKey folds case and collapses runs of whitespace, underscores,
// hyphens and punctuation into single spaces.
func headerKey(h string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(h), " "))
}

var categoryValues = map[string]models.Category{
	"cost":                   models.CategoryCost,
	"security":               models.CategorySecurity,
	"reliability":            models.CategoryReliability,
	"high availability":      models.CategoryReliability,
	"operational":            models.CategoryOperational,
	"operational excellence": models.CategoryOperational,
	"operations":             models.CategoryOperational,
	"performance":            models.CategoryPerformance,
}

// RowError describes why a row was skipped.
type RowError struct {
	Err    error
	Field  string
	Reason string
	Row    int
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Normalizer converts parsed rows into recommendations.
type Normalizer struct {
	defaultCurrency string
}

// New creates a normalizer. An empty default currency means USD.
func New(defaultCurrency string) *Normalizer {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Normalizer{defaultCurrency: strings.ToUpper(defaultCurrency)}
}

// Binding resolves canonical fields to the headers of one input.
type Binding struct {
	n       *Normalizer
	columns map[string]string
}

// Bind matches headers against the alias table. The first header matching a
// field wins; unknown headers are ignored.
func (n *Normalizer) Bind(headers []string) *Binding {
	byKey := make(map[string]string, len(headers))
	for _, h := range headers {
		k := headerKey(h)
		if _, dup := byKey[k]; !dup {
			byKey[k] = h
		}
	}

	b := &Binding{n: n, columns: make(map[string]string)}
	for field, names := range aliases {
		for _, name := range names {
			if h, ok := byKey[name]; ok {
				b.columns[field] = h
				break
			}
		}
	}
	return b
}

// Column returns the header bound to field.
func (b *Binding) Column(field string) (string, bool) {
	h, ok := b.columns[field]
	return h, ok
}

// Missing lists required fields with no matching header.
func (b *Binding) Missing() []string {
	var out []string
	for _, f := range required {
		if _, ok := b.columns[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

func (b *Binding) get(row tabular.Row, field string) string {
	h, ok := b.columns[field]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row.Get(h))
}

// Normalize converts one row. rowNumber is recorded as the source row.
func (b *Binding) Normalize(row tabular.Row, rowNumber int) (*models.Recommendation, *RowError) {
	for _, f := range required {
		if b.get(row, f) == "" {
			return nil, &RowError{Row: rowNumber, Field: f, Reason: "value is empty or column is absent", Err: ErrMissingField}
		}
	}

	rawCategory := b.get(row, FieldCategory)
	category, ok := categoryValues[headerKey(rawCategory)]
	if !ok {
		return nil, &RowError{Row: rowNumber, Field: FieldCategory, Reason: fmt.Sprintf("unknown category %q", rawCategory), Err: ErrInvalidValue}
	}

	impact, impliedSeverity := parseImpact(b.get(row, FieldImpact))

	rec := &models.Recommendation{
		Category:          category,
		BusinessImpact:    impact,
		Recommendation:    b.get(row, FieldRecommendation),
		Description:       b.get(row, FieldDescription),
		PotentialBenefits: b.get(row, FieldPotentialBenefits),
		SubscriptionID:    b.get(row, FieldSubscriptionID),
		SubscriptionName:  b.get(row, FieldSubscriptionName),
		ResourceGroup:     b.get(row, FieldResourceGroup),
		ResourceName:      b.get(row, FieldResourceName),
		ResourceType:      b.get(row, FieldResourceType),
		RetirementDate:    b.get(row, FieldRetirementDate),
		RetirementFeature: b.get(row, FieldRetirementFeature),
		SourceRowNumber:   rowNumber,
	}

	severity := strings.ToLower(b.get(row, FieldSeverity))
	switch {
	case models.IsValidSeverity(severity):
		rec.Severity = severity
	case impliedSeverity != "":
		rec.Severity = impliedSeverity
	default:
		rec.Severity = rec.EffectiveSeverity()
	}

	b.applySavings(row, rec)
	return rec, nil
}

func (b *Binding) applySavings(row tabular.Row, rec *models.Recommendation) {
	amount, symbolCurrency := ParseDecimal(b.get(row, FieldSavings))
	if amount == nil {
		monthly, c := ParseDecimal(b.get(row, FieldMonthlySavings))
		if monthly != nil {
			annual := *monthly * 12
			amount, symbolCurrency = &annual, c
		}
	}
	rec.PotentialSavings = amount

	switch col := strings.ToUpper(b.get(row, FieldCurrency)); {
	case len(col) == 3:
		rec.Currency = col
	case symbolCurrency != "":
		rec.Currency = symbolCurrency
	default:
		rec.Currency = b.n.defaultCurrency
	}
}

// parseImpact maps an impact cell to an Impact and, for "critical", the
// severity it implies. Empty or unknown values become medium.
func parseImpact(v string) (models.Impact, string) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "critical":
		return models.ImpactHigh, models.SeverityCritical
	case "high":
		return models.ImpactHigh, ""
	case "low":
		return models.ImpactLow, ""
	default:
		return models.ImpactMedium, ""
	}
}

// NormalizeAll converts every row of res, returning the valid subset and
// one RowError per skipped row. A missing required column fails every row
// with the same field.
func (n *Normalizer) NormalizeAll(res *tabular.Result) ([]models.Recommendation, []RowError) {
	b := n.Bind(res.Headers)
	recs := make([]models.Recommendation, 0, len(res.Rows))
	var skipped []RowError

	for _, row := range res.Rows {
		rec, rerr := b.Normalize(row, row.Line)
		if rerr != nil {
			skipped = append(skipped, *rerr)
			continue
		}
		recs = append(recs, *rec)
	}
	return recs, skipped
}

// Package analysis turns stored recommendations into the typed, read-only
// context a report template renders. Builders never mutate their input.
package analysis

import (
	"time"

	"github.com/joshsymonds/advisor/internal/models"
)

// Meta describes the report being rendered.
type Meta struct {
	GeneratedAt time.Time
	ReportID    string
	Title       string
	Warnings    int
}

// ReportContext is everything a template needs. Exactly one of the
// per-type views is set, matching Type.
type ReportContext struct {
	Meta       Meta
	Executive  *ExecutiveView
	Cost       *CostView
	Security   *SecurityView
	Operations *OperationsView
	Detailed   *DetailedView
	Type       models.ReportType
	Summary    Summary
}

// Item is a self-contained copy of one recommendation.
type Item struct {
	Savings          *float64
	TermYears        *int
	ID               string
	Title            string
	Description      string
	Benefits         string
	Category         models.Category
	Impact           models.Impact
	Severity         string
	Effort           Effort
	Commitment       models.CommitmentCategory
	SubscriptionID   string
	SubscriptionName string
	ResourceGroup    string
	ResourceName     string
	ResourceType     string
	RetirementDate   string
	SourceRow        int
}

// SavingsValue returns the savings, treating missing data as zero.
func (i Item) SavingsValue() float64 {
	if i.Savings == nil {
		return 0
	}
	return *i.Savings
}

// HasSavings reports whether a savings figure was supplied.
func (i Item) HasSavings() bool {
	return i.Savings != nil
}

func newItem(rec *models.Recommendation) Item {
	item := Item{
		ID:               rec.ID,
		Title:            rec.Recommendation,
		Description:      rec.Description,
		Benefits:         rec.PotentialBenefits,
		Category:         rec.Category,
		Impact:           rec.BusinessImpact,
		Severity:         rec.EffectiveSeverity(),
		Effort:           EstimateEffort(rec),
		Commitment:       rec.CommitmentCategory,
		SubscriptionID:   rec.SubscriptionID,
		SubscriptionName: rec.SubscriptionName,
		ResourceGroup:    rec.ResourceGroup,
		ResourceName:     rec.ResourceName,
		ResourceType:     rec.ResourceType,
		RetirementDate:   rec.RetirementDate,
		SourceRow:        rec.SourceRowNumber,
	}
	if item.Commitment == "" {
		item.Commitment = models.CommitmentUncategorized
	}
	if rec.PotentialSavings != nil {
		v := *rec.PotentialSavings
		item.Savings = &v
	}
	if rec.CommitmentTermYears != nil {
		v := *rec.CommitmentTermYears
		item.TermYears = &v
	}
	return item
}

// Count is one bucket of a distribution.
type Count struct {
	Key     string
	Label   string
	Count   int
	Savings float64
	// Percent is the bucket's share of the total count, 0-100.
	Percent float64
}

// Summary holds the aggregates shared by every report type.
type Summary struct {
	Currency            string
	Categories          []Count
	Impacts             []Count
	Severities          []Count
	Commitments         []Count
	TopSavings          []Item
	TotalCount          int
	WithSavings         int
	AnnualSavings       float64
	MonthlySavings      float64
	UniqueSubscriptions int
	UniqueResources     int
	MixedCurrency       bool
}

// KeyFindingKind tells the template how to format a key finding value.
type KeyFindingKind string

// Key finding kinds.
const (
	FindingCount    KeyFindingKind = "count"
	FindingCurrency KeyFindingKind = "currency"
	FindingPercent  KeyFindingKind = "percent"
)

// KeyFinding is one headline number.
type KeyFinding struct {
	Label string
	Kind  KeyFindingKind
	Value float64
}

// Phase is one step of the executive roadmap.
type Phase struct {
	Name    string
	Window  string
	Effort  Effort
	Items   []Item
	Number  int
	Savings float64
}

// ExecutiveView is the executive report specialization.
type ExecutiveView struct {
	QuickWins          []Item
	Roadmap            []Phase
	KeyFindings        []KeyFinding
	QuickWinPercentile float64
	QuickWinThreshold  float64
	QuickWinSavings    float64
}

// ROI is the cost report's return-on-investment block.
type ROI struct {
	// PaybackMonths is nil when monthly savings is zero.
	PaybackMonths       *float64
	ROIPercent          *float64
	EffortHours         float64
	HourlyRate          float64
	Multiplier          float64
	ImplementationCost  float64
	AnnualSavings       float64
	MonthlySavings      float64
	NetAnnualBenefit    float64
	ThreeYearProjection float64
}

// CostView is the cost report specialization.
type CostView struct {
	Commitments       []Count
	ByResourceType    []Count
	BySubscription    []Count
	Items             []Item
	ROI               ROI
	CommitmentSavings float64
}

// SLABucket groups findings sharing a remediation deadline.
type SLABucket struct {
	Severity string
	SLA      string
	Count    int
	Weight   float64
}

// SecurityView is the security report specialization.
type SecurityView struct {
	SLABuckets []SLABucket
	Findings   []Item
	Score      float64
	Deduction  float64
}

// AutomationBucket groups operational findings by automation theme.
type AutomationBucket struct {
	Key         string
	Label       string
	Items       []Item
	Count       int
	Automatable int
}

// OperationsView is the operations report specialization.
type OperationsView struct {
	Buckets          []AutomationBucket
	Reliability      int
	Performance      int
	Operational      int
	AutomatableTotal int
}

// CategoryGroup is one category section of the detailed report.
type CategoryGroup struct {
	Category models.Category
	Label    string
	Items    []Item
	Count    int
	Savings  float64
}

// DetailedView lists every recommendation grouped by category.
type DetailedView struct {
	Groups []CategoryGroup
}

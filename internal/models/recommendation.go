// Package models contains the domain types shared by the ingestion, classification and reporting stages.
package models

import (
	"strings"
	"time"
)

// Category is the advisory pillar a recommendation belongs to.
type Category string

// Recommendation categories.
const (
	CategoryCost        Category = "cost"
	CategorySecurity    Category = "security"
	CategoryReliability Category = "reliability"
	CategoryOperational Category = "operational"
	CategoryPerformance Category = "performance"
)

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{CategoryCost, CategorySecurity, CategoryReliability, CategoryOperational, CategoryPerformance}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCost, CategorySecurity, CategoryReliability, CategoryOperational, CategoryPerformance:
		return true
	}
	return false
}

// Impact is the vendor-assigned business impact.
type Impact string

// Impact levels.
const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// Impacts returns every impact level, highest first.
func Impacts() []Impact {
	return []Impact{ImpactHigh, ImpactMedium, ImpactLow}
}

// Valid reports whether i is a known impact.
func (i Impact) Valid() bool {
	switch i {
	case ImpactHigh, ImpactMedium, ImpactLow:
		return true
	}
	return false
}

// Severity levels used by the security report.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Severities returns every severity, most severe first.
func Severities() []string {
	return []string{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// IsValidSeverity checks if a severity level is valid.
func IsValidSeverity(severity string) bool {
	switch severity {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// SeverityRank orders severities; lower is more severe.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// CommitmentCategory is the commitment mechanism a recommendation implies.
type CommitmentCategory string

// Commitment categories.
const (
	CommitmentPureReservation1Y CommitmentCategory = "pure_reservation_1y"
	CommitmentPureReservation3Y CommitmentCategory = "pure_reservation_3y"
	CommitmentCombinedSP1Y      CommitmentCategory = "combined_sp_1y"
	CommitmentCombinedSP3Y      CommitmentCategory = "combined_sp_3y"
	CommitmentPureSavingsPlan   CommitmentCategory = "pure_savings_plan"
	CommitmentUncategorized     CommitmentCategory = "uncategorized"
)

// CommitmentCategories returns every commitment category in display order.
func CommitmentCategories() []CommitmentCategory {
	return []CommitmentCategory{
		CommitmentPureReservation1Y,
		CommitmentPureReservation3Y,
		CommitmentCombinedSP1Y,
		CommitmentCombinedSP3Y,
		CommitmentPureSavingsPlan,
		CommitmentUncategorized,
	}
}

// Valid reports whether c is a known commitment category.
func (c CommitmentCategory) Valid() bool {
	for _, known := range CommitmentCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// Label returns a human readable name.
func (c CommitmentCategory) Label() string {
	switch c {
	case CommitmentPureReservation1Y:
		return "Reservation (1 year)"
	case CommitmentPureReservation3Y:
		return "Reservation (3 years)"
	case CommitmentCombinedSP1Y:
		return "Reservation + Savings Plan (1 year)"
	case CommitmentCombinedSP3Y:
		return "Reservation + Savings Plan (3 years)"
	case CommitmentPureSavingsPlan:
		return "Savings Plan"
	default:
		return "Uncategorized"
	}
}

// Recommendation is one advisory line item owned by a Report.
type Recommendation struct {
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at" db:"updated_at"`
	PotentialSavings    *float64           `json:"potential_savings,omitempty" db:"potential_savings"`
	CommitmentTermYears *int               `json:"commitment_term_years,omitempty" db:"commitment_term_years"`
	ID                  string             `json:"id" db:"id"`
	ReportID            string             `json:"report_id" db:"report_id"`
	Category            Category           `json:"category" db:"category"`
	BusinessImpact      Impact             `json:"business_impact" db:"business_impact"`
	Severity            string             `json:"severity" db:"severity"`
	Recommendation      string             `json:"recommendation" db:"recommendation"`
	Description         string             `json:"description,omitempty" db:"description"`
	PotentialBenefits   string             `json:"potential_benefits,omitempty" db:"potential_benefits"`
	SubscriptionID      string             `json:"subscription_id,omitempty" db:"subscription_id"`
	SubscriptionName    string             `json:"subscription_name,omitempty" db:"subscription_name"`
	ResourceGroup       string             `json:"resource_group,omitempty" db:"resource_group"`
	ResourceName        string             `json:"resource_name,omitempty" db:"resource_name"`
	ResourceType        string             `json:"resource_type,omitempty" db:"resource_type"`
	Currency            string             `json:"currency,omitempty" db:"currency"`
	RetirementDate      string             `json:"retirement_date,omitempty" db:"retirement_date"`
	RetirementFeature   string             `json:"retirement_feature,omitempty" db:"retirement_feature"`
	CommitmentCategory  CommitmentCategory `json:"commitment_category" db:"commitment_category"`
	SourceRowNumber     int                `json:"source_row_number" db:"source_row_number"`
	IsCommitment        bool               `json:"is_commitment_recommendation" db:"is_commitment"`
	IsSavingsPlan       bool               `json:"is_savings_plan" db:"is_savings_plan"`
}

// Savings returns the annual potential savings, treating "no data" as zero.
func (r *Recommendation) Savings() float64 {
	if r.PotentialSavings == nil {
		return 0
	}
	return *r.PotentialSavings
}

// HasSavings reports whether the vendor supplied a savings figure.
func (r *Recommendation) HasSavings() bool {
	return r.PotentialSavings != nil
}

// EffectiveSeverity falls back to the business impact when no severity was supplied.
func (r *Recommendation) EffectiveSeverity() string {
	if IsValidSeverity(r.Severity) {
		return r.Severity
	}
	switch r.BusinessImpact {
	case ImpactHigh:
		return SeverityHigh
	case ImpactLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// ResourceKey identifies the affected resource for distinct counting.
func (r *Recommendation) ResourceKey() string {
	return strings.ToLower(strings.Join([]string{r.SubscriptionID, r.ResourceGroup, r.ResourceName}, "/"))
}

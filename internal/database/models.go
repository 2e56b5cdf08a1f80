package database

import "github.com/joshsymonds/advisor/internal/models"

// ReportFilter narrows ListReports.
type ReportFilter struct {
	Status     *models.ReportStatus
	ReportType *models.ReportType
	Limit      int
	Offset     int
}

// RecategorizeScope selects which recommendations a backfill visits.
type RecategorizeScope string

// Backfill scopes.
const (
	ScopeAll               RecategorizeScope = "all"
	ScopeUncategorizedOnly RecategorizeScope = "uncategorized_only"
)

// Valid reports whether s is a known scope.
func (s RecategorizeScope) Valid() bool {
	return s == ScopeAll || s == ScopeUncategorizedOnly
}

// PageQuery is one keyset page over recommendations ordered by id.
type PageQuery struct {
	Scope    RecategorizeScope
	ReportID string
	AfterID  string
	Limit    int
}

// ClassificationUpdate carries the derived commitment fields of one row.
type ClassificationUpdate struct {
	TermYears     *int
	ID            string
	Category      models.CommitmentCategory
	IsCommitment  bool
	IsSavingsPlan bool
}

// RecommendationCounts summarizes a report's stored recommendations.
type RecommendationCounts struct {
	ByCategory   map[models.Category]int
	ByCommitment map[models.CommitmentCategory]int
	Total        int
	Warnings     int
}

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/advisor/internal/models"
)

func createReport(t *testing.T, db *DB, status models.ReportStatus) *models.Report {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	r := &models.Report{
		ID:         uuid.NewString(),
		Title:      "Q3 advisory",
		ReportType: models.ReportCost,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, db.CreateReport(context.Background(), r))
	return r
}

func ptr[T any](v T) *T { return &v }

func TestCreateAndGetReport(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	r := createReport(t, db, models.StatusPending)

	got, err := db.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, models.ReportCost, got.ReportType)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.UploadedAt)

	_, err = db.GetReport(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveReportStateCompareAndSet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := createReport(t, db, models.StatusPending)

	now := time.Now().UTC()
	r.SourceRef = "uploads/x/source.csv"
	require.NoError(t, r.Transition(models.StatusUploaded, now))
	require.NoError(t, db.SaveReportState(ctx, r, models.StatusPending))

	got, err := db.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, got.Status)
	assert.Equal(t, "uploads/x/source.csv", got.SourceRef)
	require.NotNil(t, got.UploadedAt)

	// A second writer still believing the report is pending loses.
	stale := *r
	stale.Status = models.StatusCancelled
	err = db.SaveReportState(ctx, &stale, models.StatusPending)
	assert.ErrorIs(t, err, ErrConflict)

	missing := *r
	missing.ID = uuid.NewString()
	err = db.SaveReportState(ctx, &missing, models.StatusUploaded)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListReports(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createReport(t, db, models.StatusPending)
	createReport(t, db, models.StatusPending)
	createReport(t, db, models.StatusFailed)

	all, err := db.ListReports(ctx, ReportFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	failed := models.StatusFailed
	only, err := db.ListReports(ctx, ReportFilter{Status: &failed})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, models.StatusFailed, only[0].Status)

	page, err := db.ListReports(ctx, ReportFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func sampleRecs(reportID string) []models.Recommendation {
	return []models.Recommendation{
		{
			ReportID:            reportID,
			SourceRowNumber:     2,
			Category:            models.CategoryCost,
			BusinessImpact:      models.ImpactHigh,
			Recommendation:      "Buy reserved instances",
			PotentialSavings:    ptr(1200.0),
			Currency:            "USD",
			IsCommitment:        true,
			CommitmentTermYears: ptr(3),
			CommitmentCategory:  models.CommitmentPureReservation3Y,
		},
		{
			ReportID:        reportID,
			SourceRowNumber: 3,
			Category:        models.CategorySecurity,
			BusinessImpact:  models.ImpactMedium,
			Severity:        models.SeverityCritical,
			Recommendation:  "Enable MFA",
		},
	}
}

func TestCompleteIngest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := createReport(t, db, models.StatusProcessing)

	warnings := []models.IngestWarning{
		{ReportID: r.ID, Kind: models.WarningParse, Line: 4, Reason: "expected 5 fields, got 3"},
	}
	require.NoError(t, r.Transition(models.StatusCompleted, time.Now().UTC()))
	require.NoError(t, db.CompleteIngest(ctx, r, models.StatusProcessing, sampleRecs(r.ID), warnings))

	recs, err := db.ListRecommendations(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, recs[0].SourceRowNumber)
	require.NotNil(t, recs[0].PotentialSavings)
	assert.InDelta(t, 1200.0, *recs[0].PotentialSavings, 0.001)
	require.NotNil(t, recs[0].CommitmentTermYears)
	assert.Equal(t, 3, *recs[0].CommitmentTermYears)
	assert.True(t, recs[0].IsCommitment)
	assert.Nil(t, recs[1].PotentialSavings, "missing savings stay nil, not zero")
	assert.Equal(t, models.CommitmentUncategorized, recs[1].CommitmentCategory)

	gotWarnings, err := db.ListWarnings(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, gotWarnings, 1)
	assert.Equal(t, 4, gotWarnings[0].Line)

	got, err := db.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	counts, err := db.GetRecommendationCounts(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.ByCategory[models.CategoryCost])
	assert.Equal(t, 1, counts.ByCommitment[models.CommitmentPureReservation3Y])
	assert.Equal(t, 1, counts.Warnings)
}

func TestCompleteIngestRollsBackOnConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := createReport(t, db, models.StatusUploaded)

	// Caller believes the report is processing, but it is still uploaded.
	r.Status = models.StatusCompleted
	err := db.CompleteIngest(ctx, r, models.StatusProcessing, sampleRecs(r.ID), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	recs, err := db.ListRecommendations(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, recs, "records must not be visible when the transition fails")
}

func TestRecommendationPageAndUpdateClassifications(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := createReport(t, db, models.StatusProcessing)

	recs := make([]models.Recommendation, 0, 7)
	for i := 0; i < 7; i++ {
		recs = append(recs, models.Recommendation{
			ReportID:        r.ID,
			SourceRowNumber: i + 2,
			Category:        models.CategoryCost,
			BusinessImpact:  models.ImpactLow,
			Recommendation:  "Consider a savings plan",
		})
	}
	recs[0].CommitmentCategory = models.CommitmentPureSavingsPlan
	r.Status = models.StatusCompleted
	require.NoError(t, db.CompleteIngest(ctx, r, models.StatusProcessing, recs, nil))

	var seen []string
	after := ""
	for {
		page, err := db.RecommendationPage(ctx, PageQuery{Scope: ScopeUncategorizedOnly, AfterID: after, Limit: 3})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			seen = append(seen, rec.ID)
		}
		after = page[len(page)-1].ID
	}
	assert.Len(t, seen, 6)

	updates := []ClassificationUpdate{{
		ID:            seen[0],
		Category:      models.CommitmentPureSavingsPlan,
		IsCommitment:  true,
		IsSavingsPlan: true,
	}}
	require.NoError(t, db.UpdateClassifications(ctx, updates))

	remaining, err := db.RecommendationPage(ctx, PageQuery{Scope: ScopeUncategorizedOnly, Limit: 100})
	require.NoError(t, err)
	assert.Len(t, remaining, 5)

	all, err := db.RecommendationPage(ctx, PageQuery{Scope: ScopeAll, ReportID: r.ID, Limit: 100})
	require.NoError(t, err)
	assert.Len(t, all, 7)
	for _, rec := range all {
		assert.Equal(t, "Consider a savings plan", rec.Recommendation, "source text is never touched")
	}
}

func TestArtifacts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := createReport(t, db, models.StatusGenerating)

	a := &models.Artifact{
		ReportID:   r.ID,
		ReportType: models.ReportCost,
		HTMLRef:    "reports/" + r.ID + "/cost.html",
		PDFRef:     "reports/" + r.ID + "/cost.pdf",
		Engine:     "chrome",
		ChartCount: 3,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, db.SaveArtifact(ctx, a))

	a.Engine = "wkhtmltopdf"
	require.NoError(t, db.SaveArtifact(ctx, a))

	got, err := db.GetArtifact(ctx, r.ID, models.ReportCost)
	require.NoError(t, err)
	assert.Equal(t, "wkhtmltopdf", got.Engine)
	assert.Equal(t, 3, got.ChartCount)

	list, err := db.ListArtifacts(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = db.GetArtifact(ctx, r.ID, models.ReportSecurity)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.DeleteReport(ctx, r.ID))
	list, err = db.ListArtifacts(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

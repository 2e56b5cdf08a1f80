package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/advisor/internal/analysis"
	"github.com/joshsymonds/advisor/internal/artifacts"
	"github.com/joshsymonds/advisor/internal/classifier"
	"github.com/joshsymonds/advisor/internal/convert"
	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/lock"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/report"
	"github.com/joshsymonds/advisor/pkg/logger"
)

type fakeEngine struct {
	err   error
	name  string
	calls int
	mu    sync.Mutex
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Convert(_ context.Context, markup []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("%PDF-1.7 "), markup[:16]...), nil
}

func (f *fakeEngine) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type harness struct {
	svc      *Service
	db       *database.DB
	blobs    *artifacts.FileStore
	locker   *lock.MemoryLocker
	primary  *fakeEngine
	fallback *fakeEngine
	log      *logger.MockLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := database.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		if cerr := db.Close(); cerr != nil {
			t.Logf("failed to close database: %v", cerr)
		}
	})

	log := logger.NewMockLogger()
	blobs, err := artifacts.NewFileStoreWithLogger(t.TempDir(), log)
	require.NoError(t, err)

	renderer, err := report.NewRendererWithLogger(log)
	require.NoError(t, err)

	primary := &fakeEngine{name: "chrome"}
	fallback := &fakeEngine{name: "wkhtmltopdf"}
	conv, err := convert.NewWithLogger(primary, fallback, convert.Options{PrimaryRetries: 1}, log)
	require.NoError(t, err)

	locker := lock.NewMemoryLocker()
	svc, err := NewService(Deps{
		DB:         db,
		Blobs:      blobs,
		Locker:     locker,
		Classifier: classifier.New(classifier.WithLogger(log)),
		Builder:    analysis.NewBuilderWithLogger(analysis.DefaultOptions(), log),
		Renderer:   renderer,
		Converter:  conv,
		Logger:     log,
		BatchSize:  1,
	})
	require.NoError(t, err)

	return &harness{svc: svc, db: db, blobs: blobs, locker: locker, primary: primary, fallback: fallback, log: log}
}

func fixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/advisor_export.csv")
	require.NoError(t, err)
	return data
}

func (h *harness) uploaded(t *testing.T, data []byte) *models.Report {
	t.Helper()
	ctx := context.Background()
	r, err := h.svc.CreateReport(ctx, models.ReportSecurity, "Contoso")
	require.NoError(t, err)
	r, err = h.svc.AttachSource(ctx, r.ID, "export.csv", data)
	require.NoError(t, err)
	require.Equal(t, models.StatusUploaded, r.Status)
	return r
}

func TestEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, fixture(t))

	ing, err := h.svc.Ingest(ctx, r.ID, "")
	require.NoError(t, err)
	assert.False(t, ing.Skipped)
	assert.Equal(t, 2, ing.Records)
	require.Len(t, ing.Warnings, 1)
	assert.Equal(t, models.WarningNormalize, ing.Warnings[0].Kind)
	assert.Equal(t, 4, ing.Warnings[0].Line)

	stored, err := h.db.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Empty(t, stored.ErrorMessage)

	recs, err := h.db.ListRecommendations(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	warnings, err := h.db.ListWarnings(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	var cost *models.Recommendation
	for i := range recs {
		if recs[i].Category == models.CategoryCost {
			cost = &recs[i]
		}
	}
	require.NotNil(t, cost)
	assert.Equal(t, models.CommitmentCombinedSP3Y, cost.CommitmentCategory)
	require.NotNil(t, cost.PotentialSavings)
	assert.InDelta(t, 12345.6, *cost.PotentialSavings, 0.001)

	gen, err := h.svc.Generate(ctx, r.ID, models.ReportSecurity)
	require.NoError(t, err)
	require.NotNil(t, gen.Context.Security)
	assert.Less(t, gen.Context.Security.Score, 100.0)
	assert.Equal(t, models.StatusCompleted, gen.Report.Status)
	assert.Equal(t, "chrome", gen.Artifact.Engine)

	html, err := h.blobs.Get(ctx, gen.Artifact.HTMLRef)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Security Assessment")
	assert.Equal(t, report.CountCharts(html), gen.Artifact.ChartCount)

	pdf, err := h.blobs.Get(ctx, "reports/"+r.ID+"/security.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)

	art, err := h.db.GetArtifact(ctx, r.ID, models.ReportSecurity)
	require.NoError(t, err)
	assert.Equal(t, gen.Artifact.PDFRef, art.PDFRef)
}

func TestIngestIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, fixture(t))

	_, err := h.svc.Ingest(ctx, r.ID, "")
	require.NoError(t, err)

	again, err := h.svc.Ingest(ctx, r.ID, "")
	require.NoError(t, err)
	assert.True(t, again.Skipped)

	recs, err := h.db.ListRecommendations(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestIngestNoValidRowsFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, []byte("Category,Recommendation\nUnknown,Do something\nCost,\n"))

	_, err := h.svc.Ingest(ctx, r.ID, "")
	require.ErrorIs(t, err, ErrNoValidRows)
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.False(t, jobErr.Retryable)

	stored, err := h.db.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "no valid rows")
	assert.NotNil(t, stored.FailedAt)
}

func TestIngestRetriesFailedReport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r, err := h.svc.CreateReport(ctx, models.ReportCost, "")
	require.NoError(t, err)

	_, err = h.svc.Ingest(ctx, r.ID, "uploads/"+r.ID+"/missing.csv")
	require.ErrorIs(t, err, artifacts.ErrNotFound)

	stored, err := h.db.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "missing.csv")

	key := "uploads/" + r.ID + "/export.csv"
	require.NoError(t, h.blobs.Put(ctx, key, fixture(t), artifacts.ContentTypeCSV))

	res, err := h.svc.Ingest(ctx, r.ID, key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Report.Status)
	assert.Equal(t, 1, res.Report.RetryCount)
	assert.Empty(t, res.Report.ErrorMessage)
}

func TestIngestRetryExhausted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, fixture(t))

	r.RetryCount = models.MaxRetries
	require.NoError(t, r.Fail("boom", time.Now()))
	require.NoError(t, h.db.SaveReportState(ctx, r, models.StatusUploaded))

	_, err := h.svc.Ingest(ctx, r.ID, "")
	require.ErrorIs(t, err, ErrRetryExhausted)

	stored, err := h.db.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, models.MaxRetries, stored.RetryCount)
}

func TestJobInFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, fixture(t))

	held, err := h.locker.Acquire(ctx, lock.ReportKey(r.ID), time.Minute)
	require.NoError(t, err)
	defer func() { _ = held.Release(ctx) }()

	_, err = h.svc.Ingest(ctx, r.ID, "")
	require.ErrorIs(t, err, ErrJobInFlight)
	_, err = h.svc.Generate(ctx, r.ID, "")
	require.ErrorIs(t, err, ErrJobInFlight)
}

func TestStaleJobIsRecovered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, fixture(t))

	require.NoError(t, r.Transition(models.StatusProcessing, time.Now()))
	require.NoError(t, h.db.SaveReportState(ctx, r, models.StatusUploaded))

	res, err := h.svc.Ingest(ctx, r.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Report.Status)
	assert.Equal(t, 1, res.Report.RetryCount)
	assert.True(t, h.log.HasMessage("WARN", "Recovered interrupted job"))
}

func TestGenerateFallsBackAndFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, fixture(t))
	_, err := h.svc.Ingest(ctx, r.ID, "")
	require.NoError(t, err)

	h.primary.fail(errors.New("chrome: context deadline exceeded"))
	res, err := h.svc.Generate(ctx, r.ID, models.ReportCost)
	require.NoError(t, err)
	assert.Equal(t, "wkhtmltopdf", res.Artifact.Engine)
	assert.Positive(t, res.Artifact.ChartCount)

	h.fallback.fail(errors.New("exit status 1"))
	_, err = h.svc.Generate(ctx, r.ID, models.ReportExecutive)
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.True(t, jobErr.Retryable)

	stored, err := h.db.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "context deadline exceeded")
	assert.Contains(t, stored.ErrorMessage, "exit status 1")

	h.fallback.fail(nil)
	res, err = h.svc.Generate(ctx, r.ID, models.ReportExecutive)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Report.Status)
	assert.Equal(t, 1, res.Report.RetryCount)
}

func TestGenerateSkipsExistingArtifact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, fixture(t))
	_, err := h.svc.Ingest(ctx, r.ID, "")
	require.NoError(t, err)

	_, err = h.svc.Generate(ctx, r.ID, "")
	require.NoError(t, err)
	calls := h.primary.calls

	again, err := h.svc.Generate(ctx, r.ID, models.ReportSecurity)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, calls, h.primary.calls)
}

func TestGenerateRequiresIngest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, fixture(t))

	_, err := h.svc.Generate(ctx, r.ID, models.ReportCost)
	require.ErrorIs(t, err, ErrNotIngested)

	_, err = h.svc.Generate(ctx, r.ID, "weekly")
	require.Error(t, err)
}

func TestRecategorize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, fixture(t))
	_, err := h.svc.Ingest(ctx, r.ID, "")
	require.NoError(t, err)

	recs, err := h.db.ListRecommendations(ctx, r.ID)
	require.NoError(t, err)
	var updates []database.ClassificationUpdate
	for _, rec := range recs {
		updates = append(updates, database.ClassificationUpdate{ID: rec.ID, Category: models.CommitmentUncategorized})
	}
	require.NoError(t, h.db.UpdateClassifications(ctx, updates))

	dry, err := h.svc.Recategorize(ctx, RecategorizeFilter{Scope: database.ScopeUncategorizedOnly, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, dry.Scanned)
	assert.Equal(t, 1, dry.Updated)

	res, err := h.svc.Recategorize(ctx, RecategorizeFilter{Scope: database.ScopeAll, ReportID: r.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.ByCategory[models.CommitmentCombinedSP3Y])
	assert.Equal(t, 2, res.Batches)

	again, err := h.svc.Recategorize(ctx, RecategorizeFilter{Scope: database.ScopeAll})
	require.NoError(t, err)
	assert.Zero(t, again.Updated)

	_, err = h.svc.Recategorize(ctx, RecategorizeFilter{Scope: "some"})
	require.Error(t, err)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, fixture(t))

	require.NoError(t, h.svc.Cancel(ctx, r.ID))
	stored, err := h.db.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)

	_, err = h.svc.Ingest(ctx, r.ID, "")
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	require.ErrorIs(t, h.svc.Cancel(ctx, r.ID), models.ErrInvalidTransition)
}

func TestAttachSourceReplacesUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.uploaded(t, []byte("old"))

	r, err := h.svc.AttachSource(ctx, r.ID, "../../etc/new.csv", fixture(t))
	require.NoError(t, err)
	assert.Equal(t, "uploads/"+r.ID+"/new.csv", r.SourceRef)
	assert.Equal(t, models.StatusUploaded, r.Status)
}

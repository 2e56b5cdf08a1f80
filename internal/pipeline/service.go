// Package pipeline runs the report jobs: ingest, generate and the
// recategorize backfill. Every job holds the report's lock and moves the
// report through its state machine with compare-and-set updates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joshsymonds/advisor/internal/analysis"
	"github.com/joshsymonds/advisor/internal/artifacts"
	"github.com/joshsymonds/advisor/internal/classifier"
	"github.com/joshsymonds/advisor/internal/convert"
	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/lock"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/normalize"
	"github.com/joshsymonds/advisor/internal/report"
	"github.com/joshsymonds/advisor/internal/tabular"
	"github.com/joshsymonds/advisor/pkg/logger"
	"github.com/joshsymonds/advisor/pkg/pathutil"
)

// DefaultLockTTL bounds how long a crashed worker can block a report.
const DefaultLockTTL = 10 * time.Minute

// InterruptedMessage is stored on reports whose job died mid-flight.
const InterruptedMessage = "interrupted: job stopped before finishing"

var (
	// ErrJobInFlight is returned when another job holds the report's lock.
	ErrJobInFlight = errors.New("another job is running for this report")
	// ErrRetryExhausted is returned once a report used every retry.
	ErrRetryExhausted = models.ErrRetryExhausted
	// ErrNoValidRows means ingestion left nothing to store.
	ErrNoValidRows = errors.New("input contains no valid rows")
	// ErrNotIngested means generate ran before a successful ingest.
	ErrNotIngested = errors.New("report has no ingested records")
	// ErrNoSource means ingest has no file to read.
	ErrNoSource = errors.New("report has no source file")
)

// JobError is a fatal job failure. The report already carries Error() as
// its error_message.
type JobError struct {
	Err       error
	Kind      string
	ReportID  string
	Retryable bool
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ReportID, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Classifier assigns commitment categories.
type Classifier interface {
	ClassifyContext(ctx context.Context, recommendation, benefits string) classifier.Classification
}

// DocumentConverter turns markup into PDF.
type DocumentConverter interface {
	Convert(ctx context.Context, markup []byte) (*convert.Result, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	DB         *database.DB
	Blobs      artifacts.Store
	Locker     lock.Locker
	Parser     *tabular.Parser
	Normalizer *normalize.Normalizer
	Classifier Classifier
	Builder    *analysis.Builder
	Renderer   *report.Renderer
	Converter  DocumentConverter
	Logger     logger.Logger
	LockTTL    time.Duration
	BatchSize  int
}

// Service runs jobs against stored reports.
type Service struct {
	db         *database.DB
	blobs      artifacts.Store
	locker     lock.Locker
	parser     *tabular.Parser
	normalizer *normalize.Normalizer
	classifier Classifier
	builder    *analysis.Builder
	renderer   *report.Renderer
	converter  DocumentConverter
	logger     logger.Logger
	now        func() time.Time
	lockTTL    time.Duration
	batchSize  int
}

// NewService validates deps and creates a Service.
func NewService(d Deps) (*Service, error) {
	switch {
	case d.DB == nil:
		return nil, errors.New("pipeline: database is required")
	case d.Blobs == nil:
		return nil, errors.New("pipeline: blob store is required")
	case d.Locker == nil:
		return nil, errors.New("pipeline: locker is required")
	case d.Classifier == nil:
		return nil, errors.New("pipeline: classifier is required")
	}
	if d.Logger == nil {
		d.Logger = logger.GetGlobalLogger()
	}
	if d.Parser == nil {
		d.Parser = tabular.New(tabular.Options{}, d.Logger)
	}
	if d.Normalizer == nil {
		d.Normalizer = normalize.New("")
	}
	if d.Builder == nil {
		d.Builder = analysis.NewBuilderWithLogger(analysis.DefaultOptions(), d.Logger)
	}
	if d.LockTTL <= 0 {
		d.LockTTL = DefaultLockTTL
	}
	if d.BatchSize <= 0 {
		d.BatchSize = 500
	}

	return &Service{
		db:         d.DB,
		blobs:      d.Blobs,
		locker:     d.Locker,
		parser:     d.Parser,
		normalizer: d.Normalizer,
		classifier: d.Classifier,
		builder:    d.Builder,
		renderer:   d.Renderer,
		converter:  d.Converter,
		logger:     d.Logger,
		now:        func() time.Time { return time.Now().UTC() },
		lockTTL:    d.LockTTL,
		batchSize:  d.BatchSize,
	}, nil
}

// CreateReport registers a new pending report.
func (s *Service) CreateReport(ctx context.Context, reportType models.ReportType, title string) (*models.Report, error) {
	if reportType == "" {
		reportType = models.ReportDetailed
	}
	if !reportType.Valid() {
		return nil, fmt.Errorf("unknown report type %q", reportType)
	}

	now := s.now()
	r := &models.Report{
		ID:         uuid.NewString(),
		Title:      strings.TrimSpace(title),
		ReportType: reportType,
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.CreateReport(ctx, r); err != nil {
		return nil, err
	}
	logger.WithReport(s.logger, r.ID).Info("Created report", "report_type", reportType)
	return r, nil
}

// GetReport returns a stored report.
func (s *Service) GetReport(ctx context.Context, id string) (*models.Report, error) {
	return s.db.GetReport(ctx, id)
}

// AttachSource stores an uploaded export and marks the report uploaded.
// A report that is already uploaded has its source replaced.
func (s *Service) AttachSource(ctx context.Context, reportID, name string, data []byte) (*models.Report, error) {
	var out *models.Report
	err := s.withReportLock(ctx, reportID, func(ctx context.Context) error {
		r, err := s.db.GetReport(ctx, reportID)
		if err != nil {
			return err
		}
		if r.Status != models.StatusPending && r.Status != models.StatusUploaded {
			return fmt.Errorf("%w: cannot attach a source to a %s report", models.ErrInvalidTransition, r.Status)
		}

		name = path.Base(strings.ReplaceAll(name, "\\", "/"))
		if name == "" || name == "." || name == "/" {
			name = "source.csv"
		}
		key := pathutil.UploadKey(reportID, name)
		if err := s.blobs.Put(ctx, key, data, artifacts.ContentTypeCSV); err != nil {
			return fmt.Errorf("storing upload: %w", err)
		}

		from := r.Status
		r.SourceRef = key
		if from == models.StatusPending {
			if err := r.Transition(models.StatusUploaded, s.now()); err != nil {
				return err
			}
		} else {
			r.UpdatedAt = s.now()
		}
		if err := s.db.SaveReportState(ctx, r, from); err != nil {
			return err
		}
		logger.WithReport(s.logger, reportID).Info("Attached source", "key", key, "bytes", len(data))
		out = r
		return nil
	})
	return out, err
}

// Cancel moves a report to cancelled. A running job notices at its next
// state change and stops.
func (s *Service) Cancel(ctx context.Context, reportID string) error {
	r, err := s.db.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	from := r.Status
	if err := r.Transition(models.StatusCancelled, s.now()); err != nil {
		return err
	}
	if err := s.db.SaveReportState(ctx, r, from); err != nil {
		return err
	}
	logger.WithReport(s.logger, reportID).Info("Cancelled report", "from", from)
	return nil
}

func (s *Service) withReportLock(ctx context.Context, reportID string, fn func(ctx context.Context) error) error {
	err := lock.WithLock(ctx, s.locker, lock.ReportKey(reportID), s.lockTTL, fn)
	if errors.Is(err, lock.ErrLockNotAcquired) {
		return fmt.Errorf("report %s: %w", reportID, ErrJobInFlight)
	}
	return err
}

// recoverStale fails a report left in flight by a dead worker. The caller
// holds the lock, so nothing else can be running.
func (s *Service) recoverStale(ctx context.Context, r *models.Report) error {
	if !r.Status.InFlight() {
		return nil
	}
	from := r.Status
	if err := r.Fail(InterruptedMessage, s.now()); err != nil {
		return err
	}
	if err := s.db.SaveReportState(ctx, r, from); err != nil {
		return err
	}
	logger.WithReport(s.logger, r.ID).Warn("Recovered interrupted job", "status", from)
	return nil
}

// retry re-opens a failed report, counting the attempt.
func (s *Service) retry(ctx context.Context, r *models.Report) error {
	if err := r.Retry(s.now()); err != nil {
		return err
	}
	if err := s.db.SaveReportState(ctx, r, models.StatusFailed); err != nil {
		return err
	}
	logger.WithReport(s.logger, r.ID).Info("Retrying report", "retry_count", r.RetryCount, "max_retries", models.MaxRetries)
	return nil
}

// fail records a fatal job error on the report.
func (s *Service) fail(ctx context.Context, r *models.Report, kind string, cause error, retryable bool) error {
	jobErr := &JobError{Kind: kind, ReportID: r.ID, Err: cause, Retryable: retryable}
	log := logger.WithReport(s.logger, r.ID)

	from := r.Status
	if err := r.Fail(jobErr.Error(), s.now()); err != nil {
		log.Error("Cannot mark report failed", "status", from, "error", err)
		return jobErr
	}
	if err := s.db.SaveReportState(context.WithoutCancel(ctx), r, from); err != nil {
		log.Error("Failed to record job failure", "error", err)
	}
	log.Error("Job failed", "kind", kind, "error", cause, "retryable", retryable)
	return jobErr
}

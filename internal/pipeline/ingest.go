package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshsymonds/advisor/internal/artifacts"
	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/metrics"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/pkg/logger"
)

// IngestResult describes a finished ingest job.
type IngestResult struct {
	Report   *models.Report
	Warnings []models.IngestWarning
	Encoding string
	Records  int
	// Skipped is set when the report was already ingested.
	Skipped bool
}

// Ingest parses, normalizes and classifies the report's source file.
// fileRef overrides the stored source reference when set. Re-running a
// completed ingest is a no-op; a failed one is retried under the cap.
func (s *Service) Ingest(ctx context.Context, reportID, fileRef string) (*IngestResult, error) {
	start := time.Now()
	var res *IngestResult

	err := s.withReportLock(ctx, reportID, func(ctx context.Context) error {
		r, err := s.db.GetReport(ctx, reportID)
		if err != nil {
			return err
		}
		run, err := s.beginIngest(ctx, r, fileRef)
		if err != nil {
			return err
		}
		if !run {
			logger.WithReport(s.logger, reportID).Info("Report already ingested, skipping")
			res = &IngestResult{Report: r, Skipped: true}
			return nil
		}
		res, err = s.runIngest(ctx, r)
		return err
	})

	metrics.RecordJob("ingest", jobStatus(res != nil && res.Skipped, err), time.Since(start).Seconds())
	return res, err
}

// beginIngest moves r into processing. It returns false when there is
// nothing to do.
func (s *Service) beginIngest(ctx context.Context, r *models.Report, fileRef string) (bool, error) {
	if err := s.recoverStale(ctx, r); err != nil {
		return false, err
	}

	switch r.Status {
	case models.StatusCompleted:
		return false, nil
	case models.StatusCancelled:
		return false, fmt.Errorf("%w: report %s is cancelled", models.ErrInvalidTransition, r.ID)
	case models.StatusFailed:
		if !r.CanRetry() {
			return false, fmt.Errorf("report %s: %w", r.ID, ErrRetryExhausted)
		}
		if fileRef != "" {
			r.SourceRef = fileRef
		}
		return true, s.retry(ctx, r)
	}

	if fileRef != "" {
		r.SourceRef = fileRef
	}
	if r.SourceRef == "" {
		return false, fmt.Errorf("report %s: %w", r.ID, ErrNoSource)
	}

	from := r.Status
	now := s.now()
	if r.Status == models.StatusPending {
		if err := r.Transition(models.StatusUploaded, now); err != nil {
			return false, err
		}
	}
	if err := r.Transition(models.StatusProcessing, now); err != nil {
		return false, err
	}
	if err := s.db.SaveReportState(ctx, r, from); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) runIngest(ctx context.Context, r *models.Report) (*IngestResult, error) {
	log := logger.WithReport(s.logger, r.ID)

	data, err := s.blobs.Get(ctx, r.SourceRef)
	if err != nil {
		return nil, s.fail(ctx, r, "ingest", fmt.Errorf("reading source %s: %w", r.SourceRef, err), !errors.Is(err, artifacts.ErrNotFound))
	}

	parsed, err := s.parser.Parse(data)
	if err != nil {
		return nil, s.fail(ctx, r, "ingest", fmt.Errorf("parsing source: %w", err), false)
	}

	recs, rowErrs := s.normalizer.NormalizeAll(parsed)
	warnings := make([]models.IngestWarning, 0, len(parsed.Warnings)+len(rowErrs))
	repaired := 0
	for _, w := range parsed.Warnings {
		if w.Repaired {
			repaired++
		}
		warnings = append(warnings, models.IngestWarning{ReportID: r.ID, Kind: models.WarningParse, Reason: w.Reason, Line: w.Line})
	}
	for _, e := range rowErrs {
		warnings = append(warnings, models.IngestWarning{
			ReportID: r.ID,
			Kind:     models.WarningNormalize,
			Reason:   e.Field + ": " + e.Reason,
			Line:     e.Row,
		})
		log.Warn("Skipped row", "line", e.Row, "field", e.Field, "reason", e.Reason)
	}
	metrics.RecordRows(len(recs), len(warnings)-repaired)

	if len(recs) == 0 {
		return nil, s.fail(ctx, r, "ingest", fmt.Errorf("%w (%d rows skipped)", ErrNoValidRows, len(warnings)), false)
	}

	uncategorized := 0
	for i := range recs {
		recs[i].ReportID = r.ID
		cls := s.classifier.ClassifyContext(ctx, recs[i].Recommendation, recs[i].PotentialBenefits)
		cls.Apply(&recs[i])
		metrics.RecordClassification(string(cls.Category))
		if cls.Category == models.CommitmentUncategorized && recs[i].Category == models.CategoryCost {
			uncategorized++
		}
	}
	if uncategorized > 0 {
		log.Info("Cost recommendations without a commitment category", "count", uncategorized)
	}

	before := *r
	from := r.Status
	if err := r.Transition(models.StatusCompleted, s.now()); err != nil {
		return nil, err
	}
	if err := s.db.CompleteIngest(ctx, r, from, recs, warnings); err != nil {
		*r = before
		if errors.Is(err, database.ErrConflict) {
			return nil, &JobError{Kind: "ingest", ReportID: r.ID, Err: fmt.Errorf("report changed while ingesting: %w", err)}
		}
		return nil, s.fail(ctx, r, "ingest", fmt.Errorf("storing records: %w", err), true)
	}

	log.Info("Ingested report",
		"records", len(recs),
		"warnings", len(warnings),
		"encoding", parsed.Encoding,
		"delimiter", string(parsed.Delimiter))
	return &IngestResult{
		Report:   r,
		Records:  len(recs),
		Warnings: warnings,
		Encoding: parsed.Encoding,
	}, nil
}

func jobStatus(skipped bool, err error) string {
	switch {
	case errors.Is(err, ErrJobInFlight):
		return "in_flight"
	case err != nil:
		return "failed"
	case skipped:
		return "skipped"
	default:
		return "completed"
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshsymonds/advisor/internal/analysis"
	"github.com/joshsymonds/advisor/internal/artifacts"
	"github.com/joshsymonds/advisor/internal/convert"
	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/metrics"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/pkg/logger"
	"github.com/joshsymonds/advisor/pkg/pathutil"
)

// GenerateResult describes a finished generate job.
type GenerateResult struct {
	Report   *models.Report
	Artifact *models.Artifact
	// Context is nil when the job was skipped.
	Context *analysis.ReportContext
	Skipped bool
}

// Generate renders reportType for an ingested report and stores the HTML
// and PDF artifacts. An empty reportType means the report's own type.
// Re-running a type that already has artifacts is a no-op.
func (s *Service) Generate(ctx context.Context, reportID string, reportType models.ReportType) (*GenerateResult, error) {
	if s.renderer == nil || s.converter == nil {
		return nil, errors.New("pipeline: renderer and converter are required to generate")
	}

	start := time.Now()
	var res *GenerateResult

	err := s.withReportLock(ctx, reportID, func(ctx context.Context) error {
		r, err := s.db.GetReport(ctx, reportID)
		if err != nil {
			return err
		}
		rt := reportType
		if rt == "" {
			rt = r.ReportType
		}
		if !rt.Valid() {
			return fmt.Errorf("unknown report type %q", rt)
		}

		run, existing, err := s.beginGenerate(ctx, r, rt)
		if err != nil {
			return err
		}
		if !run {
			logger.WithReport(s.logger, reportID).Info("Report already generated, skipping", "report_type", rt)
			res = &GenerateResult{Report: r, Artifact: existing, Skipped: true}
			return nil
		}
		res, err = s.runGenerate(ctx, r, rt)
		return err
	})

	metrics.RecordJob("generate", jobStatus(res != nil && res.Skipped, err), time.Since(start).Seconds())
	return res, err
}

// beginGenerate moves r into generating. It returns false with the stored
// artifact when rt was already produced.
func (s *Service) beginGenerate(ctx context.Context, r *models.Report, rt models.ReportType) (bool, *models.Artifact, error) {
	if err := s.recoverStale(ctx, r); err != nil {
		return false, nil, err
	}

	switch r.Status {
	case models.StatusCompleted:
		existing, err := s.db.GetArtifact(ctx, r.ID, rt)
		switch {
		case err == nil && existing.PDFRef != "":
			return false, existing, nil
		case err != nil && !errors.Is(err, database.ErrNotFound):
			return false, nil, err
		}

	case models.StatusFailed:
		counts, err := s.db.GetRecommendationCounts(ctx, r.ID)
		if err != nil {
			return false, nil, err
		}
		if counts.Total == 0 {
			return false, nil, fmt.Errorf("report %s: %w", r.ID, ErrNotIngested)
		}
		if !r.CanRetry() {
			return false, nil, fmt.Errorf("report %s: %w", r.ID, ErrRetryExhausted)
		}
		if err := s.retry(ctx, r); err != nil {
			return false, nil, err
		}

	case models.StatusCancelled:
		return false, nil, fmt.Errorf("%w: report %s is cancelled", models.ErrInvalidTransition, r.ID)

	default:
		return false, nil, fmt.Errorf("report %s is %s: %w", r.ID, r.Status, ErrNotIngested)
	}

	from := r.Status
	if err := r.Transition(models.StatusGenerating, s.now()); err != nil {
		return false, nil, err
	}
	if err := s.db.SaveReportState(ctx, r, from); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}

func (s *Service) runGenerate(ctx context.Context, r *models.Report, rt models.ReportType) (*GenerateResult, error) {
	log := logger.WithReport(s.logger, r.ID).With("report_type", rt)
	kind := "generate " + string(rt)

	recs, err := s.db.ListRecommendations(ctx, r.ID)
	if err != nil {
		return nil, s.fail(ctx, r, kind, fmt.Errorf("loading records: %w", err), true)
	}
	warnings, err := s.db.ListWarnings(ctx, r.ID)
	if err != nil {
		return nil, s.fail(ctx, r, kind, fmt.Errorf("loading warnings: %w", err), true)
	}

	rc, err := s.builder.Build(recs, rt, analysis.Meta{ReportID: r.ID, Title: r.Title, Warnings: len(warnings)})
	if err != nil {
		return nil, s.fail(ctx, r, kind, fmt.Errorf("building context: %w", err), false)
	}
	doc, err := s.renderer.Render(rc)
	if err != nil {
		return nil, s.fail(ctx, r, kind, fmt.Errorf("rendering: %w", err), false)
	}

	htmlKey := pathutil.ArtifactKey(r.ID, string(rt), "html")
	if err := s.blobs.Put(ctx, htmlKey, doc.HTML, artifacts.ContentTypeHTML); err != nil {
		return nil, s.fail(ctx, r, kind, fmt.Errorf("storing html: %w", err), true)
	}

	converted, err := s.converter.Convert(ctx, doc.HTML)
	if err != nil {
		retryable := true
		var convErr *convert.ConversionError
		if errors.As(err, &convErr) {
			retryable = convErr.Retryable()
		}
		return nil, s.fail(ctx, r, kind, err, retryable)
	}

	pdfKey := pathutil.ArtifactKey(r.ID, string(rt), "pdf")
	if err := s.blobs.Put(ctx, pdfKey, converted.PDF, artifacts.ContentTypePDF); err != nil {
		return nil, s.fail(ctx, r, kind, fmt.Errorf("storing pdf: %w", err), true)
	}

	artifact := &models.Artifact{
		ReportID:   r.ID,
		ReportType: rt,
		HTMLRef:    htmlKey,
		PDFRef:     pdfKey,
		Engine:     converted.Engine,
		ChartCount: converted.ChartCount,
		CreatedAt:  s.now(),
	}
	if err := s.db.SaveArtifact(ctx, artifact); err != nil {
		return nil, s.fail(ctx, r, kind, fmt.Errorf("recording artifact: %w", err), true)
	}

	before := *r
	from := r.Status
	r.HTMLRef, r.PDFRef, r.Engine = htmlKey, pdfKey, converted.Engine
	if err := r.Transition(models.StatusCompleted, s.now()); err != nil {
		return nil, err
	}
	if err := s.db.SaveReportState(ctx, r, from); err != nil {
		*r = before
		if errors.Is(err, database.ErrConflict) {
			return nil, &JobError{Kind: kind, ReportID: r.ID, Err: fmt.Errorf("report changed while generating: %w", err)}
		}
		return nil, s.fail(ctx, r, kind, fmt.Errorf("saving report: %w", err), true)
	}

	log.Info("Generated report",
		"engine", converted.Engine,
		"attempts", converted.Attempts,
		"charts", converted.ChartCount,
		"html_bytes", len(doc.HTML),
		"pdf_bytes", len(converted.PDF))
	return &GenerateResult{Report: r, Artifact: artifact, Context: rc}, nil
}

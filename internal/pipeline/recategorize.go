package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/lock"
	"github.com/joshsymonds/advisor/internal/metrics"
	"github.com/joshsymonds/advisor/internal/models"
)

// RecategorizeFilter selects the records a backfill visits.
type RecategorizeFilter struct {
	Scope database.RecategorizeScope
	// ReportID limits the backfill to one report when set.
	ReportID string
	DryRun   bool
}

// RecategorizeResult summarizes a backfill.
type RecategorizeResult struct {
	ByCategory map[models.CommitmentCategory]int
	Scanned    int
	Updated    int
	Batches    int
}

const recategorizeLockKey = "recategorize"

// Recategorize re-runs classification over stored records without reading
// the source files again. Only the derived commitment fields change.
func (s *Service) Recategorize(ctx context.Context, filter RecategorizeFilter) (*RecategorizeResult, error) {
	if filter.Scope == "" {
		filter.Scope = database.ScopeUncategorizedOnly
	}
	if !filter.Scope.Valid() {
		return nil, fmt.Errorf("unknown recategorize filter %q", filter.Scope)
	}

	start := time.Now()
	res := &RecategorizeResult{ByCategory: make(map[models.CommitmentCategory]int)}
	err := lock.WithLock(ctx, s.locker, recategorizeLockKey, s.lockTTL, func(ctx context.Context) error {
		return s.recategorize(ctx, filter, res)
	})
	if errors.Is(err, lock.ErrLockNotAcquired) {
		err = fmt.Errorf("recategorize: %w", ErrJobInFlight)
	}

	metrics.RecordJob("recategorize", jobStatus(false, err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	s.logger.Info("Recategorized records",
		"scope", filter.Scope,
		"report_id", filter.ReportID,
		"scanned", res.Scanned,
		"updated", res.Updated,
		"dry_run", filter.DryRun)
	return res, nil
}

func (s *Service) recategorize(ctx context.Context, filter RecategorizeFilter, res *RecategorizeResult) error {
	q := database.PageQuery{Scope: filter.Scope, ReportID: filter.ReportID, Limit: s.batchSize}

	// Keyset paging by id stays correct while uncategorized rows drop out
	// of the scope as they are updated.
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.db.RecommendationPage(ctx, q)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		res.Batches++

		var updates []database.ClassificationUpdate
		for i := range page {
			rec := &page[i]
			res.Scanned++
			cls := s.classifier.ClassifyContext(ctx, rec.Recommendation, rec.PotentialBenefits)
			if !cls.Differs(rec) {
				continue
			}
			res.ByCategory[cls.Category]++
			updates = append(updates, database.ClassificationUpdate{
				ID:            rec.ID,
				Category:      cls.Category,
				IsCommitment:  cls.IsCommitment,
				IsSavingsPlan: cls.IsSavingsPlan,
				TermYears:     cls.TermYears,
			})
		}

		if len(updates) > 0 && !filter.DryRun {
			if err := s.db.UpdateClassifications(ctx, updates); err != nil {
				return fmt.Errorf("updating batch %d: %w", res.Batches, err)
			}
		}
		res.Updated += len(updates)
		s.logger.Debug("Recategorized batch", "batch", res.Batches, "size", len(page), "updated", len(updates))

		q.AfterID = page[len(page)-1].ID
		if len(page) < q.Limit {
			return nil
		}
	}
}

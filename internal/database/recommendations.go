package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/joshsymonds/advisor/internal/models"
)

// chunkSize bounds the rows per multi-value INSERT so the statement stays
// below the drivers' bind parameter limits.
const chunkSize = 500

var recommendationColumns = []string{
	"id", "report_id", "source_row_number", "category", "business_impact",
	"severity", "recommendation", "description", "potential_benefits",
	"subscription_id", "subscription_name", "resource_group", "resource_name",
	"resource_type", "potential_savings", "currency", "retirement_date",
	"retirement_feature", "is_commitment", "commitment_term_years",
	"is_savings_plan", "commitment_category", "created_at", "updated_at",
}

func recommendationValues(r *models.Recommendation) []any {
	return []any{
		r.ID, r.ReportID, r.SourceRowNumber, r.Category, r.BusinessImpact,
		r.Severity, r.Recommendation, r.Description, r.PotentialBenefits,
		r.SubscriptionID, r.SubscriptionName, r.ResourceGroup, r.ResourceName,
		r.ResourceType, r.PotentialSavings, r.Currency, r.RetirementDate,
		r.RetirementFeature, r.IsCommitment, r.CommitmentTermYears,
		r.IsSavingsPlan, r.CommitmentCategory, r.CreatedAt, r.UpdatedAt,
	}
}

// insertRecommendations assigns missing IDs and timestamps and writes recs
// in chunks within tx.
func (db *DB) insertRecommendations(ctx context.Context, tx *sqlx.Tx, recs []models.Recommendation) error {
	now := time.Now().UTC()
	for i := 0; i < len(recs); i += chunkSize {
		end := min(i+chunkSize, len(recs))

		ib := db.flavor.NewInsertBuilder()
		ib.InsertInto("recommendations")
		ib.Cols(recommendationColumns...)
		for j := i; j < end; j++ {
			rec := &recs[j]
			if rec.ID == "" {
				rec.ID = uuid.NewString()
			}
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = now
			}
			rec.UpdatedAt = now
			if rec.CommitmentCategory == "" {
				rec.CommitmentCategory = models.CommitmentUncategorized
			}
			ib.Values(recommendationValues(rec)...)
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting recommendations %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (db *DB) insertWarnings(ctx context.Context, tx *sqlx.Tx, warnings []models.IngestWarning) error {
	for i := 0; i < len(warnings); i += chunkSize {
		end := min(i+chunkSize, len(warnings))

		ib := db.flavor.NewInsertBuilder()
		ib.InsertInto("report_warnings")
		ib.Cols("id", "report_id", "kind", "line", "reason")
		for _, w := range warnings[i:end] {
			ib.Values(uuid.NewString(), w.ReportID, w.Kind, w.Line, w.Reason)
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting warnings %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// ListRecommendations returns a report's recommendations in source order.
func (db *DB) ListRecommendations(ctx context.Context, reportID string) ([]models.Recommendation, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(recommendationColumns...)
	sb.From("recommendations")
	sb.Where(sb.Equal("report_id", reportID))
	sb.OrderBy("source_row_number", "id")

	query, args := sb.Build()
	var recs []models.Recommendation
	if err := db.conn.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	return recs, nil
}

// ListWarnings returns a report's ingest warnings ordered by line.
func (db *DB) ListWarnings(ctx context.Context, reportID string) ([]models.IngestWarning, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select("report_id", "kind", "line", "reason")
	sb.From("report_warnings")
	sb.Where(sb.Equal("report_id", reportID))
	sb.OrderBy("line", "kind")

	query, args := sb.Build()
	var warnings []models.IngestWarning
	if err := db.conn.SelectContext(ctx, &warnings, query, args...); err != nil {
		return nil, fmt.Errorf("querying warnings: %w", err)
	}
	return warnings, nil
}

// RecommendationPage returns the next keyset page after q.AfterID.
func (db *DB) RecommendationPage(ctx context.Context, q PageQuery) ([]models.Recommendation, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = chunkSize
	}

	sb := db.flavor.NewSelectBuilder()
	sb.Select(recommendationColumns...)
	sb.From("recommendations")

	var where []string
	if q.AfterID != "" {
		where = append(where, sb.GreaterThan("id", q.AfterID))
	}
	if q.ReportID != "" {
		where = append(where, sb.Equal("report_id", q.ReportID))
	}
	if q.Scope == ScopeUncategorizedOnly {
		where = append(where, sb.Equal("commitment_category", models.CommitmentUncategorized))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("id")
	sb.Limit(limit)

	query, args := sb.Build()
	var recs []models.Recommendation
	if err := db.conn.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("querying recommendation page: %w", err)
	}
	return recs, nil
}

// UpdateClassifications writes only the derived commitment fields.
func (db *DB) UpdateClassifications(ctx context.Context, updates []ClassificationUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	now := time.Now().UTC()

	return db.InTransaction(ctx, func(tx *sqlx.Tx) error {
		for _, u := range updates {
			ub := db.flavor.NewUpdateBuilder()
			ub.Update("recommendations")
			ub.Set(
				ub.Assign("is_commitment", u.IsCommitment),
				ub.Assign("commitment_term_years", u.TermYears),
				ub.Assign("is_savings_plan", u.IsSavingsPlan),
				ub.Assign("commitment_category", u.Category),
				ub.Assign("updated_at", now),
			)
			ub.Where(ub.Equal("id", u.ID))

			query, args := ub.Build()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("updating classification for %s: %w", u.ID, err)
			}
		}
		return nil
	})
}

// GetRecommendationCounts summarizes the stored rows of a report.
func (db *DB) GetRecommendationCounts(ctx context.Context, reportID string) (*RecommendationCounts, error) {
	counts := &RecommendationCounts{
		ByCategory:   make(map[models.Category]int),
		ByCommitment: make(map[models.CommitmentCategory]int),
	}

	type bucket struct {
		Key   string `db:"bucket_key"`
		Count int    `db:"n"`
	}

	group := func(column string, fn func(b bucket)) error {
		sb := db.flavor.NewSelectBuilder()
		sb.Select(sb.As(column, "bucket_key"), sb.As("COUNT(*)", "n"))
		sb.From("recommendations")
		sb.Where(sb.Equal("report_id", reportID))
		sb.GroupBy(column)

		query, args := sb.Build()
		var buckets []bucket
		if err := db.conn.SelectContext(ctx, &buckets, query, args...); err != nil {
			return fmt.Errorf("counting by %s: %w", column, err)
		}
		for _, b := range buckets {
			fn(b)
		}
		return nil
	}

	if err := group("category", func(b bucket) {
		counts.ByCategory[models.Category(b.Key)] = b.Count
		counts.Total += b.Count
	}); err != nil {
		return nil, err
	}
	if err := group("commitment_category", func(b bucket) {
		counts.ByCommitment[models.CommitmentCategory(b.Key)] = b.Count
	}); err != nil {
		return nil, err
	}

	query := db.conn.Rebind(`SELECT COUNT(*) FROM report_warnings WHERE report_id = ?`)
	if err := db.conn.GetContext(ctx, &counts.Warnings, query, reportID); err != nil {
		return nil, fmt.Errorf("counting warnings: %w", err)
	}

	return counts, nil
}

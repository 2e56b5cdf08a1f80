package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/joshsymonds/advisor/internal/models"
)

var reportColumns = []string{
	"id", "title", "report_type", "status", "source_ref", "html_ref", "pdf_ref",
	"engine", "error_message", "retry_count", "created_at", "updated_at",
	"uploaded_at", "processing_started_at", "generating_started_at",
	"completed_at", "failed_at", "cancelled_at",
}

func reportValues(r *models.Report) []any {
	return []any{
		r.ID, r.Title, r.ReportType, r.Status, r.SourceRef, r.HTMLRef, r.PDFRef,
		r.Engine, r.ErrorMessage, r.RetryCount, r.CreatedAt, r.UpdatedAt,
		r.UploadedAt, r.ProcessingStartedAt, r.GeneratingStartedAt,
		r.CompletedAt, r.FailedAt, r.CancelledAt,
	}
}

// CreateReport inserts a new report row.
func (db *DB) CreateReport(ctx context.Context, r *models.Report) error {
	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("reports")
	ib.Cols(reportColumns...)
	ib.Values(reportValues(r)...)

	query, args := ib.Build()
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by ID.
func (db *DB) GetReport(ctx context.Context, id string) (*models.Report, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(reportColumns...)
	sb.From("reports")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var r models.Report
	if err := db.conn.GetContext(ctx, &r, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("querying report: %w", err)
	}
	return &r, nil
}

// ListReports retrieves reports, most recent first.
func (db *DB) ListReports(ctx context.Context, filter ReportFilter) ([]*models.Report, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(reportColumns...)
	sb.From("reports")

	var where []string
	if filter.Status != nil {
		where = append(where, sb.Equal("status", *filter.Status))
	}
	if filter.ReportType != nil {
		where = append(where, sb.Equal("report_type", *filter.ReportType))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("created_at DESC", "id")

	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
		if filter.Offset > 0 {
			sb.Offset(filter.Offset)
		}
	}

	query, args := sb.Build()
	var reports []*models.Report
	if err := db.conn.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	return reports, nil
}

// SaveReportState persists r's mutable columns if and only if the stored
// status still equals from. It returns ErrConflict when another worker moved
// the report first and ErrNotFound when the report does not exist.
func (db *DB) SaveReportState(ctx context.Context, r *models.Report, from models.ReportStatus) error {
	return db.saveReportState(ctx, db.conn, r, from)
}

func (db *DB) saveReportState(ctx context.Context, ex sqlx.ExtContext, r *models.Report, from models.ReportStatus) error {
	ub := db.flavor.NewUpdateBuilder()
	ub.Update("reports")
	ub.Set(
		ub.Assign("title", r.Title),
		ub.Assign("status", r.Status),
		ub.Assign("source_ref", r.SourceRef),
		ub.Assign("html_ref", r.HTMLRef),
		ub.Assign("pdf_ref", r.PDFRef),
		ub.Assign("engine", r.Engine),
		ub.Assign("error_message", r.ErrorMessage),
		ub.Assign("retry_count", r.RetryCount),
		ub.Assign("updated_at", r.UpdatedAt),
		ub.Assign("uploaded_at", r.UploadedAt),
		ub.Assign("processing_started_at", r.ProcessingStartedAt),
		ub.Assign("generating_started_at", r.GeneratingStartedAt),
		ub.Assign("completed_at", r.CompletedAt),
		ub.Assign("failed_at", r.FailedAt),
		ub.Assign("cancelled_at", r.CancelledAt),
	)
	ub.Where(ub.Equal("id", r.ID), ub.Equal("status", from))

	query, args := ub.Build()
	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating report: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		var n int
		if err := sqlx.GetContext(ctx, ex, &n, ex.Rebind(`SELECT COUNT(*) FROM reports WHERE id = ?`), r.ID); err != nil {
			return fmt.Errorf("checking report: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("report %s: %w", r.ID, ErrNotFound)
		}
		return fmt.Errorf("report %s expected %s: %w", r.ID, from, ErrConflict)
	}
	return nil
}

// DeleteReport removes a report and, through cascades, its records,
// warnings and artifact references.
func (db *DB) DeleteReport(ctx context.Context, id string) error {
	query := db.conn.Rebind(`DELETE FROM reports WHERE id = ?`)
	result, err := db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteIngest atomically replaces the report's recommendations and
// warnings and persists its transition out of processing.
func (db *DB) CompleteIngest(ctx context.Context, r *models.Report, from models.ReportStatus, recs []models.Recommendation, warnings []models.IngestWarning) error {
	return db.InTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM recommendations WHERE report_id = ?`), r.ID); err != nil {
			return fmt.Errorf("clearing recommendations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM report_warnings WHERE report_id = ?`), r.ID); err != nil {
			return fmt.Errorf("clearing warnings: %w", err)
		}
		if err := db.insertRecommendations(ctx, tx, recs); err != nil {
			return err
		}
		if err := db.insertWarnings(ctx, tx, warnings); err != nil {
			return err
		}
		return db.saveReportState(ctx, tx, r, from)
	})
}

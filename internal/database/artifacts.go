package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/joshsymonds/advisor/internal/models"
)

var artifactColumns = []string{"report_id", "report_type", "html_ref", "pdf_ref", "engine", "chart_count", "created_at"}

// SaveArtifact records the rendered outputs for (report, type), replacing a
// previous render of the same type.
func (db *DB) SaveArtifact(ctx context.Context, a *models.Artifact) error {
	return db.InTransaction(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`DELETE FROM report_artifacts WHERE report_id = ? AND report_type = ?`)
		if _, err := tx.ExecContext(ctx, query, a.ReportID, a.ReportType); err != nil {
			return fmt.Errorf("replacing artifact: %w", err)
		}

		ib := db.flavor.NewInsertBuilder()
		ib.InsertInto("report_artifacts")
		ib.Cols(artifactColumns...)
		ib.Values(a.ReportID, a.ReportType, a.HTMLRef, a.PDFRef, a.Engine, a.ChartCount, a.CreatedAt)

		insert, args := ib.Build()
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("inserting artifact: %w", err)
		}
		return nil
	})
}

// GetArtifact returns the artifact for one report type.
func (db *DB) GetArtifact(ctx context.Context, reportID string, reportType models.ReportType) (*models.Artifact, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(artifactColumns...)
	sb.From("report_artifacts")
	sb.Where(sb.Equal("report_id", reportID), sb.Equal("report_type", reportType))

	query, args := sb.Build()
	var a models.Artifact
	if err := db.conn.GetContext(ctx, &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("artifact %s/%s: %w", reportID, reportType, ErrNotFound)
		}
		return nil, fmt.Errorf("querying artifact: %w", err)
	}
	return &a, nil
}

// ListArtifacts returns every rendered type of a report.
func (db *DB) ListArtifacts(ctx context.Context, reportID string) ([]models.Artifact, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(artifactColumns...)
	sb.From("report_artifacts")
	sb.Where(sb.Equal("report_id", reportID))
	sb.OrderBy("report_type")

	query, args := sb.Build()
	var artifacts []models.Artifact
	if err := db.conn.SelectContext(ctx, &artifacts, query, args...); err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	return artifacts, nil
}

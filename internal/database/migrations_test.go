package database

import (
	"context"
	"database/sql"
	"testing"
)

func TestMigrations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	version, err := db.GetMigrationVersion(ctx)
	if err != nil {
		t.Fatalf("Failed to get migration version: %v", err)
	}
	if version < 2 {
		t.Errorf("Expected migration version >= 2, got %d", version)
	}

	tables := []struct {
		name    string
		columns []string
	}{
		{
			name:    "reports",
			columns: []string{"id", "report_type", "status", "source_ref", "retry_count", "error_message", "failed_at", "cancelled_at"},
		},
		{
			name: "recommendations",
			columns: []string{
				"id", "report_id", "category", "business_impact", "potential_savings",
				"is_commitment", "commitment_term_years", "is_savings_plan", "commitment_category",
			},
		},
		{
			name:    "report_warnings",
			columns: []string{"id", "report_id", "kind", "line", "reason"},
		},
		{
			name:    "report_artifacts",
			columns: []string{"report_id", "report_type", "html_ref", "pdf_ref", "engine", "chart_count"},
		},
		{
			name:    "migrations",
			columns: []string{"version", "name", "applied_at"},
		},
	}

	for _, table := range tables {
		func() {
			rows, err := db.Conn().QueryContext(ctx, "PRAGMA table_info("+table.name+")")
			if err != nil {
				t.Fatalf("Failed to get table info for %s: %v", table.name, err)
			}
			defer func() {
				if err := rows.Close(); err != nil {
					t.Errorf("Failed to close rows: %v", err)
				}
			}()

			columnMap := make(map[string]bool)
			for rows.Next() {
				var cid int
				var name, ctype string
				var notnull, pk int
				var dflt sql.NullString

				if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
					t.Fatalf("Failed to scan column info: %v", err)
				}
				columnMap[name] = true
			}
			if err := rows.Err(); err != nil {
				t.Fatalf("Failed to iterate rows: %v", err)
			}

			if len(columnMap) == 0 {
				t.Errorf("Expected table %s to exist", table.name)
			}
			for _, col := range table.columns {
				if !columnMap[col] {
					t.Errorf("Expected column %s.%s to exist", table.name, col)
				}
			}
		}()
	}

	for _, idx := range []string{"idx_reports_status", "idx_recommendations_report", "idx_recommendations_commitment", "idx_report_warnings_report"} {
		var count int
		err := db.Conn().QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("Expected index %s to exist", idx)
		}
	}
}

func TestMigrationIdempotency(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	version1, err := db.GetMigrationVersion(ctx)
	if err != nil {
		t.Fatalf("Failed to get initial version: %v", err)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to run migrations again: %v", err)
	}

	version2, err := db.GetMigrationVersion(ctx)
	if err != nil {
		t.Fatalf("Failed to get version after re-migration: %v", err)
	}

	if version1 != version2 {
		t.Errorf("Migration version changed after re-running: %d -> %d", version1, version2)
	}
}

func TestLoadMigrationsSorted(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Version >= migrations[i].Version {
			t.Errorf("Migrations out of order: %d before %d", migrations[i-1].Version, migrations[i].Version)
		}
	}
	if migrations[0].Name != "initial" {
		t.Errorf("Expected first migration to be named initial, got %s", migrations[0].Name)
	}
}

func TestForeignKeys(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Conn().ExecContext(ctx,
		"INSERT INTO report_warnings (id, report_id, kind, line, reason) VALUES (?, ?, ?, ?, ?)",
		"w1", "missing-report", "parse", 2, "bad row")
	if err == nil {
		t.Error("Expected foreign key violation for unknown report_id")
	}
}

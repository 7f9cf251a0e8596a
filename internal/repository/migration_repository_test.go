package repository

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMigrationRepository_EnsureAndQuery(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	repo := NewMigrationRepository(db)

	if err := repo.EnsureHistoryTable(ctx); err != nil {
		t.Fatalf("EnsureHistoryTable failed: %v", err)
	}
	// 2回目は何もしない
	if err := repo.EnsureHistoryTable(ctx); err != nil {
		t.Fatalf("EnsureHistoryTable (second) failed: %v", err)
	}

	if err := db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)", "001").Error; err != nil {
		t.Fatalf("failed to insert test data: %v", err)
	}

	applied, err := repo.IsMigrationApplied(ctx, "001")
	if err != nil {
		t.Fatalf("IsMigrationApplied failed: %v", err)
	}
	if !applied {
		t.Error("expected 001 to be applied")
	}

	applied, err = repo.IsMigrationApplied(ctx, "002")
	if err != nil {
		t.Fatalf("IsMigrationApplied failed: %v", err)
	}
	if applied {
		t.Error("expected 002 to be pending")
	}

	migrations, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(migrations) != 1 || migrations[0].Version != "001" || migrations[0].AppliedAt == nil {
		t.Errorf("unexpected applied migrations: %+v", migrations)
	}
}

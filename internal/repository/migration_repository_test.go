package repository

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"field-protection-service/internal/domain"
)

func TestMigrationRepository_RecordAndFind(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db)

	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}

	if err := repo.Record(ctx, nil, &domain.Migration{Version: "002", Checksum: "abc"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	// トランザクション内での記録
	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.Record(ctx, tx, &domain.Migration{Version: "001"})
	})
	if err != nil {
		t.Fatalf("Record in transaction failed: %v", err)
	}

	applied, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected 2 applied migrations, got %d", len(applied))
	}
	if applied[0].Version != "001" || applied[0].Checksum != "" {
		t.Errorf("unexpected first migration: %+v", applied[0])
	}
	if applied[1].Version != "002" || applied[1].Checksum != "abc" {
		t.Errorf("unexpected second migration: %+v", applied[1])
	}
	for _, m := range applied {
		if m.Status != domain.MigrationStatusApplied || m.AppliedAt == nil {
			t.Errorf("expected applied status with timestamp, got %+v", m)
		}
	}

	// 同一バージョンの二重記録は主キー制約で拒否される
	if err := repo.Record(ctx, nil, &domain.Migration{Version: "001"}); err == nil {
		t.Error("expected primary key violation, got nil")
	}
}

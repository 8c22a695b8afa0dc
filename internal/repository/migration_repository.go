package repository

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"field-protection-service/internal/domain"
)

// SchemaMigrationModel はschema_migrationsテーブルのモデル。
// checksum は後から追加した列のため、既存行ではNULLになりうる。
type SchemaMigrationModel struct {
	Version   string    `gorm:"column:version;primaryKey;type:varchar(14)"`
	Checksum  *string   `gorm:"column:checksum;type:char(64)"`
	AppliedAt time.Time `gorm:"column:applied_at;not null;autoCreateTime"`
}

// TableName はテーブル名を指定。
func (SchemaMigrationModel) TableName() string {
	return "schema_migrations"
}

// MigrationRepository はスキーマ移行の適用履歴を管理する。
type MigrationRepository struct {
	db *gorm.DB
}

// NewMigrationRepository は新しいMigrationRepositoryを生成する。
func NewMigrationRepository(db *gorm.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// EnsureTable はschema_migrationsテーブルを作成し、不足している列を追加する。
func (r *MigrationRepository) EnsureTable(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&SchemaMigrationModel{}); err != nil {
		slog.ErrorContext(ctx, "failed to ensure schema_migrations table",
			"operation", "ensure_table",
			"error", err,
		)
		return err
	}
	return nil
}

// FindAllApplied は適用履歴をバージョン順に取得する。
func (r *MigrationRepository) FindAllApplied(ctx context.Context) ([]*domain.Migration, error) {
	var models []SchemaMigrationModel
	if err := r.db.WithContext(ctx).Order("version ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find applied migrations",
			"operation", "find_all_applied",
			"error", err,
		)
		return nil, err
	}

	applied := make([]*domain.Migration, len(models))
	for i := range models {
		m := &domain.Migration{
			Version:   models[i].Version,
			AppliedAt: &models[i].AppliedAt,
			Status:    domain.MigrationStatusApplied,
		}
		if models[i].Checksum != nil {
			m.Checksum = *models[i].Checksum
		}
		applied[i] = m
	}
	return applied, nil
}

// Record は適用履歴を1件記録する。tx を渡すとそのトランザクション内で記録する。
func (r *MigrationRepository) Record(ctx context.Context, tx *gorm.DB, migration *domain.Migration) error {
	if tx == nil {
		tx = r.db
	}
	model := &SchemaMigrationModel{Version: migration.Version, AppliedAt: time.Now().UTC()}
	if migration.Checksum != "" {
		model.Checksum = &migration.Checksum
	}
	if err := tx.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to record migration",
			"operation", "record",
			"version", migration.Version,
			"error", err,
		)
		return err
	}
	return nil
}

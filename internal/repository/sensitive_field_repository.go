package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"field-protection-service/internal/domain"
	"field-protection-service/pkg/masking"
)

// SensitiveFieldModel はgorm用のモデル定義。
type SensitiveFieldModel struct {
	ID             string    `gorm:"type:char(36);primaryKey"`
	EntityType     string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_entity_field;index:idx_entity_type"`
	FieldName      string    `gorm:"type:varchar(128);not null;uniqueIndex:uk_entity_field"`
	EncryptionType string    `gorm:"type:varchar(16);not null"`
	MaskingType    string    `gorm:"type:varchar(32);not null"`
	MaskPattern    *string   `gorm:"type:varchar(64)"`
	CreatedAt      time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (SensitiveFieldModel) TableName() string {
	return "sensitive_field_definitions"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *SensitiveFieldModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *SensitiveFieldModel) toDomain() *domain.SensitiveFieldDefinition {
	def := &domain.SensitiveFieldDefinition{
		EntityType:     m.EntityType,
		FieldName:      m.FieldName,
		EncryptionType: domain.DataType(m.EncryptionType),
		MaskingType:    masking.Type(m.MaskingType),
	}
	if m.MaskPattern != nil {
		def.MaskPattern = *m.MaskPattern
	}
	return def
}

// SensitiveFieldRepository は保護対象フィールド定義のデータアクセスを提供する。
type SensitiveFieldRepository struct {
	db *gorm.DB
}

// NewSensitiveFieldRepository は新しいSensitiveFieldRepositoryを生成する。
func NewSensitiveFieldRepository(db *gorm.DB) *SensitiveFieldRepository {
	return &SensitiveFieldRepository{db: db}
}

// FindByEntityType はエンティティ種別の定義一覧を取得する。該当なしは空スライス。
func (r *SensitiveFieldRepository) FindByEntityType(ctx context.Context, entityType string) ([]*domain.SensitiveFieldDefinition, error) {
	var models []SensitiveFieldModel
	err := r.db.WithContext(ctx).
		Where("entity_type = ?", entityType).
		Order("field_name ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find sensitive field definitions",
			"operation", "find_by_entity_type",
			"entity_type", entityType,
			"error", err,
		)
		return nil, err
	}

	defs := make([]*domain.SensitiveFieldDefinition, len(models))
	for i := range models {
		defs[i] = models[i].toDomain()
	}
	return defs, nil
}

// Upsert は定義を作成または更新する。設定ファイルからの初期投入に使う。
func (r *SensitiveFieldRepository) Upsert(ctx context.Context, def *domain.SensitiveFieldDefinition) error {
	model := &SensitiveFieldModel{
		EntityType:     def.EntityType,
		FieldName:      def.FieldName,
		EncryptionType: string(def.EncryptionType),
		MaskingType:    string(def.MaskingType),
	}
	if def.MaskPattern != "" {
		model.MaskPattern = &def.MaskPattern
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_type"}, {Name: "field_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"encryption_type", "masking_type", "mask_pattern", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to upsert sensitive field definition",
			"operation", "upsert",
			"entity_type", def.EntityType,
			"field_name", def.FieldName,
			"error", err,
		)
		return err
	}
	return nil
}

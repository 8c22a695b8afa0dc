// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"field-protection-service/internal/domain"
)

// FieldEncryptionKeyModel はgorm用のモデル定義。
type FieldEncryptionKeyModel struct {
	ID            string     `gorm:"type:char(36);primaryKey"`
	KeyIdentifier string     `gorm:"type:varchar(64);not null;uniqueIndex:uk_key_identifier"`
	EncryptedKey  []byte     `gorm:"type:blob;not null"`
	IsActive      bool       `gorm:"not null;index:idx_active_created"`
	CreatedAt     time.Time  `gorm:"type:datetime(6);not null;autoCreateTime;index:idx_active_created"`
	RotationDate  time.Time  `gorm:"type:datetime(6);not null"`
	LastUsedAt    *time.Time `gorm:"type:datetime(6)"`
	UpdatedAt     time.Time  `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (FieldEncryptionKeyModel) TableName() string {
	return "field_encryption_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (e *FieldEncryptionKeyModel) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (e *FieldEncryptionKeyModel) toDomain() *domain.FieldEncryptionKey {
	return &domain.FieldEncryptionKey{
		ID:            e.ID,
		KeyIdentifier: e.KeyIdentifier,
		EncryptedKey:  e.EncryptedKey,
		IsActive:      e.IsActive,
		CreatedAt:     e.CreatedAt,
		RotationDate:  e.RotationDate,
		LastUsedAt:    e.LastUsedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func newKeyModel(key *domain.FieldEncryptionKey) *FieldEncryptionKeyModel {
	return &FieldEncryptionKeyModel{
		ID:            key.ID,
		KeyIdentifier: key.KeyIdentifier,
		EncryptedKey:  key.EncryptedKey,
		IsActive:      key.IsActive,
		CreatedAt:     key.CreatedAt,
		RotationDate:  key.RotationDate,
		LastUsedAt:    key.LastUsedAt,
	}
}

// KeyRepository はフィールド暗号化鍵のデータアクセスを提供する。
type KeyRepository struct {
	db *gorm.DB
}

// NewKeyRepository は新しいKeyRepositoryを生成する。
func NewKeyRepository(db *gorm.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// Create は新しい暗号鍵を保存する。
func (r *KeyRepository) Create(ctx context.Context, key *domain.FieldEncryptionKey) error {
	model := newKeyModel(key)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create key",
			"operation", "create",
			"key_identifier", key.KeyIdentifier,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// Rotate は新しい鍵を有効状態で保存し、それ以外の有効な鍵を無効化する。
// 同一トランザクション内で挿入を先に行うため、有効な鍵が0件になる瞬間はない。
func (r *KeyRepository) Rotate(ctx context.Context, key *domain.FieldEncryptionKey) error {
	model := newKeyModel(key)
	model.IsActive = true
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Model(&FieldEncryptionKeyModel{}).
			Where("is_active = ? AND id <> ?", true, model.ID).
			Update("is_active", false).Error
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to rotate key",
			"operation", "rotate",
			"key_identifier", key.KeyIdentifier,
			"error", err,
		)
		return err
	}
	key.ID = model.ID
	key.IsActive = true
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// FindLatestActive は最も新しく作成された有効な鍵を取得する。存在しない場合はnilを返す。
func (r *KeyRepository) FindLatestActive(ctx context.Context) (*domain.FieldEncryptionKey, error) {
	var model FieldEncryptionKeyModel
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Order("id DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find latest active key",
			"operation", "find_latest_active",
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByKeyIdentifier は鍵識別子で鍵を取得する。存在しない場合はnilを返す。
func (r *KeyRepository) FindByKeyIdentifier(ctx context.Context, keyIdentifier string) (*domain.FieldEncryptionKey, error) {
	var model FieldEncryptionKeyModel
	err := r.db.WithContext(ctx).
		Where("key_identifier = ?", keyIdentifier).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find key",
			"operation", "find_by_key_identifier",
			"key_identifier", keyIdentifier,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAll は全世代の鍵を作成日時の昇順で取得する。
func (r *KeyRepository) FindAll(ctx context.Context) ([]*domain.FieldEncryptionKey, error) {
	var models []FieldEncryptionKeyModel
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all keys",
			"operation", "find_all",
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.FieldEncryptionKey, len(models))
	for i := range models {
		keys[i] = models[i].toDomain()
	}
	return keys, nil
}

// TouchLastUsed は鍵の最終使用日時を更新する。
func (r *KeyRepository) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&FieldEncryptionKeyModel{}).
		Where("id = ?", id).
		Update("last_used_at", usedAt).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update last_used_at",
			"operation", "touch_last_used",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}

// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"field-protection-service/internal/domain"
)

const keySize = 32 // AES-256 = 256 bits = 32 bytes

// DefaultRotationPeriod は鍵のローテーション予定日までの期間。
const DefaultRotationPeriod = 90 * 24 * time.Hour

// KeyRepository はデータアクセスのインターフェース。
type KeyRepository interface {
	Create(ctx context.Context, key *domain.FieldEncryptionKey) error
	Rotate(ctx context.Context, key *domain.FieldEncryptionKey) error
	FindLatestActive(ctx context.Context) (*domain.FieldEncryptionKey, error)
	FindByKeyIdentifier(ctx context.Context, keyIdentifier string) (*domain.FieldEncryptionKey, error)
	FindAll(ctx context.Context) ([]*domain.FieldEncryptionKey, error)
	TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error
}

// KeyWrapper は鍵素材のラップ/アンラップのインターフェース。
// マスター鍵（infra.MasterKeyCipher）またはCloud KMS（infra.KMSClient）が実装する。
type KeyWrapper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KeyService はフィールド暗号化鍵の生成・取得・ローテーションを提供する。
type KeyService struct {
	repo           KeyRepository
	wrapper        KeyWrapper
	metrics        Metrics
	rotationPeriod time.Duration
	now            func() time.Time

	// 有効鍵がない場合のオンデマンド生成を1プロセス内で直列化する
	generateMu sync.Mutex
}

// NewKeyService は新しいKeyServiceを生成する。
func NewKeyService(repo KeyRepository, wrapper KeyWrapper, rotationPeriod time.Duration, metrics Metrics) *KeyService {
	if rotationPeriod <= 0 {
		rotationPeriod = DefaultRotationPeriod
	}
	return &KeyService{
		repo:           repo,
		wrapper:        wrapper,
		metrics:        metricsOrNop(metrics),
		rotationPeriod: rotationPeriod,
		now:            time.Now,
	}
}

// generateAESKey はAES-256鍵を生成する。
func generateAESKey() ([]byte, error) {
	key := make([]byte, keySize)
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}
	return key, nil
}

// GenerateKey は新しい鍵を生成し、唯一の有効鍵として保存する。
func (s *KeyService) GenerateKey(ctx context.Context) (*domain.FieldEncryptionKey, error) {
	plainKey, err := generateAESKey()
	if err != nil {
		return nil, err
	}

	// マスター鍵でラップ
	encryptedKey, err := s.wrapper.Encrypt(ctx, plainKey)
	if err != nil {
		return nil, fmt.Errorf("wrapping key: %w", err)
	}

	now := s.now().UTC()
	key := &domain.FieldEncryptionKey{
		KeyIdentifier: uuid.NewString(),
		EncryptedKey:  encryptedKey,
		IsActive:      true,
		CreatedAt:     now,
		RotationDate:  now.Add(s.rotationPeriod),
	}
	if err := s.repo.Rotate(ctx, key); err != nil {
		return nil, fmt.Errorf("storing key: %w", err)
	}

	s.metrics.KeyEvent("generated")
	slog.InfoContext(ctx, "field encryption key generated",
		"key_identifier", key.KeyIdentifier,
		"rotation_date", key.RotationDate.Format(time.RFC3339),
	)
	return key, nil
}

// activeRecord は有効鍵のレコードを取得し、なければ生成する。
func (s *KeyService) activeRecord(ctx context.Context) (*domain.FieldEncryptionKey, error) {
	record, err := s.repo.FindLatestActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding active key: %w", err)
	}
	if record != nil {
		return record, nil
	}

	s.generateMu.Lock()
	defer s.generateMu.Unlock()

	// ロック取得後に再確認
	record, err = s.repo.FindLatestActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding active key: %w", err)
	}
	if record != nil {
		return record, nil
	}
	return s.GenerateKey(ctx)
}

// GetActiveKey は現在有効な鍵をアンラップして返す。有効鍵がなければ生成する。
func (s *KeyService) GetActiveKey(ctx context.Context) (*domain.Key, error) {
	record, err := s.activeRecord(ctx)
	if err != nil {
		return nil, err
	}
	return s.unwrap(ctx, record)
}

// GetKeyByIdentifier は鍵識別子で鍵をアンラップして返す。
// 無効化済みの鍵も返す。存在しない場合は生成せず ErrKeyNotFound を返す。
func (s *KeyService) GetKeyByIdentifier(ctx context.Context, keyIdentifier string) (*domain.Key, error) {
	record, err := s.repo.FindByKeyIdentifier(ctx, keyIdentifier)
	if err != nil {
		return nil, fmt.Errorf("finding key: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrKeyNotFound, keyIdentifier)
	}
	return s.unwrap(ctx, record)
}

func (s *KeyService) unwrap(ctx context.Context, record *domain.FieldEncryptionKey) (*domain.Key, error) {
	plainKey, err := s.wrapper.Decrypt(ctx, record.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrapping key %s: %w", record.KeyIdentifier, err)
	}

	// 最終使用日時の更新失敗で暗号処理は止めない
	if err := s.repo.TouchLastUsed(ctx, record.ID, s.now().UTC()); err != nil {
		slog.WarnContext(ctx, "failed to record key usage",
			"key_identifier", record.KeyIdentifier,
			"error", err,
		)
	}

	return &domain.Key{
		KeyIdentifier: record.KeyIdentifier,
		Key:           plainKey,
	}, nil
}

// RotateActiveKey は新しい鍵を生成して有効鍵を切り替える。旧鍵は無効化されるが削除されない。
func (s *KeyService) RotateActiveKey(ctx context.Context) (*domain.KeyMetadata, error) {
	s.generateMu.Lock()
	defer s.generateMu.Unlock()

	key, err := s.GenerateKey(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.KeyEvent("rotated")
	return key.Metadata(), nil
}

// ActiveKeyStatus は有効鍵のメタデータとローテーション期限超過の有無を返す。
// 参照のみで鍵の生成は行わない。有効鍵がない場合は ErrKeyNotFound。期限の強制は行わない。
func (s *KeyService) ActiveKeyStatus(ctx context.Context) (*domain.KeyMetadata, bool, error) {
	record, err := s.repo.FindLatestActive(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("finding active key: %w", err)
	}
	if record == nil {
		return nil, false, fmt.Errorf("%w: no active key", domain.ErrKeyNotFound)
	}
	return record.Metadata(), record.RotationDue(s.now()), nil
}

// ListKeys は全世代の鍵メタデータを取得する。
func (s *KeyService) ListKeys(ctx context.Context) ([]*domain.KeyMetadata, error) {
	keys, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding keys: %w", err)
	}

	metadata := make([]*domain.KeyMetadata, len(keys))
	for i, k := range keys {
		metadata[i] = k.Metadata()
	}
	return metadata, nil
}

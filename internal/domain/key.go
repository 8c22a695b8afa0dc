// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// FieldEncryptionKey はフィールド暗号化鍵の1世代を表す。
// 鍵はマスター鍵でラップされた状態でのみ保持され、物理削除されない。
type FieldEncryptionKey struct {
	ID            string
	KeyIdentifier string
	EncryptedKey  []byte
	IsActive      bool
	CreatedAt     time.Time
	RotationDate  time.Time
	LastUsedAt    *time.Time
	UpdatedAt     time.Time
}

// KeyMetadata は暗号鍵のメタデータを表す（鍵素材を含まない）。
type KeyMetadata struct {
	KeyIdentifier string
	IsActive      bool
	CreatedAt     time.Time
	RotationDate  time.Time
	LastUsedAt    *time.Time
}

// Metadata は鍵素材を除いたメタデータを返す。
func (k *FieldEncryptionKey) Metadata() *KeyMetadata {
	return &KeyMetadata{
		KeyIdentifier: k.KeyIdentifier,
		IsActive:      k.IsActive,
		CreatedAt:     k.CreatedAt,
		RotationDate:  k.RotationDate,
		LastUsedAt:    k.LastUsedAt,
	}
}

// RotationDue はローテーション予定日を過ぎているかを返す。
func (k *FieldEncryptionKey) RotationDue(now time.Time) bool {
	return !now.Before(k.RotationDate)
}

// Key はアンラップ済みの暗号鍵を表す。
type Key struct {
	KeyIdentifier string
	Key           []byte // 平文の鍵素材。永続化・ログ出力禁止
}

package infra

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"

	"field-protection-service/internal/domain"
	"field-protection-service/pkg/aead"
)

// マスター鍵導出パラメータ。既存のラップ済み鍵と互換性を保つため変更しないこと。
const (
	masterKeySalt = "field-encryption-master-salt"
	scryptN       = 16384
	scryptR       = 8
	scryptP       = 1
)

// developmentMasterKey はMASTER_KEY未設定時に非本番環境で使うシークレット。
const developmentMasterKey = "development-only-master-key-do-not-use-in-production"

// MasterKeyCipher はマスター鍵でフィールド暗号化鍵をラップ/アンラップする。
// 導出済みの鍵はインスタンスの生存期間中メモリ上にのみ保持する。
type MasterKeyCipher struct {
	derivedKey []byte
}

// NewMasterKeyCipher はマスターシークレットからscryptで鍵を導出する。
// secret が空の場合は開発用シークレットを使う。
func NewMasterKeyCipher(secret string) (*MasterKeyCipher, error) {
	if secret == "" {
		secret = developmentMasterKey
	}
	key, err := scrypt.Key([]byte(secret), []byte(masterKeySalt), scryptN, scryptR, scryptP, aead.KeySize)
	if err != nil {
		return nil, fmt.Errorf("deriving master key: %w", err)
	}
	return &MasterKeyCipher{derivedKey: key}, nil
}

// Encrypt は鍵素材をラップする。
func (c *MasterKeyCipher) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	wrapped, err := aead.Seal(c.derivedKey, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("wrapping key: %w", err)
	}
	return wrapped, nil
}

// Decrypt はラップされた鍵素材を復元する。タグ不一致は ErrDecryptionFailed を返す。
func (c *MasterKeyCipher) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	plain, err := aead.Open(c.derivedKey, ciphertext, nil)
	if err != nil {
		if errors.Is(err, aead.ErrAuthentication) || errors.Is(err, aead.ErrMalformed) {
			return nil, fmt.Errorf("%w: unwrapping key: %v", domain.ErrDecryptionFailed, err)
		}
		return nil, fmt.Errorf("unwrapping key: %w", err)
	}
	return plain, nil
}

package infra

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"field-protection-service/internal/domain"
	"field-protection-service/pkg/aead"
)

// kmsWrapAAD はラップ済みフィールド鍵をこの用途に束縛する追加認証データ。
var kmsWrapAAD = []byte("field-encryption-key")

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

func crc32c(b []byte) *wrapperspb.Int64Value {
	return wrapperspb.Int64(int64(crc32.Checksum(b, crc32cTable)))
}

// kmsAPI はKMSClientが利用するCloud KMSの操作。
type kmsAPI interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error)
	Close() error
}

// KMSClient はCloud KMSでフィールド暗号化鍵をラップ/アンラップする。
// KMS_KEY_NAME が設定されている場合、マスター鍵の代わりに使う。
type KMSClient struct {
	client  kmsAPI
	keyName string
}

// NewKMSClient はKMSClientを生成する。
func NewKMSClient(ctx context.Context, keyName string) (*KMSClient, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS key name is required")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}
	return newKMSClient(client, keyName), nil
}

func newKMSClient(client kmsAPI, keyName string) *KMSClient {
	return &KMSClient{client: client, keyName: keyName}
}

// Encrypt はフィールド鍵をラップする。送受信データはCRC32Cで検証する。
func (c *KMSClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	resp, err := c.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:                              c.keyName,
		Plaintext:                         plaintext,
		PlaintextCrc32C:                   crc32c(plaintext),
		AdditionalAuthenticatedData:       kmsWrapAAD,
		AdditionalAuthenticatedDataCrc32C: crc32c(kmsWrapAAD),
	})
	if err != nil {
		return nil, fmt.Errorf("wrapping key with KMS: %w", err)
	}
	if !resp.GetVerifiedPlaintextCrc32C() || !resp.GetVerifiedAdditionalAuthenticatedDataCrc32C() {
		return nil, errors.New("wrapping key with KMS: request corrupted in transit")
	}
	if resp.GetCiphertextCrc32C().GetValue() != crc32c(resp.GetCiphertext()).GetValue() {
		return nil, errors.New("wrapping key with KMS: response corrupted in transit")
	}
	return resp.GetCiphertext(), nil
}

// Decrypt はラップされたフィールド鍵を復元する。
// 復元した鍵が AES-256 の鍵長でない場合は ErrDecryptionFailed を返す。
func (c *KMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	resp, err := c.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:                              c.keyName,
		Ciphertext:                        ciphertext,
		CiphertextCrc32C:                  crc32c(ciphertext),
		AdditionalAuthenticatedData:       kmsWrapAAD,
		AdditionalAuthenticatedDataCrc32C: crc32c(kmsWrapAAD),
	})
	if err != nil {
		return nil, fmt.Errorf("unwrapping key with KMS: %w", err)
	}
	if resp.GetPlaintextCrc32C().GetValue() != crc32c(resp.GetPlaintext()).GetValue() {
		return nil, errors.New("unwrapping key with KMS: response corrupted in transit")
	}
	if len(resp.GetPlaintext()) != aead.KeySize {
		return nil, fmt.Errorf("%w: unwrapped key has %d bytes", domain.ErrDecryptionFailed, len(resp.GetPlaintext()))
	}
	return resp.GetPlaintext(), nil
}

// Close はKMSクライアントを閉じる。
func (c *KMSClient) Close() error {
	return c.client.Close()
}

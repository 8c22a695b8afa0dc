package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"field-protection-service/internal/domain"
	"field-protection-service/pkg/aead"
)

const tracerName = "field-protection-service/usecase"

// KeyProvider はフィールド暗号化に使う鍵の取得元。
type KeyProvider interface {
	GetActiveKey(ctx context.Context) (*domain.Key, error)
	GetKeyByIdentifier(ctx context.Context, keyIdentifier string) (*domain.Key, error)
}

// FieldCipher は個々の値およびエンティティのフィールドを暗号化・復号する。
type FieldCipher struct {
	keys    KeyProvider
	metrics Metrics
	tracer  trace.Tracer
}

// NewFieldCipher は新しいFieldCipherを生成する。
func NewFieldCipher(keys KeyProvider, metrics Metrics) *FieldCipher {
	return &FieldCipher{
		keys:    keys,
		metrics: metricsOrNop(metrics),
		tracer:  otel.Tracer(tracerName),
	}
}

// FieldContext はフィールド単位の関連データを返す。baseが空なら関連データなし。
func FieldContext(base, field string) string {
	if base == "" {
		return ""
	}
	return base + ":" + field
}

func aadBytes(context string) []byte {
	if context == "" {
		return nil
	}
	return []byte(context)
}

func (c *FieldCipher) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "FieldCipher."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// EncryptTyped は値をデータ型に応じて直列化し、有効鍵で暗号化する。
// aadが空でなければ関連データとして暗号文に束縛する。
func (c *FieldCipher) EncryptTyped(ctx context.Context, value any, dataType domain.DataType, aad string) (_ *domain.EncryptedValue, err error) {
	ctx, span := c.startSpan(ctx, "EncryptTyped", attribute.String("data_type", string(dataType)))
	defer func() {
		c.metrics.CipherOperation("encrypt", string(dataType), err)
		endSpan(span, err)
	}()

	key, err := c.keys.GetActiveKey(ctx)
	if err != nil {
		return nil, err
	}
	return sealValue(key, value, dataType, aad)
}

func sealValue(key *domain.Key, value any, dataType domain.DataType, aad string) (*domain.EncryptedValue, error) {
	plaintext, err := serializeValue(value, dataType)
	if err != nil {
		return nil, err
	}
	sealed, err := aead.Seal(key.Key, []byte(plaintext), aadBytes(aad))
	if err != nil {
		return nil, fmt.Errorf("encrypting value: %w", err)
	}
	return &domain.EncryptedValue{
		EncryptedData: base64.StdEncoding.EncodeToString(sealed),
		KeyIdentifier: key.KeyIdentifier,
		DataType:      dataType,
	}, nil
}

// DecryptTyped は暗号化時と同じ鍵識別子・関連データで復号し、データ型に応じて値を復元する。
func (c *FieldCipher) DecryptTyped(ctx context.Context, encryptedData, keyIdentifier string, dataType domain.DataType, aad string) (_ any, err error) {
	ctx, span := c.startSpan(ctx, "DecryptTyped",
		attribute.String("data_type", string(dataType)),
		attribute.String("key_identifier", keyIdentifier),
	)
	defer func() {
		c.metrics.CipherOperation("decrypt", string(dataType), err)
		endSpan(span, err)
	}()

	key, err := c.keys.GetKeyByIdentifier(ctx, keyIdentifier)
	if err != nil {
		return nil, err
	}
	return openValue(key, encryptedData, dataType, aad)
}

func openValue(key *domain.Key, encryptedData string, dataType domain.DataType, aad string) (any, error) {
	sealed, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", domain.ErrDecryptionFailed)
	}
	plaintext, err := aead.Open(key.Key, sealed, aadBytes(aad))
	if err != nil {
		if errors.Is(err, aead.ErrAuthentication) || errors.Is(err, aead.ErrMalformed) {
			return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
		}
		return nil, err
	}
	return deserializeValue(string(plaintext), dataType)
}

// RotateKey は旧鍵で復号し、現在の有効鍵で同じデータ型・関連データのまま再暗号化する。
func (c *FieldCipher) RotateKey(ctx context.Context, encryptedData, oldKeyIdentifier string, dataType domain.DataType, aad string) (*domain.EncryptedValue, error) {
	value, err := c.DecryptTyped(ctx, encryptedData, oldKeyIdentifier, dataType, aad)
	if err != nil {
		return nil, err
	}
	return c.EncryptTyped(ctx, value, dataType, aad)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EncryptFields は指定フィールドを暗号化したエンティティのコピーとフィールドメタデータを返す。
// 値がない（nilの）フィールドは暗号化もメタデータ登録もしない。指定外のフィールドはそのまま。
func (c *FieldCipher) EncryptFields(ctx context.Context, entity domain.Entity, fields map[string]domain.DataType, baseContext string) (_ domain.Entity, _ map[string]domain.FieldMetadata, err error) {
	ctx, span := c.startSpan(ctx, "EncryptFields", attribute.Int("field_count", len(fields)))
	defer func() { endSpan(span, err) }()

	result := entity.Clone()
	metadata := make(map[string]domain.FieldMetadata, len(fields))

	var key *domain.Key
	for _, field := range sortedKeys(fields) {
		value, ok := entity[field]
		if !ok || isAbsent(value) {
			continue
		}
		if key == nil {
			if key, err = c.keys.GetActiveKey(ctx); err != nil {
				return nil, nil, err
			}
		}

		dataType := fields[field]
		encrypted, err := sealValue(key, value, dataType, FieldContext(baseContext, field))
		c.metrics.CipherOperation("encrypt", string(dataType), err)
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", field, err)
		}
		result[field] = encrypted.EncryptedData
		metadata[field] = domain.FieldMetadata{
			KeyIdentifier: encrypted.KeyIdentifier,
			DataType:      encrypted.DataType,
		}
	}
	return result, metadata, nil
}

// DecryptFields はメタデータに記載されたフィールドを復号したエンティティのコピーを返す。
// エンティティに値がないフィールドは無視する。
func (c *FieldCipher) DecryptFields(ctx context.Context, entity domain.Entity, metadata map[string]domain.FieldMetadata, baseContext string) (_ domain.Entity, err error) {
	ctx, span := c.startSpan(ctx, "DecryptFields", attribute.Int("field_count", len(metadata)))
	defer func() { endSpan(span, err) }()

	result := entity.Clone()
	keys := map[string]*domain.Key{}
	for _, field := range sortedKeys(metadata) {
		raw, ok := entity[field]
		if !ok || isAbsent(raw) {
			continue
		}
		encryptedData, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: %w: value is not an encrypted string", field, domain.ErrDecryptionFailed)
		}

		meta := metadata[field]
		key, err := c.cachedKey(ctx, keys, meta.KeyIdentifier)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		value, err := openValue(key, encryptedData, meta.DataType, FieldContext(baseContext, field))
		c.metrics.CipherOperation("decrypt", string(meta.DataType), err)
		if err != nil {
			slog.WarnContext(ctx, "failed to decrypt field",
				"field", field,
				"key_identifier", meta.KeyIdentifier,
				"error", err,
			)
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		result[field] = value
	}
	return result, nil
}

func (c *FieldCipher) cachedKey(ctx context.Context, keys map[string]*domain.Key, keyIdentifier string) (*domain.Key, error) {
	if key, ok := keys[keyIdentifier]; ok {
		return key, nil
	}
	key, err := c.keys.GetKeyByIdentifier(ctx, keyIdentifier)
	if err != nil {
		return nil, err
	}
	keys[keyIdentifier] = key
	return key, nil
}

// RotateFields はメタデータに記載されたフィールドを現在の有効鍵で再暗号化する。
// すでに有効鍵で暗号化されているフィールドはそのまま残す。
func (c *FieldCipher) RotateFields(ctx context.Context, entity domain.Entity, metadata map[string]domain.FieldMetadata, baseContext string) (_ domain.Entity, _ map[string]domain.FieldMetadata, err error) {
	ctx, span := c.startSpan(ctx, "RotateFields", attribute.Int("field_count", len(metadata)))
	defer func() { endSpan(span, err) }()

	active, err := c.keys.GetActiveKey(ctx)
	if err != nil {
		return nil, nil, err
	}

	result := entity.Clone()
	rotated := make(map[string]domain.FieldMetadata, len(metadata))
	keys := map[string]*domain.Key{active.KeyIdentifier: active}
	for _, field := range sortedKeys(metadata) {
		meta := metadata[field]
		raw, ok := entity[field]
		if !ok || isAbsent(raw) || meta.KeyIdentifier == active.KeyIdentifier {
			rotated[field] = meta
			continue
		}
		encryptedData, ok := raw.(string)
		if !ok {
			return nil, nil, fmt.Errorf("field %s: %w: value is not an encrypted string", field, domain.ErrDecryptionFailed)
		}

		aad := FieldContext(baseContext, field)
		old, err := c.cachedKey(ctx, keys, meta.KeyIdentifier)
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", field, err)
		}
		value, err := openValue(old, encryptedData, meta.DataType, aad)
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", field, err)
		}
		encrypted, err := sealValue(active, value, meta.DataType, aad)
		c.metrics.CipherOperation("rotate", string(meta.DataType), err)
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", field, err)
		}
		result[field] = encrypted.EncryptedData
		rotated[field] = domain.FieldMetadata{
			KeyIdentifier: encrypted.KeyIdentifier,
			DataType:      encrypted.DataType,
		}
	}
	return result, rotated, nil
}

package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/patrickmn/go-cache"

	"field-protection-service/internal/domain"
	"field-protection-service/pkg/masking"
)

// SensitiveFieldRepository は保護対象フィールド定義のデータアクセスインターフェース。
type SensitiveFieldRepository interface {
	FindByEntityType(ctx context.Context, entityType string) ([]*domain.SensitiveFieldDefinition, error)
	Upsert(ctx context.Context, def *domain.SensitiveFieldDefinition) error
}

// FieldRegistry はエンティティ種別ごとの保護対象フィールド定義を提供する。
// 定義はTTL付きでメモリにキャッシュする。
type FieldRegistry struct {
	repo  SensitiveFieldRepository
	cache *cache.Cache
}

// NewFieldRegistry は新しいFieldRegistryを生成する。ttlが0以下ならキャッシュしない。
func NewFieldRegistry(repo SensitiveFieldRepository, ttl time.Duration) *FieldRegistry {
	r := &FieldRegistry{repo: repo}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// GetDefinitions はエンティティ種別の全フィールド定義を返す。
// 未登録のエンティティ種別は空のマップを返す。
func (r *FieldRegistry) GetDefinitions(ctx context.Context, entityType string) (map[string]domain.FieldDefinition, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(entityType); ok {
			return copyDefinitions(cached.(map[string]domain.FieldDefinition)), nil
		}
	}

	defs, err := r.repo.FindByEntityType(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("finding field definitions: %w", err)
	}

	result := make(map[string]domain.FieldDefinition, len(defs))
	for _, d := range defs {
		result[d.FieldName] = domain.FieldDefinition{
			EncryptionType: d.EncryptionType,
			MaskingType:    d.MaskingType,
			MaskPattern:    d.MaskPattern,
		}
	}
	if r.cache != nil {
		r.cache.SetDefault(entityType, result)
	}
	return copyDefinitions(result), nil
}

// GetMaskingRules はエンティティ種別のマスキング情報のみを返す。暗号化種別は含めない。
func (r *FieldRegistry) GetMaskingRules(ctx context.Context, entityType string) (map[string]domain.MaskingRule, error) {
	defs, err := r.GetDefinitions(ctx, entityType)
	if err != nil {
		return nil, err
	}
	return MaskingRules(defs), nil
}

// Register はフィールド定義を登録または更新し、該当エンティティ種別のキャッシュを破棄する。
func (r *FieldRegistry) Register(ctx context.Context, defs []*domain.SensitiveFieldDefinition) error {
	touched := map[string]struct{}{}
	for _, d := range defs {
		if err := r.repo.Upsert(ctx, d); err != nil {
			return fmt.Errorf("registering %s.%s: %w", d.EntityType, d.FieldName, err)
		}
		touched[d.EntityType] = struct{}{}
	}
	for entityType := range touched {
		r.Invalidate(entityType)
	}
	slog.InfoContext(ctx, "sensitive field definitions registered",
		"count", len(defs),
		"entity_types", len(touched),
	)
	return nil
}

// Invalidate はエンティティ種別のキャッシュを破棄する。
func (r *FieldRegistry) Invalidate(entityType string) {
	if r.cache != nil {
		r.cache.Delete(entityType)
	}
}

func copyDefinitions(in map[string]domain.FieldDefinition) map[string]domain.FieldDefinition {
	out := make(map[string]domain.FieldDefinition, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// EncryptionFields はフィールド定義からEncryptFieldsに渡すフィールド→データ型の対応を作る。
func EncryptionFields(defs map[string]domain.FieldDefinition) map[string]domain.DataType {
	fields := make(map[string]domain.DataType, len(defs))
	for name, d := range defs {
		fields[name] = d.EncryptionType
	}
	return fields
}

// MaskingRules はフィールド定義からマスキング情報のみを抜き出す。
func MaskingRules(defs map[string]domain.FieldDefinition) map[string]domain.MaskingRule {
	rules := make(map[string]domain.MaskingRule, len(defs))
	for name, d := range defs {
		rules[name] = domain.MaskingRule{
			MaskingType: d.MaskingType,
			Pattern:     d.MaskPattern,
		}
	}
	return rules
}

// MaskEntity はルールに従ってフィールドをマスクしたエンティティのコピーを返す。
// OBJECT/ARRAYの値は構造を保ったまま末端の値ごとにマスクする。値のないフィールドはそのまま。
func MaskEntity(entity domain.Entity, rules map[string]domain.MaskingRule) domain.Entity {
	result := entity.Clone()
	for field, rule := range rules {
		value, ok := entity[field]
		if !ok || isAbsent(value) {
			continue
		}
		result[field] = maskTree(value, rule)
	}
	return result
}

// maskTree はmap/sliceを再帰的にたどり、末端の値を文字列にしてマスクする。
// JSONデコード結果以外の型付きmap/sliceはJSONで汎用の形に変換してから扱う。
func maskTree(value any, rule domain.MaskingRule) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = maskTree(child, rule)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = maskTree(child, rule)
		}
		return out
	case nil:
		return nil
	}

	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if _, isTime := value.(time.Time); !isTime {
			if generic, ok := toGeneric(value); ok {
				return maskTree(generic, rule)
			}
		}
	}
	return masking.Value(displayString(value), rule.MaskingType, rule.Pattern)
}

// toGeneric は値をJSON経由でmap[string]any/[]anyに変換する。
func toGeneric(value any) (any, bool) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, false
	}
	switch generic.(type) {
	case map[string]any, []any:
		return generic, true
	}
	return nil, false
}

func displayString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(dateLayout)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

package domain

import "field-protection-service/pkg/masking"

// SensitiveFieldDefinition はエンティティ種別ごとの保護対象フィールド定義。
type SensitiveFieldDefinition struct {
	EntityType     string
	FieldName      string
	EncryptionType DataType
	MaskingType    masking.Type
	MaskPattern    string
}

// FieldDefinition はフィールド名をキーとした定義値。
type FieldDefinition struct {
	EncryptionType DataType
	MaskingType    masking.Type
	MaskPattern    string
}

// MaskingRule は表示用途に公開してよいマスキング情報のみを持つ。
// EncryptionType は暗号パラメータの推測につながるため含めない。
type MaskingRule struct {
	MaskingType masking.Type `json:"maskingType"`
	Pattern     string       `json:"pattern,omitempty"`
}

package repository

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"field-protection-service/internal/domain"
	"field-protection-service/pkg/masking"
)

// sensitiveFieldsFile はSENSITIVE_FIELDS_FILEのYAML形式。
//
//	entities:
//	  user:
//	    email: {encryption: STRING, masking: EMAIL}
//	    ssn: {encryption: STRING, masking: CUSTOM, pattern: "CCC-CC-XXXX"}
type sensitiveFieldsFile struct {
	Entities map[string]map[string]struct {
		Encryption string `yaml:"encryption"`
		Masking    string `yaml:"masking"`
		Pattern    string `yaml:"pattern"`
	} `yaml:"entities"`
}

// LoadSensitiveFieldsFile はYAMLファイルから保護対象フィールド定義を読み込む。
func LoadSensitiveFieldsFile(path string) ([]*domain.SensitiveFieldDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sensitive fields file: %w", err)
	}
	return ParseSensitiveFields(raw)
}

// ParseSensitiveFields はYAMLを解析して定義一覧を返す。
func ParseSensitiveFields(raw []byte) ([]*domain.SensitiveFieldDefinition, error) {
	var file sensitiveFieldsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing sensitive fields file: %w", err)
	}

	var defs []*domain.SensitiveFieldDefinition
	for entityType, fields := range file.Entities {
		for fieldName, f := range fields {
			dataType, err := domain.ParseDataType(f.Encryption)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", entityType, fieldName, err)
			}
			maskType, ok := masking.ParseType(f.Masking)
			if !ok {
				return nil, fmt.Errorf("%s.%s: %w: %q", entityType, fieldName, domain.ErrInvalidMaskingType, f.Masking)
			}
			defs = append(defs, &domain.SensitiveFieldDefinition{
				EntityType:     entityType,
				FieldName:      fieldName,
				EncryptionType: dataType,
				MaskingType:    maskType,
				MaskPattern:    f.Pattern,
			})
		}
	}
	return defs, nil
}

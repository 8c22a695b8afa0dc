package domain

import "fmt"

// DataType は暗号化前の値の型を表すタグ。復号時の型復元に使う。
type DataType string

const (
	DataTypeString  DataType = "STRING"
	DataTypeNumber  DataType = "NUMBER"
	DataTypeBoolean DataType = "BOOLEAN"
	DataTypeDate    DataType = "DATE"
	DataTypeObject  DataType = "OBJECT"
	DataTypeArray   DataType = "ARRAY"
)

// ParseDataType は文字列をDataTypeに変換する。
func ParseDataType(s string) (DataType, error) {
	switch t := DataType(s); t {
	case DataTypeString, DataTypeNumber, DataTypeBoolean, DataTypeDate, DataTypeObject, DataTypeArray:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDataType, s)
}

// EncryptedValue はフィールド暗号化の結果を表す。
// EncryptedData は base64(IV ‖ ciphertext ‖ authTag)。
type EncryptedValue struct {
	EncryptedData string
	KeyIdentifier string
	DataType      DataType
}

// FieldMetadata は暗号化済みフィールドの復号に必要な情報。
type FieldMetadata struct {
	KeyIdentifier string   `json:"keyIdentifier"`
	DataType      DataType `json:"dataType"`
}

// Entity は任意のエンティティをフィールド名→値のマップとして表す。
type Entity map[string]any

// Clone はシャローコピーを返す。
func (e Entity) Clone() Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"field-protection-service/internal/domain"
)

// dateLayout はDATE型の直列化形式（ミリ秒精度のISO-8601、UTC）。
const dateLayout = "2006-01-02T15:04:05.000Z07:00"

// serializeValue はデータ型に応じて値を文字列化する。
func serializeValue(value any, dataType domain.DataType) (string, error) {
	switch dataType {
	case domain.DataTypeString:
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		default:
			return fmt.Sprint(v), nil
		}
	case domain.DataTypeNumber:
		f, err := toFloat64(value)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case domain.DataTypeBoolean:
		switch v := value.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return "", fmt.Errorf("%w: %q is not a boolean", domain.ErrSerialization, v)
			}
			return strconv.FormatBool(b), nil
		}
		return "", fmt.Errorf("%w: %T is not a boolean", domain.ErrSerialization, value)
	case domain.DataTypeDate:
		t, err := toTime(value)
		if err != nil {
			return "", err
		}
		return t.UTC().Format(dateLayout), nil
	case domain.DataTypeObject, domain.DataTypeArray:
		b, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrSerialization, err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidDataType, dataType)
	}
}

// deserializeValue は復号した文字列をデータ型に応じて復元する。
// NUMBERはfloat64、DATEはtime.Time（UTC）、OBJECT/ARRAYはJSONのデコード結果を返す。
func deserializeValue(s string, dataType domain.DataType) (any, error) {
	switch dataType {
	case domain.DataTypeString:
		return s, nil
	case domain.DataTypeNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDeserialization, err)
		}
		return f, nil
	case domain.DataTypeBoolean:
		return s == "true", nil
	case domain.DataTypeDate:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDeserialization, err)
		}
		return t.UTC(), nil
	case domain.DataTypeObject, domain.DataTypeArray:
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDeserialization, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDataType, dataType)
	}
}

// toFloat64 は数値またはその文字列表現を有限のfloat64に変換する。
func toFloat64(value any) (float64, error) {
	f, err := numericValue(value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not a finite number", domain.ErrSerialization, f)
	}
	return f, nil
}

func numericValue(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return parseNumber(string(v))
	case string:
		return parseNumber(v)
	}
	return 0, fmt.Errorf("%w: %T is not a number", domain.ErrSerialization, value)
}

func parseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", domain.ErrSerialization, s)
	}
	return f, nil
}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	case string:
		for _, layout := range dateInputLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q is not an ISO-8601 timestamp", domain.ErrSerialization, v)
	}
	return time.Time{}, fmt.Errorf("%w: %T is not a date", domain.ErrSerialization, value)
}

// dateInputLayouts はDATEとして受け付ける文字列の形式。タイムゾーンのない形式はUTCとみなす。
var dateInputLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// isAbsent はフィールド値が未設定（nilまたはnilポインタ等）かを返す。
func isAbsent(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

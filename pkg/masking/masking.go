// Package masking は表示用のマスキング関数を提供する。
//
// すべての関数は純粋関数で、不正な入力に対してもエラーやpanicを起こさない。
// 空文字列は空文字列のまま、解釈できない入力は原則そのまま返す。
package masking

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Type はマスキング種別を表す。
type Type string

const (
	TypeEmail       Type = "EMAIL"
	TypePhone       Type = "PHONE"
	TypeName        Type = "NAME"
	TypeAddress     Type = "ADDRESS"
	TypeCreditCard  Type = "CREDIT_CARD"
	TypePassport    Type = "PASSPORT"
	TypeNationalID  Type = "NATIONAL_ID"
	TypeDateOfBirth Type = "DATE_OF_BIRTH"
	TypeCustom      Type = "CUSTOM"
)

// ParseType は文字列をTypeに変換する。未知の種別はfalseを返す。
func ParseType(s string) (Type, bool) {
	switch t := Type(strings.ToUpper(s)); t {
	case TypeEmail, TypePhone, TypeName, TypeAddress, TypeCreditCard,
		TypePassport, TypeNationalID, TypeDateOfBirth, TypeCustom:
		return t, true
	}
	return "", false
}

const maskChar = '*'

var (
	zipCodeRegex       = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	allDigitsRegex     = regexp.MustCompile(`^\d+$`)
	nineDigitsRegex    = regexp.MustCompile(`^\d{9}$`)
	fourDigitYearRegex = regexp.MustCompile(`^\d{4}$`)
	dateDelimiterRegex = regexp.MustCompile(`[/.\-]`)
	addressSplitRegex  = regexp.MustCompile(`[,\n]`)
)

// 生年月日として解釈を試みるレイアウト。
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

func stars(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(string(maskChar), n)
}

// keepFirst は先頭1文字を残し、残りを同数の*に置き換える。
func keepFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(r) + stars(utf8.RuneCountInString(s[size:]))
}

// keepLast4 は末尾4文字を残し、残りを同数の*に置き換える。
func keepLast4(s string) string {
	runes := []rune(s)
	return stars(len(runes)-4) + string(runes[len(runes)-4:])
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Email はローカル部の先頭1文字のみを残す。例: j***@example.com
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 || utf8.RuneCountInString(parts[0]) <= 1 {
		return s
	}
	first, _ := utf8.DecodeRuneInString(parts[0])
	return string(first) + "***@" + parts[1]
}

// Phone は末尾4桁のみを残す。10桁の場合は ***-***-1234 形式。
func Phone(s string) string {
	digits := digitsOnly(s)
	if len(digits) < 4 {
		return s
	}
	last4 := digits[len(digits)-4:]
	if len(digits) == 10 {
		return "***-***-" + last4
	}
	return stars(len(digits)-4) + "-" + last4
}

// Name は空白区切りの各語について先頭1文字のみを残す。
func Name(s string) string {
	tokens := strings.Split(s, " ")
	for i, tok := range tokens {
		if utf8.RuneCountInString(tok) > 1 {
			tokens[i] = keepFirst(tok)
		}
	}
	return strings.Join(tokens, " ")
}

// Address は住所の各語をマスクする。
// 2文字以下の語はそのまま、郵便番号は全桁、数字のみの語は先頭1桁を残す。
func Address(s string) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	parts := addressSplitRegex.Split(s, -1)
	for i, part := range parts {
		words := strings.Split(strings.TrimSpace(part), " ")
		for j, w := range words {
			words[j] = maskAddressWord(w)
		}
		parts[i] = strings.Join(words, " ")
	}
	return strings.Join(parts, ", ")
}

func maskAddressWord(w string) string {
	n := utf8.RuneCountInString(w)
	switch {
	case n <= 2:
		return w
	case zipCodeRegex.MatchString(w):
		// 5桁のみの語は番地ではなく郵便番号として扱う
		return stars(n)
	case allDigitsRegex.MatchString(w):
		return w[:1] + stars(n-1)
	default:
		return keepFirst(w)
	}
}

// CreditCard は末尾4桁のみを残す。例: ************ 1111
func CreditCard(s string) string {
	digits := digitsOnly(s)
	if len(digits) < 4 {
		return s
	}
	last4 := digits[len(digits)-4:]
	masked := stars(len(digits) - 4)
	if masked == "" {
		return last4
	}
	return masked + " " + last4
}

// Passport は空白を除去し、末尾4文字のみを残す。
func Passport(s string) string {
	compact := strings.ReplaceAll(s, " ", "")
	if utf8.RuneCountInString(compact) < 4 {
		return s
	}
	return keepLast4(compact)
}

// NationalID は英数字以外を除去し、末尾4文字のみを残す。
// 9桁の数字はSSN形式 ***-**-1234 で返す。
func NationalID(s string) string {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
	if utf8.RuneCountInString(compact) < 4 {
		return s
	}
	if nineDigitsRegex.MatchString(compact) {
		return "***-**-" + compact[5:]
	}
	return keepLast4(compact)
}

// DateOfBirth は年のみを残す。例: **/**/1990
func DateOfBirth(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return "**/**/" + t.Format("2006")
		}
	}
	parts := dateDelimiterRegex.Split(trimmed, -1)
	if len(parts) == 3 {
		for _, p := range parts {
			if fourDigitYearRegex.MatchString(p) {
				return "**/**/" + p
			}
		}
	}
	return "**/**/****"
}

// ApplyCustomMask はパターンに従ってマスクする。マスク文字は '*'。
func ApplyCustomMask(value, pattern string) string {
	return ApplyCustomMaskWith(value, pattern, maskChar)
}

// ApplyCustomMaskWith はパターンに従ってマスクする。
// 'X' は元の文字をそのまま出力、'C' は元の文字を maskWith に置き換え、
// それ以外はリテラルとして元の文字を消費せずに出力する。
// 元の文字列を使い切った時点で終了する。
func ApplyCustomMaskWith(value, pattern string, maskWith rune) string {
	src := []rune(value)
	var b strings.Builder
	i := 0
	for _, p := range pattern {
		if i >= len(src) {
			break
		}
		switch p {
		case 'X':
			b.WriteRune(src[i])
			i++
		case 'C':
			b.WriteRune(maskWith)
			i++
		default:
			b.WriteRune(p)
		}
	}
	return b.String()
}

// Value はマスキング種別に応じて振り分ける。
// CUSTOM でパターン未指定の場合と未知の種別は値をそのまま返す。
func Value(value string, t Type, customPattern string) string {
	switch t {
	case TypeEmail:
		return Email(value)
	case TypePhone:
		return Phone(value)
	case TypeName:
		return Name(value)
	case TypeAddress:
		return Address(value)
	case TypeCreditCard:
		return CreditCard(value)
	case TypePassport:
		return Passport(value)
	case TypeNationalID:
		return NationalID(value)
	case TypeDateOfBirth:
		return DateOfBirth(value)
	case TypeCustom:
		if customPattern == "" {
			return value
		}
		return ApplyCustomMask(value, customPattern)
	default:
		return value
	}
}

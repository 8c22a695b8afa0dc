// Package aead は AES-256-GCM による認証付き暗号化を提供する。
//
// 出力形式は IV(16バイト) ‖ ciphertext ‖ authTag(16バイト)。
// 既存の暗号文との互換性のため、このレイアウトは変更しないこと。
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// KeySize はAES-256の鍵長。
	KeySize = 32
	// IVSize はIV長。GCM標準の12バイトではなく16バイトを使う。
	IVSize = 16
	// TagSize は認証タグ長。
	TagSize = 16
)

// ErrAuthentication は認証タグの検証に失敗した場合のエラー。
var ErrAuthentication = errors.New("message authentication failed")

// ErrMalformed は暗号文の長さが不足している場合のエラー。
var ErrMalformed = errors.New("malformed ciphertext")

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// Seal は呼び出しごとにランダムなIVを生成して暗号化する。
// aad が nil でなければ関連データとして認証タグに束縛する。
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, IVSize, IVSize+len(plaintext)+TagSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating IV: %w", err)
	}
	// Go の GCM は ciphertext ‖ tag を返すので、IV の後ろに追記する
	return gcm.Seal(iv, iv, plaintext, aad), nil
}

// Open は Seal の出力を検証しつつ復号する。
func Open(key, data, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < IVSize+TagSize {
		return nil, ErrMalformed
	}
	iv, sealed := data[:IVSize], data[IVSize:]
	plaintext, err := gcm.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

package domain

import "errors"

var (
	// ErrKeyNotFound は指定された鍵識別子の鍵が存在しない場合のエラー。
	ErrKeyNotFound = errors.New("key not found")

	// ErrResourceNotFound は判定対象のリソースが存在しない場合のエラー。
	ErrResourceNotFound = errors.New("resource not found")

	// ErrDecryptionFailed は認証タグ不一致・コンテキスト不一致・暗号文破損の場合のエラー。
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrSerialization は値を指定のデータ型として表現できない場合のエラー。
	ErrSerialization = errors.New("could not serialize value")

	// ErrDeserialization は復号したデータを指定のデータ型に戻せない場合のエラー。
	ErrDeserialization = errors.New("could not parse decrypted data")

	// ErrInvalidDataType はデータ型タグが不正な場合のエラー。
	ErrInvalidDataType = errors.New("invalid data type")

	// ErrInvalidMaskingType はマスキング種別が不正な場合のエラー。
	ErrInvalidMaskingType = errors.New("invalid masking type")

	// ErrInvalidEntityType はエンティティ種別の形式が不正な場合のエラー。
	ErrInvalidEntityType = errors.New("invalid entity type")

	// ErrInvalidResourceType はリソース種別が不正な場合のエラー。
	ErrInvalidResourceType = errors.New("invalid resource type")

	// ErrInvalidAction は操作種別が不正な場合のエラー。
	ErrInvalidAction = errors.New("invalid action")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)

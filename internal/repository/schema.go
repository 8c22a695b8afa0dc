package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// AutoMigrate は本サービスが所有するテーブルをモデル定義から作成する。
// SQLiteによるローカル実行用で、MySQLではmigrationsのSQLを使う。
// アクセス判定で参照する外部テーブルは作成しない。
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&FieldEncryptionKeyModel{},
		&SensitiveFieldModel{},
		&SchemaMigrationModel{},
	); err != nil {
		return fmt.Errorf("auto migrating schema: %w", err)
	}
	return nil
}

package repository

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
// 本サービス所有のテーブルに加え、アクセス判定で参照する外部テーブルも作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// :memory: は接続ごとに別DBになるため1接続に固定する
	sqlDB.SetMaxOpenConns(1)

	statements := []string{
		`CREATE TABLE field_encryption_keys (
			id TEXT PRIMARY KEY,
			key_identifier TEXT NOT NULL UNIQUE,
			encrypted_key BLOB NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			rotation_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_used_at DATETIME,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE sensitive_field_definitions (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			field_name TEXT NOT NULL,
			encryption_type TEXT NOT NULL,
			masking_type TEXT NOT NULL,
			mask_pattern TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(entity_type, field_name)
		)`,
		`CREATE TABLE users (id TEXT PRIMARY KEY, role TEXT NOT NULL)`,
		`CREATE TABLE cases (id TEXT PRIMARY KEY, applicant_id TEXT NOT NULL, agent_id TEXT, status TEXT NOT NULL)`,
		`CREATE TABLE documents (id TEXT PRIMARY KEY, case_id TEXT NOT NULL)`,
		`CREATE TABLE forms (id TEXT PRIMARY KEY, case_id TEXT NOT NULL)`,
		`CREATE TABLE reports (id TEXT PRIMARY KEY, created_by_id TEXT NOT NULL)`,
		`CREATE TABLE consultations (id TEXT PRIMARY KEY, case_id TEXT NOT NULL, expert_id TEXT NOT NULL, status TEXT NOT NULL)`,
		`CREATE TABLE permission_groups (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE permission_group_permissions (group_id TEXT NOT NULL, permission TEXT NOT NULL)`,
		`CREATE TABLE user_permission_groups (user_id TEXT NOT NULL, group_id TEXT NOT NULL)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create test schema: %v", err)
		}
	}

	return db
}

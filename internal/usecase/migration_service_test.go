package usecase

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"field-protection-service/internal/domain"
)

// mockMigrationRepository はテスト用のモック。
type mockMigrationRepository struct {
	appliedMigrations map[string]*domain.Migration
	ensureErr         error
	ensured           int
}

func newMockMigrationRepository() *mockMigrationRepository {
	return &mockMigrationRepository{
		appliedMigrations: make(map[string]*domain.Migration),
	}
}

func (m *mockMigrationRepository) EnsureTable(ctx context.Context) error {
	m.ensured++
	return m.ensureErr
}

func (m *mockMigrationRepository) FindAllApplied(ctx context.Context) ([]*domain.Migration, error) {
	var result []*domain.Migration
	for _, migration := range m.appliedMigrations {
		result = append(result, migration)
	}
	return result, nil
}

// Record はトランザクション内でschema_migrationsに書き込み、メモリにも保持する。
func (m *mockMigrationRepository) Record(ctx context.Context, tx *gorm.DB, migration *domain.Migration) error {
	now := time.Now()
	err := tx.Table("schema_migrations").Create(map[string]any{
		"version":    migration.Version,
		"checksum":   migration.Checksum,
		"applied_at": now,
	}).Error
	if err != nil {
		return err
	}
	m.appliedMigrations[migration.Version] = &domain.Migration{
		Version:   migration.Version,
		Checksum:  migration.Checksum,
		AppliedAt: &now,
		Status:    domain.MigrationStatusApplied,
	}
	return nil
}

func (m *mockMigrationRepository) markApplied(versions ...string) {
	now := time.Now()
	for _, v := range versions {
		m.appliedMigrations[v] = &domain.Migration{
			Version:   v,
			AppliedAt: &now,
			Status:    domain.MigrationStatusApplied,
		}
	}
}

// testMigrations はテスト用のマイグレーションファイル群を返す。
func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"001_create_users.sql":   {Data: []byte("CREATE TABLE users (id INT);")},
		"002_create_cases.sql":   {Data: []byte("CREATE TABLE cases (id INT);\nCREATE INDEX idx_cases_id ON cases (id);")},
		"003_create_reports.sql": {Data: []byte("CREATE TABLE reports (id INT);")},
		"README.md":              {Data: []byte("ignored")},
	}
}

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
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
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("CREATE TABLE schema_migrations (version VARCHAR(14) PRIMARY KEY, checksum CHAR(64), applied_at DATETIME)").Error; err != nil {
		t.Fatalf("failed to create schema_migrations table: %v", err)
	}
	return db
}

func tableExists(t *testing.T, db *gorm.DB, kind, name string) bool {
	t.Helper()
	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name).Scan(&count).Error; err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrationService_ApplyMigrations(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := newMockMigrationRepository()

	service := NewMigrationService(repo, db, testMigrations())

	count, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 migrations applied, got %d", count)
	}
	if repo.ensured != 1 {
		t.Errorf("expected schema_migrations to be ensured once, got %d", repo.ensured)
	}

	for _, table := range []string{"users", "cases", "reports"} {
		if !tableExists(t, db, "table", table) {
			t.Errorf("table %s was not created", table)
		}
	}
	// 1ファイル内の複数文も実行される
	if !tableExists(t, db, "index", "idx_cases_id") {
		t.Error("index idx_cases_id was not created")
	}

	var recorded int64
	if err := db.Table("schema_migrations").Count(&recorded).Error; err != nil {
		t.Fatalf("failed to count schema_migrations: %v", err)
	}
	if recorded != 3 {
		t.Errorf("expected 3 recorded versions, got %d", recorded)
	}
}

func TestMigrationService_ApplyMigrations_AlreadyApplied(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := newMockMigrationRepository()
	repo.markApplied("001", "002")

	service := NewMigrationService(repo, db, testMigrations())

	count, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	// 未適用のマイグレーションのみ実行される
	if count != 1 {
		t.Errorf("expected 1 migration applied, got %d", count)
	}
	if tableExists(t, db, "table", "users") {
		t.Error("already applied migration 001 should not run again")
	}
}

func TestMigrationService_ApplyMigrations_Error(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	source := testMigrations()
	source["004_invalid.sql"] = &fstest.MapFile{Data: []byte("INVALID SQL SYNTAX;")}

	service := NewMigrationService(newMockMigrationRepository(), db, source)

	count, err := service.ApplyMigrations(ctx)
	if !errors.Is(err, domain.ErrMigrationFailed) {
		t.Errorf("expected ErrMigrationFailed, got %v", err)
	}
	// 失敗より前のマイグレーションは適用済み
	if count != 3 {
		t.Errorf("expected 3 migrations applied before failure, got %d", count)
	}
}

func TestMigrationService_InvalidFileName(t *testing.T) {
	source := testMigrations()
	source["bogus.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}

	service := NewMigrationService(newMockMigrationRepository(), setupTestDB(t), source)

	_, err := service.ApplyMigrations(context.Background())
	if !errors.Is(err, domain.ErrInvalidMigrationFile) {
		t.Errorf("expected ErrInvalidMigrationFile, got %v", err)
	}
}

func TestMigrationService_DuplicateVersion(t *testing.T) {
	source := testMigrations()
	source["001_again.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}

	service := NewMigrationService(newMockMigrationRepository(), setupTestDB(t), source)

	_, err := service.GetMigrationStatus(context.Background())
	if !errors.Is(err, domain.ErrInvalidMigrationFile) {
		t.Errorf("expected ErrInvalidMigrationFile, got %v", err)
	}
}

func TestMigrationService_EnsureTableError(t *testing.T) {
	repo := newMockMigrationRepository()
	repo.ensureErr = errors.New("permission denied")

	service := NewMigrationService(repo, setupTestDB(t), testMigrations())

	if _, err := service.ApplyMigrations(context.Background()); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestMigrationService_GetMigrationStatus(t *testing.T) {
	ctx := context.Background()
	repo := newMockMigrationRepository()
	repo.markApplied("001")

	service := NewMigrationService(repo, setupTestDB(t), testMigrations())

	migrations, err := service.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	expected := []struct {
		version string
		name    string
		status  domain.MigrationStatus
	}{
		{"001", "create_users", domain.MigrationStatusApplied},
		{"002", "create_cases", domain.MigrationStatusPending},
		{"003", "create_reports", domain.MigrationStatusPending},
	}
	for i, want := range expected {
		got := migrations[i]
		if got.Version != want.version || got.Name != want.name || got.Status != want.status {
			t.Errorf("migrations[%d]: expected %s/%s/%s, got %s/%s/%s",
				i, want.version, want.name, want.status, got.Version, got.Name, got.Status)
		}
	}
	if migrations[0].AppliedAt == nil {
		t.Error("expected applied_at for applied migration")
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (id INT);\n\n  CREATE TABLE b (id INT) ;\n")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(stmts), stmts)
	}
	if stmts[1] != "CREATE TABLE b (id INT)" {
		t.Errorf("unexpected statement %q", stmts[1])
	}
}

func TestMigrationService_ModifiedAfterApply(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := newMockMigrationRepository()
	source := testMigrations()

	service := NewMigrationService(repo, db, source)
	if _, err := service.ApplyMigrations(ctx); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if repo.appliedMigrations["001"].Checksum == "" {
		t.Fatal("expected checksum to be recorded")
	}

	// 適用後にファイルを書き換える
	source["001_create_users.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE users (id INT, name TEXT);")}

	count, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if count != 0 {
		t.Errorf("modified migration must not be re-applied, got %d", count)
	}

	migrations, err := service.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if migrations[0].Status != domain.MigrationStatusModified {
		t.Errorf("expected 001 to be modified, got %s", migrations[0].Status)
	}
	if migrations[1].Status != domain.MigrationStatusApplied {
		t.Errorf("expected 002 to be applied, got %s", migrations[1].Status)
	}
}

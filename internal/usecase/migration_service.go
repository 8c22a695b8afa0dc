package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"gorm.io/gorm"

	"field-protection-service/internal/domain"
)

// MigrationRepository はマイグレーション履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	EnsureTable(ctx context.Context) error
	FindAllApplied(ctx context.Context) ([]*domain.Migration, error)
	Record(ctx context.Context, tx *gorm.DB, migration *domain.Migration) error
}

// MigrationService は番号付きSQLファイルによるスキーマ移行を提供する。
type MigrationService struct {
	repo   MigrationRepository
	db     *gorm.DB
	source fs.FS
}

// NewMigrationService は新しいMigrationServiceを生成する。
// sourceは埋め込みのmigrations.FSまたはos.DirFSを想定する。
func NewMigrationService(repo MigrationRepository, db *gorm.DB, source fs.FS) *MigrationService {
	return &MigrationService{
		repo:   repo,
		db:     db,
		source: source,
	}
}

// scanMigrationFiles は.sqlファイルをバージョン順に列挙し、内容のチェックサムを計算する。
func (s *MigrationService) scanMigrationFiles() ([]*domain.Migration, error) {
	entries, err := fs.ReadDir(s.source, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", domain.ErrMigrationFileNotFound, err)
		}
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var migrations []*domain.Migration
	seen := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("%w: version %s used by %s and %s", domain.ErrInvalidMigrationFile, version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(s.source, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(content)

		migrations = append(migrations, &domain.Migration{
			Version:  version,
			Name:     name,
			FilePath: entry.Name(),
			Checksum: hex.EncodeToString(sum[:]),
			Status:   domain.MigrationStatusPending,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFileName はファイル名からバージョンと名前を抽出する。
// ファイル名のフォーマット: {version}_{name}.sql (例: 001_create_field_encryption_keys.sql)
func parseMigrationFileName(filename string) (version, name string, err error) {
	parts := strings.SplitN(strings.TrimSuffix(filename, ".sql"), "_", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}
	return parts[0], parts[1], nil
}

// splitStatements はSQLをセミコロン区切りの文に分割する。
// 文字列リテラル内のセミコロンは考慮しない。
func splitStatements(sql string) []string {
	var stmts []string
	for _, stmt := range strings.Split(sql, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// appliedByVersion は適用履歴をバージョンで引けるようにする。
func (s *MigrationService) appliedByVersion(ctx context.Context) (map[string]*domain.Migration, error) {
	applied, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching applied migrations: %w", err)
	}
	byVersion := make(map[string]*domain.Migration, len(applied))
	for _, m := range applied {
		byVersion[m.Version] = m
	}
	return byVersion, nil
}

// checksumMismatch は記録済みのチェックサムがファイルと一致しないかを返す。
// チェックサム未記録の履歴は比較しない。
func checksumMismatch(file, applied *domain.Migration) bool {
	return applied.Checksum != "" && applied.Checksum != file.Checksum
}

// ApplyMigrations は未適用マイグレーションを番号順に実行し、適用件数を返す。
// 適用済みファイルの内容が変わっている場合は警告のみ出し、再実行しない。
func (s *MigrationService) ApplyMigrations(ctx context.Context) (int, error) {
	if err := s.repo.EnsureTable(ctx); err != nil {
		return 0, fmt.Errorf("preparing schema_migrations: %w", err)
	}

	allMigrations, err := s.scanMigrationFiles()
	if err != nil {
		slog.ErrorContext(ctx, "failed to scan migration files",
			"operation", "apply_migrations",
			"error", err,
		)
		return 0, err
	}

	applied, err := s.appliedByVersion(ctx)
	if err != nil {
		return 0, err
	}

	appliedCount := 0
	for _, migration := range allMigrations {
		if prev, ok := applied[migration.Version]; ok {
			if checksumMismatch(migration, prev) {
				slog.WarnContext(ctx, "applied migration file has been modified",
					"version", migration.Version,
					"file", migration.FilePath,
				)
			}
			continue
		}

		if err := s.applyMigration(ctx, migration); err != nil {
			slog.ErrorContext(ctx, "failed to apply migration",
				"operation", "apply_migrations",
				"version", migration.Version,
				"error", err,
			)
			return appliedCount, fmt.Errorf("%w: version %s: %v", domain.ErrMigrationFailed, migration.Version, err)
		}
		slog.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"name", migration.Name,
		)
		appliedCount++
	}
	return appliedCount, nil
}

// applyMigration は単一のマイグレーションと履歴の記録を同一トランザクションで実行する。
// MySQLのDDLは暗黙コミットされるため、失敗時に巻き戻るのは履歴の記録のみ。
func (s *MigrationService) applyMigration(ctx context.Context, migration *domain.Migration) error {
	sqlBytes, err := fs.ReadFile(s.source, migration.FilePath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", migration.FilePath, err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range splitStatements(string(sqlBytes)) {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("executing %s: %w", migration.FilePath, err)
			}
		}
		if err := s.repo.Record(ctx, tx, migration); err != nil {
			return fmt.Errorf("recording migration: %w", err)
		}
		return nil
	})
}

// GetMigrationStatus は全マイグレーションの適用状況を取得する。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	if err := s.repo.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("preparing schema_migrations: %w", err)
	}

	allMigrations, err := s.scanMigrationFiles()
	if err != nil {
		return nil, err
	}

	applied, err := s.appliedByVersion(ctx)
	if err != nil {
		return nil, err
	}
	for _, migration := range allMigrations {
		prev, ok := applied[migration.Version]
		if !ok {
			continue
		}
		migration.AppliedAt = prev.AppliedAt
		migration.Status = domain.MigrationStatusApplied
		if checksumMismatch(migration, prev) {
			migration.Status = domain.MigrationStatusModified
		}
	}
	return allMigrations, nil
}

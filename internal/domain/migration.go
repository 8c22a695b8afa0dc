package domain

import "time"

// MigrationStatus はスキーマ移行ファイルの適用状態。
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
	// MigrationStatusModified は適用後にファイルの内容が変わったことを示す。
	MigrationStatusModified MigrationStatus = "modified"
)

// Migration は番号付きSQLファイル1件と、その適用履歴。
// Checksum はファイル内容のSHA-256（16進）。適用履歴側では記録時の値を持つ。
type Migration struct {
	Version   string
	Name      string
	FilePath  string
	Checksum  string
	AppliedAt *time.Time
	Status    MigrationStatus
}

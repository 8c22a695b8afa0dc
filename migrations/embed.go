// Package migrations はMySQL用のスキーマ定義SQLを埋め込みで提供する。
package migrations

import "embed"

// FS は番号付きマイグレーションファイル（{version}_{name}.sql）。
//
//go:embed *.sql
var FS embed.FS

// Package migrations はデータベース方言ごとのSQLマイグレーションを埋め込む。
package migrations

import "embed"

// FS は {dialect}/{version}_{name}.sql の形式でマイグレーションを保持する。
//
//go:embed mysql/*.sql postgres/*.sql sqlite/*.sql
var FS embed.FS

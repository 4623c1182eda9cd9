// Package migrations embeds the goose SQL migrations for the transaction ledger.
//
// The statements are written in the common subset understood by MySQL,
// PostgreSQL and SQLite so one migration set serves every SQL driver.
package migrations

import "embed"

// Files 暴露所有 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS

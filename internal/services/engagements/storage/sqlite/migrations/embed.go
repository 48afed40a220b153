package migrations

import "embed"

// FS contains embedded SQLite migrations for engagements storage.
//
//go:embed *.sql
var FS embed.FS

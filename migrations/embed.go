// Package migrations embeds the SQL schema migrations so the pulsewatch
// binary can manage its own schema without migration files on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

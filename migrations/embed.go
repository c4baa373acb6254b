// Package migrations embeds the onboarding database schema.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files applied at startup.
//
//go:embed *.sql
var FS embed.FS

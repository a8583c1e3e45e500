// Package migrations embeds the SQL migration files into the binary so the
// station needs nothing but the executable and its config.
package migrations

import "embed"

// FS holds every *.sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS

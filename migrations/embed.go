// Package migrations embeds the SQL migration files so the migrate
// command and the integration tests can apply them without a checkout
// of the repository layout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

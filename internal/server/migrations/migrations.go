// Package migrations embeds the goose migrations that lay out a user store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

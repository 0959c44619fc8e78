// Package migrations embeds the PostgreSQL schema for goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

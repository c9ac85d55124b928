// Package migrations embeds the plankit Postgres schema.
package migrations

import "embed"

//go:embed postgres/*.sql
var Postgres embed.FS

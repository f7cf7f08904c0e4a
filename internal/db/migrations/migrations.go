// Package migrations embebe los scripts SQL aplicados con goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

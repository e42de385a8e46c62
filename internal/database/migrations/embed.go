// Package migrations embeds the goose SQL migrations for the credential
// store.  The DDL sticks to syntax MySQL and SQLite both accept so the test
// suite can apply the same files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

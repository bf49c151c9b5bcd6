// Package migrations holds the versioned schema of the catalog database.
// The files are embedded so the server and the migrate tool apply the same set.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Package migrations embeds the postgres schema so binaries can migrate
// without the source tree.
package migrations

import "embed"

// FS holds the ordered *.sql migrations.
//
//go:embed *.sql
var FS embed.FS

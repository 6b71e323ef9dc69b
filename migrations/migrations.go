// Package migrations embeds the metadata store schema so a deployed binary
// migrates itself regardless of its working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Package migrations embeds the schema migrations for every supported driver.
package migrations

import "embed"

// FS holds postgres/ and sqlite/ migration directories.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

package migrations

import "embed"

// FS holds the migration scripts, named NNN_description.sql.
//
//go:embed scripts/*.sql
var FS embed.FS

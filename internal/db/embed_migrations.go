package db

import "embed"

// MigrationFS embeds the SQL migrations, one directory per identity model
// (migrations/joined, migrations/partitioned).
//
//go:embed migrations
var MigrationFS embed.FS

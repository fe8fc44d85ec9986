// Package schema embeds the SQL migrations that define the database layout:
// the documents table with its change-notification trigger, user accounts,
// and login sessions. Files run in lexical order; see postgresdb.Migrate.
package schema

import "embed"

//go:embed pgmigrations/*.sql
var MigrationsFS embed.FS

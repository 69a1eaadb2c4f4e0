package store

import "embed"

// Migrations embeds the schema migration SQL files so both cmd/migrate and
// the testcontainers-based integration tests apply identical schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

package storage

import "embed"

// Migrations holds the schema migration files consumed by the
// blip0-migrate tool and by integration test setups.
//
//go:embed migrations/*.sql
var Migrations embed.FS

package migrations

import (
	"embed"

	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var migrationFS embed.FS

// FS exposes the embedded SQL so callers can run it through their own
// migration tooling instead of bun.
var FS = migrationFS

// Migrations is the bun/migrate registry for the entitlement schema.
var Migrations = migrate.NewMigrations()

func init() {
	if err := Migrations.Discover(migrationFS); err != nil {
		panic(err)
	}
}

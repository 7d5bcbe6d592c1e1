// Package migrations holds the versioned SQL upgrade scripts for the
// relational (SQLite) form of a Backup Information Database.
//
// Unlike claircore's postgres migrations (datastore/postgres/migrations),
// version tracking here lives in the schema's own backup_db.version column
// rather than a separate migrations table, so Migrations is applied by a
// small driver-neutral runner (see bid.applyMigrations) instead of
// remind101/migrate's Postgres-specific Migrator. The migrate.Migration
// type is reused as the container for each step's embedded SQL text.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/remind101/migrate"
)

//go:embed schema/*.sql
var sys embed.FS

//go:embed schema_postgres/*.sql
var sysPostgres embed.FS

func init() {
	Migrations = loadMigrations(sys, "schema")
	MigrationsPostgres = loadMigrations(sysPostgres, "schema_postgres")
}

// Migrations is the ordered list of relational schema upgrade steps for the
// default SQLite backend. ID 1 creates the initial schema; later IDs are
// additive migrations applied in order when an existing database reports
// an older backup_db.version.
var Migrations []migrate.Migration

// MigrationsPostgres mirrors Migrations for the optional Postgres backend;
// its schema uses SERIAL/BOOLEAN/BYTEA in place of SQLite's
// INTEGER-affinity columns but tracks the same backup_db.version sequence.
var MigrationsPostgres []migrate.Migration

func loadMigrations(sys embed.FS, dir string) []migrate.Migration {
	ents, err := fs.ReadDir(sys, dir)
	if err != nil {
		panic(fmt.Errorf("programmer error: unable to read embed: %w", err))
	}
	names := make([]string, 0, len(ents))
	for _, ent := range ents {
		if path.Ext(ent.Name()) == ".sql" && ent.Type().IsRegular() {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)

	ms := make([]migrate.Migration, 0, len(names))
	for id, name := range names {
		p := path.Join(dir, name)
		ms = append(ms, migrate.Migration{
			ID: id + 1,
			Up: func(tx *sql.Tx) error {
				f, err := sys.Open(p)
				if err != nil {
					return fmt.Errorf("unable to open migration %q: %w", p, err)
				}
				defer f.Close()
				var b strings.Builder
				if _, err := io.Copy(&b, f); err != nil {
					return fmt.Errorf("unable to read migration %q: %w", p, err)
				}
				if _, err := tx.Exec(b.String()); err != nil {
					return fmt.Errorf("unable to exec migration %q: %w", p, err)
				}
				return nil
			},
		})
	}
	return ms
}

package bid

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register the "pgx" database/sql driver

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/bid/migrations"
)

// OpenPostgres opens dsn (a standard Postgres connection string or URL)
// through pgx's database/sql driver. It is the optional alternative to the
// embedded SQLite form the rest of this package defaults to — a host that
// already runs Postgres for everything else can point a BID at it instead
// of a local SQLite file.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("bid: opening postgres dsn: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("bid: opening postgres dsn: %w", err)
	}
	return db, nil
}

// applyMigrationsPostgres mirrors applyMigrations for the Postgres schema
// variant; the two can't share one implementation because the "does the
// schema exist yet" probe is driver-specific (sqlite_master vs
// information_schema.tables).
func applyMigrationsPostgres(db *sql.DB, name string) error {
	var exists int
	err := db.QueryRow(`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'backup_db'`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("bid: checking postgres schema: %w", err)
	}

	current := 0
	if exists > 0 {
		if err := db.QueryRow(`SELECT version FROM backup_db LIMIT 1`).Scan(&current); err != nil {
			return fmt.Errorf("bid: reading postgres schema version: %w", err)
		}
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("bid: on-disk postgres schema version %d newer than %d: %w",
			current, CurrentSchemaVersion, atbu.ErrSchemaDowngrade)
	}

	for _, m := range migrations.MigrationsPostgres {
		if m.ID <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("bid: beginning postgres migration %d: %w", m.ID, err)
		}
		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("bid: applying postgres migration %d: %w", m.ID, err)
		}
		if m.ID == 1 {
			if _, err := tx.Exec(`INSERT INTO backup_db(name, version) VALUES ($1, $2)`, name, m.ID); err != nil {
				tx.Rollback()
				return fmt.Errorf("bid: seeding postgres backup_db: %w", err)
			}
		} else if _, err := tx.Exec(`UPDATE backup_db SET version = $1`, m.ID); err != nil {
			tx.Rollback()
			return fmt.Errorf("bid: updating postgres schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("bid: committing postgres migration %d: %w", m.ID, err)
		}
		current = m.ID
	}
	return nil
}

// LoadRelationalPostgres reads the Postgres relational form of a BID
// through db, running any pending migrations first. It shares its row
// scanning with LoadRelational (loadSBIFiles, loadDigests) since both
// backends expose the same column set.
func LoadRelationalPostgres(db *sql.DB) (*Database, error) {
	if err := observeQuery("migrate", dialectPostgres, func() error { return applyMigrationsPostgres(db, "") }); err != nil {
		return nil, err
	}

	var name string
	var version int
	if err := db.QueryRow(`SELECT name, version FROM backup_db LIMIT 1`).Scan(&name, &version); err != nil {
		return nil, fmt.Errorf("bid: reading postgres backup_db: %w", err)
	}

	q := querier{execer: db, d: dialectPostgres}
	rows, err := q.Query(`
		SELECT sb.id, b.name, sb.name, sb.backup_start_time_utc, sb.object_name_hash_salt, sb.backup_type
		FROM specific_backups sb
		JOIN backups b ON b.id = sb.backups_id
		ORDER BY sb.id`)
	if err != nil {
		return nil, fmt.Errorf("bid: querying postgres specific_backups: %w", err)
	}
	defer rows.Close()

	type sbiRow struct {
		id                                     int64
		baseName, name, startTime, backupType string
		salt                                   []byte
	}
	var sbiRows []sbiRow
	for rows.Next() {
		var r sbiRow
		if err := rows.Scan(&r.id, &r.baseName, &r.name, &r.startTime, &r.salt, &r.backupType); err != nil {
			return nil, fmt.Errorf("bid: scanning postgres specific_backups: %w", err)
		}
		sbiRows = append(sbiRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sbis := make([]*atbu.SpecificBackupInformation, 0, len(sbiRows))
	for _, r := range sbiRows {
		sbi, err := loadSBIFiles(q, r.id, r.baseName, r.name, r.startTime, r.salt, r.backupType)
		if err != nil {
			return nil, err
		}
		sbis = append(sbis, sbi)
	}

	bidDB := &Database{
		Name:            name,
		SchemaVersion:   version,
		SpecificBackups: sbis,
		arena:           NewArena(),
	}
	if err := bidDB.Reindex(); err != nil {
		return nil, fmt.Errorf("bid: postgres: %w", err)
	}
	return bidDB, nil
}

// SaveRelationalPostgres persists db as a full rewrite to the Postgres
// relational form. Unlike SaveRelational it does not support the
// insert-hint fast path: pgx's database/sql driver does not implement
// Result.LastInsertId, so the per-row ID plumbing insertSBITx/insertBFITx
// share with SQLite only works inside a transaction that's about to
// commit as a whole — safe for a full rewrite, not worth threading
// RETURNING-based ID recovery through for the rarer incremental-append
// case on an optional secondary backend.
func SaveRelationalPostgres(db *Database, sqlDB *sql.DB) error {
	if err := applyMigrationsPostgres(sqlDB, db.Name); err != nil {
		return err
	}

	tx, err := sqlDB.Begin()
	if err != nil {
		return fmt.Errorf("bid: beginning postgres save: %w", err)
	}
	q := querier{execer: tx, d: dialectPostgres}
	if _, err := q.Exec(`DELETE FROM backup_file_digests`); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := q.Exec(`DELETE FROM backup_file_info`); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := q.Exec(`DELETE FROM specific_backups`); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := q.Exec(`UPDATE backup_db SET name = ?, version = ?`, db.Name, CurrentSchemaVersion); err != nil {
		tx.Rollback()
		return err
	}
	return observeQuery("save_full_rewrite", dialectPostgres, func() error {
		for _, sbi := range db.SpecificBackups {
			if err := insertSBITx(q, db.Name, sbi); err != nil {
				tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

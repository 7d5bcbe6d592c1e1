package bid

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite" // register the sqlite driver

	"github.com/AshleyT3/atbu-go"
	"github.com/AshleyT3/atbu-go/bid/migrations"
)

// openSQLite opens path as a SQLite database with foreign keys enforced,
// mirroring the driver setup claircore's rpm/sqlite package uses.
func openSQLite(path string) (*sql.DB, error) {
	u := url.URL{
		Scheme:   "file",
		Opaque:   path,
		RawQuery: url.Values{"_pragma": {"foreign_keys(1)"}}.Encode(),
	}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		return nil, fmt.Errorf("bid: opening %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("bid: opening %q: %w", path, err)
	}
	return db, nil
}

// applyMigrations applies every embedded migration newer than the SQLite
// BID file's stored version, creating the schema from scratch when the
// database is empty; a stored version above CurrentSchemaVersion is
// rejected. Unlike
// claircore's Postgres migrator, version tracking lives in the schema's
// own backup_db.version column, so each step runs inside its own
// transaction and updates that column directly rather than a separate
// migrations table.
func applyMigrations(db *sql.DB, name string) error {
	var exists int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='backup_db'`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("bid: checking schema: %w", err)
	}

	current := 0
	if exists > 0 {
		if err := db.QueryRow(`SELECT version FROM backup_db LIMIT 1`).Scan(&current); err != nil {
			return fmt.Errorf("bid: reading schema version: %w", err)
		}
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("bid: on-disk schema version %d newer than %d: %w",
			current, CurrentSchemaVersion, atbu.ErrSchemaDowngrade)
	}

	for _, m := range migrations.Migrations {
		if m.ID <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("bid: beginning migration %d: %w", m.ID, err)
		}
		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("bid: applying migration %d: %w", m.ID, err)
		}
		if m.ID == 1 {
			if _, err := tx.Exec(`INSERT INTO backup_db(name, version) VALUES (?, ?)`, name, m.ID); err != nil {
				tx.Rollback()
				return fmt.Errorf("bid: seeding backup_db: %w", err)
			}
		} else if _, err := tx.Exec(`UPDATE backup_db SET version = ?`, m.ID); err != nil {
			tx.Rollback()
			return fmt.Errorf("bid: updating schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("bid: committing migration %d: %w", m.ID, err)
		}
		current = m.ID
	}
	return nil
}

// LoadRelational reads the SQLite relational form of a BID from path,
// running any pending migrations first.
func LoadRelational(path string) (*Database, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := observeQuery("migrate", dialectSQLite, func() error { return applyMigrations(db, path) }); err != nil {
		return nil, err
	}

	var name string
	var version int
	if err := db.QueryRow(`SELECT name, version FROM backup_db LIMIT 1`).Scan(&name, &version); err != nil {
		return nil, fmt.Errorf("bid: reading backup_db: %w", err)
	}

	rows, err := db.Query(`
		SELECT sb.id, b.name, sb.name, sb.backup_start_time_utc, sb.object_name_hash_salt, sb.backup_type
		FROM specific_backups sb
		JOIN backups b ON b.id = sb.backups_id
		ORDER BY sb.id`)
	if err != nil {
		return nil, fmt.Errorf("bid: querying specific_backups: %w", err)
	}
	defer rows.Close()

	type sbiRow struct {
		id      int64
		baseName, name, startTime, backupType string
		salt    []byte
	}
	var sbiRows []sbiRow
	for rows.Next() {
		var r sbiRow
		if err := rows.Scan(&r.id, &r.baseName, &r.name, &r.startTime, &r.salt, &r.backupType); err != nil {
			return nil, fmt.Errorf("bid: scanning specific_backups: %w", err)
		}
		sbiRows = append(sbiRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sbis := make([]*atbu.SpecificBackupInformation, 0, len(sbiRows))
	for _, r := range sbiRows {
		sbi, err := loadSBIFiles(db, r.id, r.baseName, r.name, r.startTime, r.salt, r.backupType)
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
		return nil, fmt.Errorf("bid: %q: %w", path, err)
	}
	return bidDB, nil
}

func loadSBIFiles(db execer, sbiID int64, baseName, name, startTime string, salt []byte, backupType string) (*atbu.SpecificBackupInformation, error) {
	t, err := time.Parse(time.RFC3339Nano, startTime)
	if err != nil {
		return nil, fmt.Errorf("bid: parsing backup_start_time_utc %q: %w", startTime, err)
	}
	sbi := &atbu.SpecificBackupInformation{
		BackupBaseName:     baseName,
		SpecificBackupName: name,
		BackupStartTimeUTC: t,
		BackupType:         atbu.BackupType(backupType),
	}
	copy(sbi.ObjectNameHashSalt[:], salt)

	rows, err := db.Query(`
		SELECT bfi.id, p.path, dp.path, bfi.last_modified, bfi.last_accessed, bfi.size_in_bytes,
		       bfi.is_successful, bfi.exception, bfi.ciphertext_hash, bfi.encryption_iv,
		       bfi.storage_object_name, bfi.is_unchanged_since_last, bfi.is_backing_fi_digest,
		       bfi.deduplication_option
		FROM backup_file_info bfi
		JOIN path_values p ON p.id = bfi.path_value_id
		JOIN path_values dp ON dp.id = bfi.discovery_path_value_id
		WHERE bfi.specific_backup_id = ?
		ORDER BY bfi.id`, sbiID)
	if err != nil {
		return nil, fmt.Errorf("bid: querying backup_file_info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bfiID int64
		var path, discoveryPath string
		var exception, ciphertextHash, storageObjectName sql.NullString
		var iv []byte
		var bfi atbu.BackupFileInformation
		if err := rows.Scan(&bfiID, &path, &discoveryPath, &bfi.ModifiedTime, &bfi.AccessedTime,
			&bfi.SizeInBytes, &bfi.IsSuccessful, &exception, &ciphertextHash, &iv,
			&storageObjectName, &bfi.IsUnchangedSinceLast, &bfi.IsBackingFIDigest,
			&bfi.DeduplicationOption); err != nil {
			return nil, fmt.Errorf("bid: scanning backup_file_info: %w", err)
		}
		bfi.PathWithoutRoot = path
		bfi.Path = path
		bfi.DiscoveryPath = discoveryPath
		bfi.Exception = exception.String
		bfi.CiphertextHashDuringBackup = ciphertextHash.String
		bfi.StorageObjectName = storageObjectName.String
		if len(iv) > 0 {
			bfi.EncryptionIV = iv
			bfi.IsBackupEncrypted = true
		}

		digests, err := loadDigests(db, bfiID)
		if err != nil {
			return nil, err
		}
		bfi.Digests = digests

		sbi.BackupFiles = append(sbi.BackupFiles, &bfi)
	}
	return sbi, rows.Err()
}

func loadDigests(db execer, bfiID int64) (map[string]string, error) {
	rows, err := db.Query(`
		SELECT dv.digest_type, dv.digest
		FROM backup_file_digests bfd
		JOIN digest_values dv ON dv.id = bfd.digest_value_id
		WHERE bfd.backup_file_info_id = ?`, bfiID)
	if err != nil {
		return nil, fmt.Errorf("bid: querying backup_file_digests: %w", err)
	}
	defer rows.Close()
	digests := map[string]string{}
	for rows.Next() {
		var typ, digest string
		if err := rows.Scan(&typ, &digest); err != nil {
			return nil, fmt.Errorf("bid: scanning backup_file_digests: %w", err)
		}
		digests[typ] = digest
	}
	return digests, rows.Err()
}

// SaveRelational persists db to the SQLite relational form at path. When
// insertHint is non-nil and path already holds a relational BID whose
// schema is current, only that one SpecificBackupInformation is inserted
// rather than rewriting the whole database (spec.md §4.6, "insert hint").
func SaveRelational(db *Database, path string, insertHint *atbu.SpecificBackupInformation) error {
	if err := numberedBackup(path); err != nil {
		return err
	}

	sqlDB, err := openSQLite(path)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := observeQuery("migrate", dialectSQLite, func() error { return applyMigrations(sqlDB, db.Name) }); err != nil {
		return err
	}

	if insertHint != nil {
		var count int
		if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM specific_backups`).Scan(&count); err == nil && count > 0 {
			return observeQuery("insert_hint_sbi", dialectSQLite, func() error {
				return insertSingleSBI(sqlDB, db.Name, insertHint)
			})
		}
	}

	tx, err := sqlDB.Begin()
	if err != nil {
		return fmt.Errorf("bid: beginning save: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM backup_file_digests`); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM backup_file_info`); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM specific_backups`); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`UPDATE backup_db SET name = ?, version = ?`, db.Name, CurrentSchemaVersion); err != nil {
		tx.Rollback()
		return err
	}
	return observeQuery("save_full_rewrite", dialectSQLite, func() error {
		for _, sbi := range db.SpecificBackups {
			if err := insertSBITx(tx, db.Name, sbi); err != nil {
				tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

func insertSingleSBI(sqlDB *sql.DB, dbName string, sbi *atbu.SpecificBackupInformation) error {
	tx, err := sqlDB.Begin()
	if err != nil {
		return fmt.Errorf("bid: beginning insert-hint save: %w", err)
	}
	if err := insertSBITx(querier{execer: tx, d: dialectSQLite}, dbName, sbi); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// insertSBITx and the helpers below take an execer so the same query logic
// serves both the SQLite path (a bare *sql.Tx, implicitly dialectSQLite)
// and the Postgres path (a querier rebinding "?" to "$N").
func insertSBITx(tx execer, dbName string, sbi *atbu.SpecificBackupInformation) error {
	var backupsID int64
	err := tx.QueryRow(`SELECT b.id FROM backups b JOIN backup_db d ON d.id = b.backup_db_id WHERE b.name = ?`,
		sbi.BackupBaseName).Scan(&backupsID)
	if err == sql.ErrNoRows {
		res, err := tx.Exec(`INSERT INTO backups(backup_db_id, name) SELECT id, ? FROM backup_db LIMIT 1`, sbi.BackupBaseName)
		if err != nil {
			return fmt.Errorf("bid: inserting backups row: %w", err)
		}
		backupsID, err = res.LastInsertId()
		if err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("bid: looking up backups row: %w", err)
	}

	res, err := tx.Exec(`INSERT INTO specific_backups(backups_id, name, backup_start_time_utc, object_name_hash_salt, backup_type)
		VALUES (?, ?, ?, ?, ?)`,
		backupsID, sbi.SpecificBackupName, sbi.BackupStartTimeUTC.UTC().Format(time.RFC3339Nano),
		sbi.ObjectNameHashSalt[:], string(sbi.BackupType))
	if err != nil {
		return fmt.Errorf("bid: inserting specific_backups row: %w", err)
	}
	sbiID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, bfi := range sbi.BackupFiles {
		if err := insertBFITx(tx, sbiID, bfi); err != nil {
			return err
		}
	}
	return nil
}

func insertBFITx(tx execer, sbiID int64, bfi *atbu.BackupFileInformation) error {
	pathID, err := internPath(tx, bfi.PathWithoutRoot)
	if err != nil {
		return err
	}
	discoveryPathID, err := internPath(tx, bfi.DiscoveryPath)
	if err != nil {
		return err
	}

	res, err := tx.Exec(`INSERT INTO backup_file_info(
			specific_backup_id, path_value_id, discovery_path_value_id,
			last_modified, last_accessed, lastmodified_stamp, size_in_bytes,
			is_successful, exception, ciphertext_hash, encryption_iv,
			storage_object_name, is_unchanged_since_last, is_backing_fi_digest,
			deduplication_option)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sbiID, pathID, discoveryPathID,
		bfi.ModifiedTime, bfi.AccessedTime, fmt.Sprintf("%.6f", bfi.ModifiedTime), bfi.SizeInBytes,
		bfi.IsSuccessful, nullableString(bfi.Exception), nullableString(bfi.CiphertextHashDuringBackup),
		nullableBytes(bfi.EncryptionIV), nullableString(bfi.StorageObjectName),
		bfi.IsUnchangedSinceLast, bfi.IsBackingFIDigest, string(bfi.DeduplicationOption))
	if err != nil {
		return fmt.Errorf("bid: inserting backup_file_info row: %w", err)
	}
	bfiID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for algo, digest := range bfi.Digests {
		digestID, err := internDigest(tx, algo, digest)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO backup_file_digests(backup_file_info_id, digest_value_id) VALUES (?, ?)`,
			bfiID, digestID); err != nil {
			return fmt.Errorf("bid: inserting backup_file_digests row: %w", err)
		}
	}
	return nil
}

func internPath(tx execer, path string) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM path_values WHERE path = ?`, path).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("bid: looking up path_values: %w", err)
	}
	res, err := tx.Exec(`INSERT INTO path_values(path) VALUES (?)`, path)
	if err != nil {
		return 0, fmt.Errorf("bid: inserting path_values row: %w", err)
	}
	return res.LastInsertId()
}

func internDigest(tx execer, digestType, digest string) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM digest_values WHERE digest_type = ? AND digest = ?`, digestType, digest).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("bid: looking up digest_values: %w", err)
	}
	res, err := tx.Exec(`INSERT INTO digest_values(digest_type, digest) VALUES (?, ?)`, digestType, digest)
	if err != nil {
		return 0, fmt.Errorf("bid: inserting digest_values row: %w", err)
	}
	return res.LastInsertId()
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

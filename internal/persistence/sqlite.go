package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName        = "sqlite"
	sqliteDirPermissions    = 0o700
	errMessageOpenSQLite    = "open sqlite database"
	errMessageMigrateSQLite = "migrate sqlite schema"
	errMessageSQLiteGet     = "sqlite get"
	errMessageSQLiteSet     = "sqlite set"
	errMessageSQLiteRemove  = "sqlite remove"

	sqliteSchema = `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	sqliteSelectValue = `SELECT value FROM kv WHERE key = ?`

	sqliteUpsertValue = `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	sqliteDeleteValue = `DELETE FROM kv WHERE key = ?`
)

// SQLiteStore keeps values in a single table of a SQLite database file.
type SQLiteStore struct {
	database *sql.DB
}

// OpenSQLiteStore opens or creates the database at databasePath and applies the schema.
func OpenSQLiteStore(databasePath string) (*SQLiteStore, error) {
	if databasePath == "" {
		return nil, ErrMissingPath
	}
	if err := os.MkdirAll(filepath.Dir(databasePath), sqliteDirPermissions); err != nil {
		return nil, fmt.Errorf("%s %s: %w", errMessageCreateDir, filepath.Dir(databasePath), err)
	}
	database, err := sql.Open(sqliteDriverName, databasePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenSQLite, err)
	}
	database.SetMaxOpenConns(1)

	store := &SQLiteStore{database: database}
	if err := store.migrate(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%s: %w", errMessageMigrateSQLite, err)
	}
	return store, nil
}

func (store *SQLiteStore) migrate() error {
	_, err := store.database.Exec(sqliteSchema)
	return err
}

// Get reads the value stored under key.
func (store *SQLiteStore) Get(key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	var value string
	err := store.database.QueryRow(sqliteSelectValue, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", errMessageSQLiteGet, err)
	}
	return value, true, nil
}

// Set inserts or replaces the value stored under key.
func (store *SQLiteStore) Set(key string, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := store.database.Exec(sqliteUpsertValue, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: %w", errMessageSQLiteSet, err)
	}
	return nil
}

// Remove deletes key.
func (store *SQLiteStore) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := store.database.Exec(sqliteDeleteValue, key); err != nil {
		return fmt.Errorf("%s: %w", errMessageSQLiteRemove, err)
	}
	return nil
}

// Close closes the database connection.
func (store *SQLiteStore) Close() error {
	return store.database.Close()
}

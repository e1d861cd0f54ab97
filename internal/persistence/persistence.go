// Package persistence provides the key-value backends the snapshot store writes through.
//
// Every backend stores one string value per key and reports absence separately from
// failure: Get returns found=false with a nil error for a key that was never written or
// has been removed. Remove of a missing key is not an error.
package persistence

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	// BackendMemory keeps values in process memory only.
	BackendMemory = "memory"
	// BackendFile keeps one JSON file per key in a directory.
	BackendFile = "file"
	// BackendBadger keeps values in an embedded BadgerDB.
	BackendBadger = "badger"
	// BackendSQLite keeps values in a SQLite database file.
	BackendSQLite = "sqlite"

	errMessageUnknownBackend = "unknown persistence backend"
	errMessageMissingPath    = "persistence backend requires a path"
	errMessageEmptyKey       = "persistence key cannot be empty"
	backendErrorFormat       = "%w %q"
)

var (
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New(errMessageUnknownBackend)
	// ErrMissingPath is returned when a disk-backed backend has no location.
	ErrMissingPath = errors.New(errMessageMissingPath)
	// ErrEmptyKey is returned for operations on a blank key.
	ErrEmptyKey = errors.New(errMessageEmptyKey)
)

// Backend is a closable key-value store.
type Backend interface {
	Get(key string) (string, bool, error)
	Set(key string, value string) error
	Remove(key string) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	Path    string
	Logger  *zap.Logger
}

// Open constructs the configured backend. An empty backend name selects the file backend;
// the badger backend runs in memory when Path is empty.
func Open(configuration Config) (Backend, error) {
	backendName := strings.ToLower(strings.TrimSpace(configuration.Backend))
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	switch backendName {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		fileStore, err := NewFileStore(configuration.Path)
		if err != nil {
			return nil, err
		}
		return fileStore, nil
	case BackendBadger:
		badgerStore, err := OpenBadgerStore(BadgerConfig{Path: configuration.Path, SyncWrites: true, Logger: logger})
		if err != nil {
			return nil, err
		}
		return badgerStore, nil
	case BackendSQLite:
		sqliteStore, err := OpenSQLiteStore(configuration.Path)
		if err != nil {
			return nil, err
		}
		return sqliteStore, nil
	default:
		return nil, fmt.Errorf(backendErrorFormat, ErrUnknownBackend, backendName)
	}
}

// Backends lists the supported backend names.
func Backends() []string {
	return []string{BackendMemory, BackendFile, BackendBadger, BackendSQLite}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

package persistence

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	badgerDirPermissions    = 0o750
	errMessageOpenBadger    = "open badger database"
	errMessageBadgerGet     = "badger get"
	errMessageBadgerSet     = "badger set"
	errMessageBadgerRemove  = "badger remove"
	badgerNumVersionsToKeep = 1
)

// BadgerConfig configures an embedded BadgerDB backend. An empty Path or InMemory
// opens the database without disk persistence.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

// BadgerStore keeps values in an embedded BadgerDB.
type BadgerStore struct {
	database *badger.DB
}

// badgerLogger adapts zap to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (adapter *badgerLogger) Errorf(format string, args ...interface{}) {
	adapter.logger.Errorf(format, args...)
}

func (adapter *badgerLogger) Warningf(format string, args ...interface{}) {
	adapter.logger.Warnf(format, args...)
}

func (adapter *badgerLogger) Infof(format string, args ...interface{}) {
	adapter.logger.Debugf(format, args...)
}

func (adapter *badgerLogger) Debugf(format string, args ...interface{}) {
	adapter.logger.Debugf(format, args...)
}

// OpenBadgerStore opens a BadgerDB at configuration.Path, creating the directory if needed.
func OpenBadgerStore(configuration BadgerConfig) (*BadgerStore, error) {
	var options badger.Options
	if configuration.InMemory || configuration.Path == "" {
		options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(configuration.Path, badgerDirPermissions); err != nil {
			return nil, fmt.Errorf("%s %s: %w", errMessageCreateDir, configuration.Path, err)
		}
		options = badger.DefaultOptions(configuration.Path)
	}
	options = options.WithSyncWrites(configuration.SyncWrites)
	options = options.WithNumVersionsToKeep(badgerNumVersionsToKeep)
	if configuration.Logger != nil {
		options = options.WithLogger(&badgerLogger{logger: configuration.Logger.Named("badger").Sugar()})
	} else {
		options = options.WithLogger(nil)
	}

	database, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenBadger, err)
	}
	return &BadgerStore{database: database}, nil
}

// Get reads the value stored under key.
func (store *BadgerStore) Get(key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	var value []byte
	err := store.database.View(func(transaction *badger.Txn) error {
		item, err := transaction.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", errMessageBadgerGet, err)
	}
	return string(value), true, nil
}

// Set stores value under key.
func (store *BadgerStore) Set(key string, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := store.database.Update(func(transaction *badger.Txn) error {
		return transaction.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageBadgerSet, err)
	}
	return nil
}

// Remove deletes key.
func (store *BadgerStore) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := store.database.Update(func(transaction *badger.Txn) error {
		return transaction.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageBadgerRemove, err)
	}
	return nil
}

// Close flushes and closes the database.
func (store *BadgerStore) Close() error {
	return store.database.Close()
}

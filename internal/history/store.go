package history

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/f-sync/followtrack/internal/backup"
	"github.com/f-sync/followtrack/internal/snapshots"
)

const (
	// DefaultHistoryKey names the persisted snapshot history blob.
	DefaultHistoryKey = "followtrack.snapshots"

	errMessageMissingPersistence = "snapshot store requires a persistence backend"
	errMessagePersistenceWarning = "snapshot history was not saved"
	errMessageEncodeHistory      = "encode history"
	errMessageWriteHistory       = "write history"
	errMessageRemoveHistory      = "remove history"
	logMessageHistoryLoaded      = "snapshot history loaded"
	logMessageHistoryAbsent      = "no persisted snapshot history"
	logMessageHistoryReadFailure = "snapshot history could not be read; starting empty"
	logMessageHistoryCorrupted   = "persisted snapshot history is corrupted; starting empty"
	logMessagePersistFailure     = "snapshot history write failed; keeping in-memory state"
	logMessageSnapshotAppended   = "snapshot appended"
	logMessageHistoryReplaced    = "snapshot history replaced"
	logMessageHistoryCleared     = "snapshot history cleared"
	logMessageSnapshotRemoved    = "snapshot removed"
	logMessageSnapshotNotFound   = "no snapshot matches the requested time"
	logMessageSnapshotDuplicate  = "snapshot matches the latest; not appended"
	logFieldKey                  = "key"
	logFieldSnapshotCount        = "snapshots"
	logFieldTakenAt              = "taken_at"
)

var (
	// ErrMissingPersistence is returned by NewStore when no backend is configured.
	ErrMissingPersistence = errors.New(errMessageMissingPersistence)
	// ErrPersistenceWarning marks a durable write that failed after the in-memory history
	// was already updated.
	ErrPersistenceWarning = errors.New(errMessagePersistenceWarning)
)

// KeyValueStore is the persistence capability the store writes its history through.
type KeyValueStore interface {
	Get(key string) (string, bool, error)
	Set(key string, value string) error
	Remove(key string) error
}

// Config configures a Store.
type Config struct {
	Persistence KeyValueStore
	Key         string
	Logger      *zap.Logger
}

// Mutation is the outcome of a history change. PersistWarning is non-nil when the durable
// write failed; History reflects the change either way.
type Mutation struct {
	History        snapshots.History
	Changed        bool
	PersistWarning error
}

// Store owns the snapshot history and mirrors it to the persistence backend.
type Store struct {
	mutex       sync.Mutex
	persistence KeyValueStore
	key         string
	logger      *zap.Logger
	history     snapshots.History
}

// NewStore constructs an empty store. Call Load to read the persisted history.
func NewStore(configuration Config) (*Store, error) {
	if configuration.Persistence == nil {
		return nil, ErrMissingPersistence
	}
	key := strings.TrimSpace(configuration.Key)
	if key == "" {
		key = DefaultHistoryKey
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		persistence: configuration.Persistence,
		key:         key,
		logger:      logger,
		history:     snapshots.History{},
	}, nil
}

// Load replaces the in-memory history with the persisted one. A missing, unreadable or
// corrupted blob yields an empty history; the failure is logged and never returned.
func (store *Store) Load() snapshots.History {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.history = store.readPersistedHistory()
	return store.history.Clone()
}

func (store *Store) readPersistedHistory() snapshots.History {
	blob, found, err := store.persistence.Get(store.key)
	if err != nil {
		store.logger.Warn(logMessageHistoryReadFailure, zap.String(logFieldKey, store.key), zap.Error(err))
		return snapshots.History{}
	}
	if !found {
		store.logger.Debug(logMessageHistoryAbsent, zap.String(logFieldKey, store.key))
		return snapshots.History{}
	}
	decodedHistory, err := backup.Decode([]byte(blob))
	if err != nil {
		store.logger.Warn(logMessageHistoryCorrupted, zap.String(logFieldKey, store.key), zap.Error(err))
		return snapshots.History{}
	}
	sortedHistory := decodedHistory.Sorted()
	store.logger.Info(logMessageHistoryLoaded, zap.Int(logFieldSnapshotCount, len(sortedHistory)))
	return sortedHistory
}

// Snapshots returns the current history, oldest first.
func (store *Store) Snapshots() snapshots.History {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.history.Clone()
}

// Latest returns the most recent snapshot.
func (store *Store) Latest() (snapshots.Snapshot, bool) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.history.Latest()
}

// Append inserts a snapshot in TakenAt order, after any snapshot sharing its timestamp,
// and persists the full history.
func (store *Store) Append(snapshot snapshots.Snapshot) Mutation {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.appendLocked(snapshot)
	return store.commit()
}

func (store *Store) appendLocked(snapshot snapshots.Snapshot) {
	updatedHistory := append(store.history.Clone(), snapshot)
	store.history = updatedHistory.Sorted()
	store.logger.Info(logMessageSnapshotAppended,
		zap.Time(logFieldTakenAt, snapshot.TakenAt),
		zap.Int(logFieldSnapshotCount, len(store.history)),
	)
}

// AppendUnlessEqual appends snapshot unless it holds the same relationships as the latest
// snapshot. The comparison and the append happen under one lock. When nothing is appended
// the matching latest snapshot is returned with appended=false.
func (store *Store) AppendUnlessEqual(snapshot snapshots.Snapshot) (Mutation, snapshots.Snapshot, bool) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if latest, found := store.history.Latest(); found && snapshots.AreEqual(latest, snapshot) {
		store.logger.Debug(logMessageSnapshotDuplicate, zap.Time(logFieldTakenAt, latest.TakenAt))
		return Mutation{History: store.history.Clone()}, latest, false
	}
	store.appendLocked(snapshot)
	return store.commit(), snapshot, true
}

// ReplaceAll swaps the whole history for the provided snapshots, sorted by TakenAt.
// No duplicate check is applied.
func (store *Store) ReplaceAll(replacement snapshots.History) Mutation {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.history = replacement.Sorted()
	store.logger.Info(logMessageHistoryReplaced, zap.Int(logFieldSnapshotCount, len(store.history)))
	return store.commit()
}

// Clear empties the history and removes the persisted blob.
func (store *Store) Clear() Mutation {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.history = snapshots.History{}
	store.logger.Info(logMessageHistoryCleared)
	mutation := Mutation{History: snapshots.History{}, Changed: true}
	if err := store.persistence.Remove(store.key); err != nil {
		mutation.PersistWarning = store.persistWarning(errMessageRemoveHistory, err)
	}
	return mutation
}

// RemoveOne deletes the first snapshot captured at exactly takenAt. A missing snapshot
// leaves the history untouched and is not an error.
func (store *Store) RemoveOne(takenAt time.Time) Mutation {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	for index, snapshot := range store.history {
		if !snapshot.TakenAt.Equal(takenAt) {
			continue
		}
		updatedHistory := make(snapshots.History, 0, len(store.history)-1)
		updatedHistory = append(updatedHistory, store.history[:index]...)
		updatedHistory = append(updatedHistory, store.history[index+1:]...)
		store.history = updatedHistory
		store.logger.Info(logMessageSnapshotRemoved, zap.Time(logFieldTakenAt, takenAt))
		return store.commit()
	}
	store.logger.Debug(logMessageSnapshotNotFound, zap.Time(logFieldTakenAt, takenAt))
	return Mutation{History: store.history.Clone()}
}

// commit writes the in-memory history. Callers must hold the mutex.
func (store *Store) commit() Mutation {
	mutation := Mutation{History: store.history.Clone(), Changed: true}
	payload, err := backup.Encode(store.history)
	if err != nil {
		mutation.PersistWarning = store.persistWarning(errMessageEncodeHistory, err)
		return mutation
	}
	if err := store.persistence.Set(store.key, string(payload)); err != nil {
		mutation.PersistWarning = store.persistWarning(errMessageWriteHistory, err)
	}
	return mutation
}

func (store *Store) persistWarning(operation string, cause error) error {
	store.logger.Warn(logMessagePersistFailure, zap.String(logFieldKey, store.key), zap.Error(cause))
	return fmt.Errorf("%w: %s: %w", ErrPersistenceWarning, operation, cause)
}

// Package importer turns export files and backups into snapshot history mutations.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/f-sync/followtrack/internal/backup"
	"github.com/f-sync/followtrack/internal/history"
	"github.com/f-sync/followtrack/internal/metrics"
	"github.com/f-sync/followtrack/internal/relationships"
	"github.com/f-sync/followtrack/internal/snapshots"
)

const (
	errMessageMissingStore     = "importer requires a snapshot store"
	readRelationshipFileFormat = "read %s file: %w"
	importFlightKeyFormat      = "%s\x00%s"
	logMessageImportStarted    = "import started"
	logMessageImportRejected   = "import rejected"
	logMessageSnapshotCreated  = "snapshot created"
	logMessageSnapshotSkipped  = "import matches the latest snapshot; no snapshot created"
	logMessageRestoreRejected  = "restore rejected"
	logMessageHistoryRestored  = "history restored from backup"
	logFieldRunID              = "run_id"
	logFieldFollowersFile      = "followers_file"
	logFieldFollowingFile      = "following_file"
	logFieldTakenAt            = "taken_at"
	logFieldFollowerCount      = "followers"
	logFieldFollowingCount     = "following"
	logFieldSnapshotCount      = "snapshots"
	logFieldBackupPath         = "backup"
)

// ErrMissingStore is returned by New when no store is configured.
var ErrMissingStore = errors.New(errMessageMissingStore)

// Outcome distinguishes an import that added a snapshot from one that matched the latest.
type Outcome int

const (
	// OutcomeCreated means a new snapshot was appended to history.
	OutcomeCreated Outcome = iota + 1
	// OutcomeUnchanged means the import matched the latest snapshot and history is untouched.
	OutcomeUnchanged
)

// String returns the metric label of the outcome.
func (outcome Outcome) String() string {
	switch outcome {
	case OutcomeCreated:
		return "created"
	case OutcomeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// SnapshotStore is the slice of the history store an importer mutates.
type SnapshotStore interface {
	Snapshots() snapshots.History
	AppendUnlessEqual(snapshot snapshots.Snapshot) (history.Mutation, snapshots.Snapshot, bool)
	ReplaceAll(replacement snapshots.History) history.Mutation
}

// Recorder receives import activity. The metrics collector satisfies it.
type Recorder interface {
	RecordImport(outcome string)
	RecordRestore(result string)
	RecordPersistWarning()
	SetHistorySize(snapshotCount int)
}

// Config configures an Importer.
type Config struct {
	Store    SnapshotStore
	Source   FileSource
	Recorder Recorder
	Logger   *zap.Logger
	Now      func() time.Time
}

// Result reports a completed import. Snapshot is the appended snapshot for OutcomeCreated
// and the matching latest snapshot for OutcomeUnchanged.
type Result struct {
	Outcome        Outcome
	Snapshot       snapshots.Snapshot
	History        snapshots.History
	PersistWarning error
}

// RestoreResult reports a completed restore.
type RestoreResult struct {
	History        snapshots.History
	PersistWarning error
}

// Importer runs imports and restores against a snapshot store.
type Importer struct {
	store       SnapshotStore
	source      FileSource
	recorder    Recorder
	logger      *zap.Logger
	now         func() time.Time
	flightGroup singleflight.Group
}

// New constructs an Importer, filling unset collaborators with defaults.
func New(configuration Config) (*Importer, error) {
	if configuration.Store == nil {
		return nil, ErrMissingStore
	}
	if configuration.Source == nil {
		configuration.Source = LocalFileSource{}
	}
	if configuration.Recorder == nil {
		configuration.Recorder = noopRecorder{}
	}
	if configuration.Logger == nil {
		configuration.Logger = zap.NewNop()
	}
	if configuration.Now == nil {
		configuration.Now = time.Now
	}
	return &Importer{
		store:    configuration.Store,
		source:   configuration.Source,
		recorder: configuration.Recorder,
		logger:   configuration.Logger,
		now:      configuration.Now,
	}, nil
}

// Import reads both export files concurrently and imports them. A read or parse failure
// of either file aborts the import before history is touched. Concurrent calls for the same
// pair of paths share one run. The shared run is not cancelled with any single caller; a
// caller whose context ends stops waiting and receives the context error.
func (importer *Importer) Import(ctx context.Context, followersPath string, followingPath string) (Result, error) {
	flightKey := fmt.Sprintf(importFlightKeyFormat, followersPath, followingPath)
	sharedContext := context.WithoutCancel(ctx)
	resultChannel := importer.flightGroup.DoChan(flightKey, func() (interface{}, error) {
		return importer.importPaths(sharedContext, followersPath, followingPath)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case flightResult := <-resultChannel:
		if flightResult.Err != nil {
			return Result{}, flightResult.Err
		}
		return flightResult.Val.(Result), nil
	}
}

func (importer *Importer) importPaths(ctx context.Context, followersPath string, followingPath string) (Result, error) {
	logger := importer.logger.With(zap.String(logFieldRunID, uuid.NewString()))
	logger.Info(logMessageImportStarted,
		zap.String(logFieldFollowersFile, followersPath),
		zap.String(logFieldFollowingFile, followingPath),
	)

	var followersFile, followingFile ExportFile
	group, groupContext := errgroup.WithContext(ctx)
	group.Go(func() error {
		exportFile, err := importer.source.ReadExportFile(groupContext, followersPath)
		if err != nil {
			return fmt.Errorf(readRelationshipFileFormat, relationships.Followers, err)
		}
		followersFile = exportFile
		return nil
	})
	group.Go(func() error {
		exportFile, err := importer.source.ReadExportFile(groupContext, followingPath)
		if err != nil {
			return fmt.Errorf(readRelationshipFileFormat, relationships.Following, err)
		}
		followingFile = exportFile
		return nil
	})
	if err := group.Wait(); err != nil {
		logger.Warn(logMessageImportRejected, zap.Error(err))
		return Result{}, err
	}
	return importer.importFiles(logger, followersFile, followingFile)
}

// ImportFiles imports already-read export files. The snapshot is stamped with the followers
// file's modification time, or the current time when the source reported none.
func (importer *Importer) ImportFiles(followersFile ExportFile, followingFile ExportFile) (Result, error) {
	logger := importer.logger.With(zap.String(logFieldRunID, uuid.NewString()))
	return importer.importFiles(logger, followersFile, followingFile)
}

func (importer *Importer) importFiles(logger *zap.Logger, followersFile ExportFile, followingFile ExportFile) (Result, error) {
	followers, err := relationships.ParseRelationshipFile(followersFile.Content, relationships.Followers)
	if err != nil {
		logger.Warn(logMessageImportRejected, zap.String(logFieldFollowersFile, followersFile.Name), zap.Error(err))
		return Result{}, err
	}
	following, err := relationships.ParseRelationshipFile(followingFile.Content, relationships.Following)
	if err != nil {
		logger.Warn(logMessageImportRejected, zap.String(logFieldFollowingFile, followingFile.Name), zap.Error(err))
		return Result{}, err
	}

	takenAt := followersFile.ModifiedAt
	if takenAt.IsZero() {
		takenAt = importer.now()
	}
	candidate := snapshots.NewSnapshot(takenAt, followers, following)

	mutation, stored, appended := importer.store.AppendUnlessEqual(candidate)
	if !appended {
		logger.Info(logMessageSnapshotSkipped, zap.Time(logFieldTakenAt, stored.TakenAt))
		importer.recorder.RecordImport(OutcomeUnchanged.String())
		return Result{Outcome: OutcomeUnchanged, Snapshot: stored, History: mutation.History}, nil
	}

	logger.Info(logMessageSnapshotCreated,
		zap.Time(logFieldTakenAt, candidate.TakenAt),
		zap.Int(logFieldFollowerCount, len(followers)),
		zap.Int(logFieldFollowingCount, len(following)),
	)
	importer.recordMutation(mutation)
	importer.recorder.RecordImport(OutcomeCreated.String())
	return Result{
		Outcome:        OutcomeCreated,
		Snapshot:       candidate,
		History:        mutation.History,
		PersistWarning: mutation.PersistWarning,
	}, nil
}

// Restore reads a backup file and replaces the whole history with its content.
func (importer *Importer) Restore(ctx context.Context, path string) (RestoreResult, error) {
	exportFile, err := importer.source.ReadExportFile(ctx, path)
	if err != nil {
		importer.logger.Warn(logMessageRestoreRejected, zap.String(logFieldBackupPath, path), zap.Error(err))
		importer.recorder.RecordRestore(metrics.ResultFailure)
		return RestoreResult{}, err
	}
	return importer.RestoreBlob([]byte(exportFile.Content))
}

// RestoreBlob decodes a backup and replaces the history with it. History is untouched
// unless every record decodes.
func (importer *Importer) RestoreBlob(blob []byte) (RestoreResult, error) {
	restoredHistory, err := backup.Decode(blob)
	if err != nil {
		importer.logger.Warn(logMessageRestoreRejected, zap.Error(err))
		importer.recorder.RecordRestore(metrics.ResultFailure)
		return RestoreResult{}, err
	}
	mutation := importer.store.ReplaceAll(restoredHistory)
	importer.logger.Info(logMessageHistoryRestored, zap.Int(logFieldSnapshotCount, len(mutation.History)))
	importer.recordMutation(mutation)
	importer.recorder.RecordRestore(metrics.ResultSuccess)
	return RestoreResult{History: mutation.History, PersistWarning: mutation.PersistWarning}, nil
}

// Store returns the snapshot store the importer writes to.
func (importer *Importer) Store() SnapshotStore {
	return importer.store
}

func (importer *Importer) recordMutation(mutation history.Mutation) {
	importer.recorder.SetHistorySize(len(mutation.History))
	if mutation.PersistWarning != nil {
		importer.recorder.RecordPersistWarning()
	}
}

type noopRecorder struct{}

func (noopRecorder) RecordImport(string) {}

func (noopRecorder) RecordRestore(string) {}

func (noopRecorder) RecordPersistWarning() {}

func (noopRecorder) SetHistorySize(int) {}

package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/f-sync/followtrack/internal/history"
	"github.com/f-sync/followtrack/internal/importer"
	"github.com/f-sync/followtrack/internal/snapshots"
)

const (
	reportRoutePath           = "/"
	healthRoutePath           = "/healthz"
	metricsRoutePath          = "/metrics"
	snapshotsRoutePath        = "/api/snapshots"
	snapshotRoutePath         = "/api/snapshots/:takenAt"
	changesRoutePath          = "/api/changes"
	analysisRoutePath         = "/api/analysis"
	overviewRoutePath         = "/api/overview"
	backupRoutePath           = "/api/backup"
	restoreRoutePath          = "/api/restore"
	takenAtPathParameter      = "takenAt"
	ginModeRelease            = "release"
	errMessageMissingStore    = "router requires a snapshot store"
	errMessageMissingImporter = "router requires an importer"
)

// HistoryStore is the read and delete surface of the snapshot store.
type HistoryStore interface {
	Snapshots() snapshots.History
	RemoveOne(takenAt time.Time) history.Mutation
	Clear() history.Mutation
}

// SnapshotImporter creates snapshots from uploaded exports and restores backups.
type SnapshotImporter interface {
	ImportFiles(followersFile importer.ExportFile, followingFile importer.ExportFile) (importer.Result, error)
	RestoreBlob(blob []byte) (importer.RestoreResult, error)
}

// MutationRecorder receives history size changes made through the router.
type MutationRecorder interface {
	RecordPersistWarning()
	SetHistorySize(snapshotCount int)
}

// RouterConfig configures the HTTP routing for snapshot history requests.
type RouterConfig struct {
	Store    HistoryStore
	Importer SnapshotImporter
	Recorder MutationRecorder
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewRouter constructs a Gin engine serving the snapshot history API.
func NewRouter(configuration RouterConfig) (*gin.Engine, error) {
	if configuration.Store == nil {
		return nil, errMissingStore
	}
	if configuration.Importer == nil {
		return nil, errMissingImporter
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := configuration.Now
	if now == nil {
		now = time.Now
	}
	recorder := configuration.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	gatherer := configuration.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(ginModeRelease)
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := historyHandler{
		store:    configuration.Store,
		importer: configuration.Importer,
		recorder: recorder,
		logger:   logger,
		now:      now,
	}

	engine.GET(reportRoutePath, handler.reportPage)
	engine.GET(healthRoutePath, handler.healthStatus)
	engine.GET(metricsRoutePath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	engine.GET(snapshotsRoutePath, handler.listSnapshots)
	engine.POST(snapshotsRoutePath, handler.importSnapshot)
	engine.DELETE(snapshotsRoutePath, handler.clearSnapshots)
	engine.DELETE(snapshotRoutePath, handler.deleteSnapshot)
	engine.GET(changesRoutePath, handler.changes)
	engine.GET(analysisRoutePath, handler.analysis)
	engine.GET(overviewRoutePath, handler.overview)
	engine.GET(backupRoutePath, handler.downloadBackup)
	engine.POST(restoreRoutePath, handler.restoreBackup)

	return engine, nil
}

type noopRecorder struct{}

func (noopRecorder) RecordPersistWarning() {}

func (noopRecorder) SetHistorySize(int) {}

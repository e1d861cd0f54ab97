// Package app assembles the persistence backend, snapshot store, metrics and importer
// from loaded settings.
package app

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/f-sync/followtrack/internal/config"
	"github.com/f-sync/followtrack/internal/history"
	"github.com/f-sync/followtrack/internal/importer"
	"github.com/f-sync/followtrack/internal/metrics"
	"github.com/f-sync/followtrack/internal/persistence"
)

const (
	errMessageOpenPersistence = "open persistence backend"
	errMessageCreateStore     = "create snapshot store"
	errMessageCreateImporter  = "create importer"
	logMessageRuntimeReady    = "snapshot history ready"
	logFieldBackend           = "backend"
	logFieldPath              = "path"
	logFieldSnapshotCount     = "snapshots"
)

// Runtime holds the collaborators shared by the commands.
type Runtime struct {
	Backend  persistence.Backend
	Store    *history.Store
	Importer *importer.Importer
	Metrics  *metrics.Collector
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// Open builds a Runtime and loads the persisted history.
func Open(settings config.Settings, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	persistenceConfig := settings.Storage.PersistenceConfig()
	persistenceConfig.Logger = logger
	backend, err := persistence.Open(persistenceConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageOpenPersistence, err)
	}

	store, err := history.NewStore(history.Config{Persistence: backend, Key: settings.Storage.Key, Logger: logger})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("%s: %w", errMessageCreateStore, err), backend.Close())
	}
	loadedHistory := store.Load()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	collector.SetHistorySize(len(loadedHistory))

	snapshotImporter, err := importer.New(importer.Config{Store: store, Recorder: collector, Logger: logger})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("%s: %w", errMessageCreateImporter, err), backend.Close())
	}

	logger.Info(logMessageRuntimeReady,
		zap.String(logFieldBackend, settings.Storage.Backend),
		zap.String(logFieldPath, settings.Storage.Path),
		zap.Int(logFieldSnapshotCount, len(loadedHistory)),
	)
	return &Runtime{
		Backend:  backend,
		Store:    store,
		Importer: snapshotImporter,
		Metrics:  collector,
		Registry: registry,
		Logger:   logger,
	}, nil
}

// Close releases the persistence backend.
func (runtime *Runtime) Close() error {
	return runtime.Backend.Close()
}

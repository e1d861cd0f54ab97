// Package watcher re-runs an import whenever the watched export files settle after a change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce           = 2 * time.Second
	errMessageMissingTrigger  = "watcher requires a trigger"
	errMessageMissingFiles    = "watcher requires at least one file"
	errMessageCreateWatcher   = "create file watcher"
	errMessageWatchDirectory  = "watch directory"
	logMessageWatching        = "watching export files"
	logMessageChangeDetected  = "export file changed"
	logMessageTriggerFailed   = "import after change failed"
	logMessageTriggerFinished = "import after change finished"
	logMessageWatchError      = "file watcher error"
	logFieldPath              = "path"
	logFieldOperation         = "op"
	logFieldDirectories       = "directories"
)

var (
	// ErrMissingTrigger is returned by New without a trigger function.
	ErrMissingTrigger = errors.New(errMessageMissingTrigger)
	// ErrMissingFiles is returned by New without files to watch.
	ErrMissingFiles = errors.New(errMessageMissingFiles)
)

// Trigger runs once per settled burst of changes.
type Trigger func(ctx context.Context) error

// Config configures a Watcher.
type Config struct {
	Files    []string
	Debounce time.Duration
	Trigger  Trigger
	Logger   *zap.Logger
}

// Watcher observes the directories of the configured files and calls Trigger after
// changes to any of the files have been quiet for the debounce window.
type Watcher struct {
	files       map[string]struct{}
	directories []string
	debounce    time.Duration
	trigger     Trigger
	logger      *zap.Logger
}

// New validates configuration and resolves the watched paths.
func New(configuration Config) (*Watcher, error) {
	if configuration.Trigger == nil {
		return nil, ErrMissingTrigger
	}
	if len(configuration.Files) == 0 {
		return nil, ErrMissingFiles
	}
	debounce := configuration.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	files := make(map[string]struct{}, len(configuration.Files))
	directorySet := map[string]struct{}{}
	var directories []string
	for _, file := range configuration.Files {
		absolutePath, err := filepath.Abs(file)
		if err != nil {
			return nil, err
		}
		files[absolutePath] = struct{}{}
		directory := filepath.Dir(absolutePath)
		if _, seen := directorySet[directory]; !seen {
			directorySet[directory] = struct{}{}
			directories = append(directories, directory)
		}
	}
	return &Watcher{
		files:       files,
		directories: directories,
		debounce:    debounce,
		trigger:     configuration.Trigger,
		logger:      logger,
	}, nil
}

// Run watches until ctx is canceled. Trigger failures are logged and watching continues.
func (watcher *Watcher) Run(ctx context.Context) error {
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageCreateWatcher, err)
	}
	defer fileWatcher.Close()

	for _, directory := range watcher.directories {
		if err := fileWatcher.Add(directory); err != nil {
			return fmt.Errorf("%s %s: %w", errMessageWatchDirectory, directory, err)
		}
	}
	watcher.logger.Info(logMessageWatching, zap.Strings(logFieldDirectories, watcher.directories))

	var timer *time.Timer
	var timerChannel <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fileWatcher.Events:
			if !ok {
				return nil
			}
			if !watcher.isRelevant(event) {
				continue
			}
			watcher.logger.Debug(logMessageChangeDetected, zap.String(logFieldPath, event.Name), zap.String(logFieldOperation, event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(watcher.debounce)
				timerChannel = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(watcher.debounce)
			}
		case <-timerChannel:
			timer = nil
			timerChannel = nil
			if err := watcher.trigger(ctx); err != nil {
				watcher.logger.Warn(logMessageTriggerFailed, zap.Error(err))
				continue
			}
			watcher.logger.Debug(logMessageTriggerFinished)
		case err, ok := <-fileWatcher.Errors:
			if !ok {
				return nil
			}
			watcher.logger.Warn(logMessageWatchError, zap.Error(err))
		}
	}
}

func (watcher *Watcher) isRelevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	absolutePath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	_, watched := watcher.files[absolutePath]
	return watched
}

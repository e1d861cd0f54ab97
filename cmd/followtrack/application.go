package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/f-sync/followtrack/internal/app"
	"github.com/f-sync/followtrack/internal/config"
	"github.com/f-sync/followtrack/internal/observability"
)

const (
	loggerName                = "followtrack"
	outputFilePermissions     = 0o600
	errMessageLoadSettings    = "load settings"
	errMessageOpenRuntime     = "open snapshot history"
	errMessageWriteOutputFile = "write output file"
	errMessageNothingToBackUp = "no snapshots to back up"
)

var errNothingToBackUp = errors.New(errMessageNothingToBackUp)

// Dependencies are the collaborators an Application runs with.
type Dependencies struct {
	OpenRuntime func(config.Settings, *zap.Logger) (*app.Runtime, error)
	NewLogger   func(observability.LoggerConfig) *zap.Logger
	WriteFile   func(path string, content []byte) error
	Now         func() time.Time
	Stdout      io.Writer
	Stderr      io.Writer
}

// Application owns the command tree and the runtime it opens on demand.
type Application struct {
	dependencies  Dependencies
	configuration *viper.Viper
	settings      config.Settings
	logger        *zap.Logger
	runtime       *app.Runtime
}

// NewApplication constructs an Application with production dependencies.
func NewApplication() *Application {
	return NewApplicationWithDependencies(newDefaultDependencies())
}

// NewApplicationWithDependencies fills unset dependencies with defaults.
func NewApplicationWithDependencies(dependencies Dependencies) *Application {
	defaultDependencies := newDefaultDependencies()

	if dependencies.OpenRuntime == nil {
		dependencies.OpenRuntime = defaultDependencies.OpenRuntime
	}
	if dependencies.NewLogger == nil {
		dependencies.NewLogger = defaultDependencies.NewLogger
	}
	if dependencies.WriteFile == nil {
		dependencies.WriteFile = defaultDependencies.WriteFile
	}
	if dependencies.Now == nil {
		dependencies.Now = defaultDependencies.Now
	}
	if dependencies.Stdout == nil {
		dependencies.Stdout = defaultDependencies.Stdout
	}
	if dependencies.Stderr == nil {
		dependencies.Stderr = defaultDependencies.Stderr
	}

	return &Application{dependencies: dependencies, configuration: config.New(), logger: zap.NewNop()}
}

// prepare loads settings, builds the logger and opens the runtime.
func (application *Application) prepare(configFile string) error {
	settings, err := config.Load(application.configuration, configFile)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoadSettings, err)
	}
	application.settings = settings

	loggerConfig := settings.Log.LoggerConfig()
	loggerConfig.Name = loggerName
	loggerConfig.Output = application.dependencies.Stderr
	application.logger = application.dependencies.NewLogger(loggerConfig)

	runtime, err := application.dependencies.OpenRuntime(settings, application.logger)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageOpenRuntime, err)
	}
	application.runtime = runtime
	return nil
}

// release closes the runtime and flushes the logger.
func (application *Application) release() error {
	var closeErr error
	if application.runtime != nil {
		closeErr = application.runtime.Close()
		application.runtime = nil
	}
	_ = application.logger.Sync()
	return closeErr
}

func (application *Application) printf(format string, args ...any) {
	fmt.Fprintf(application.dependencies.Stdout, format, args...)
}

func (application *Application) warn(warning error) {
	if warning == nil {
		return
	}
	fmt.Fprintf(application.dependencies.Stderr, warningFormat, warning)
}

func newDefaultDependencies() Dependencies {
	return Dependencies{
		OpenRuntime: app.Open,
		NewLogger:   observability.NewLogger,
		WriteFile:   defaultWriteFile,
		Now:         time.Now,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
	}
}

func defaultWriteFile(path string, content []byte) error {
	if err := os.WriteFile(path, content, outputFilePermissions); err != nil {
		return fmt.Errorf("%s %s: %w", errMessageWriteOutputFile, path, err)
	}
	return nil
}


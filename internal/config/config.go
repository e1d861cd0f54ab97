// Package config loads followtrack settings from flags, environment and an optional file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/f-sync/followtrack/internal/history"
	"github.com/f-sync/followtrack/internal/observability"
	"github.com/f-sync/followtrack/internal/persistence"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. FOLLOWTRACK_STORAGE_BACKEND.
	EnvPrefix = "FOLLOWTRACK"

	// DefaultSQLiteFileName names the database created when the sqlite backend points at a directory.
	DefaultSQLiteFileName = "followtrack.db"

	KeyStorageBackend = "storage.backend"
	KeyStoragePath    = "storage.path"
	KeyStorageKey     = "storage.key"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	KeyLogFile        = "log.file"
	KeyServerHost     = "server.host"
	KeyServerPort     = "server.port"
	KeyWatchDebounce  = "watch.debounce"

	defaultStorageBackend   = persistence.BackendFile
	defaultLogLevel         = "info"
	defaultLogFormat        = observability.FormatConsole
	defaultServerHost       = "127.0.0.1"
	defaultServerPort       = 8080
	defaultWatchDebounce    = 2 * time.Second
	defaultStorageDirectory = "followtrack"
	fallbackStorageDir      = ".followtrack"

	errMessageReadConfig      = "read config file"
	errMessageDecodeConfig    = "decode configuration"
	errMessageInvalidConfig   = "invalid configuration"
	errMessageBindFlag        = "bind flag"
	errMessageUnknownFlag     = "unknown flag"
	invalidFieldMessageFormat = "%w: %s failed %q"
)

// ErrInvalidConfiguration wraps every validation failure reported by Load.
var ErrInvalidConfiguration = errors.New(errMessageInvalidConfig)

var settingsValidator = validator.New()

// StorageSettings selects the persistence backend.
type StorageSettings struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory file badger sqlite"`
	Path    string `mapstructure:"path"`
	Key     string `mapstructure:"key" validate:"required"`
}

// LogSettings configures the logger.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
	File   string `mapstructure:"file"`
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// WatchSettings configures the export directory watcher.
type WatchSettings struct {
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

// Settings is the complete runtime configuration.
type Settings struct {
	Storage StorageSettings `mapstructure:"storage"`
	Log     LogSettings     `mapstructure:"log"`
	Server  ServerSettings  `mapstructure:"server"`
	Watch   WatchSettings   `mapstructure:"watch"`
}

// New returns a viper instance with defaults applied and environment lookup enabled.
func New() *viper.Viper {
	configuration := viper.New()
	configuration.SetDefault(KeyStorageBackend, defaultStorageBackend)
	configuration.SetDefault(KeyStoragePath, defaultStoragePath())
	configuration.SetDefault(KeyStorageKey, history.DefaultHistoryKey)
	configuration.SetDefault(KeyLogLevel, defaultLogLevel)
	configuration.SetDefault(KeyLogFormat, defaultLogFormat)
	configuration.SetDefault(KeyLogFile, "")
	configuration.SetDefault(KeyServerHost, defaultServerHost)
	configuration.SetDefault(KeyServerPort, defaultServerPort)
	configuration.SetDefault(KeyWatchDebounce, defaultWatchDebounce)

	configuration.SetEnvPrefix(EnvPrefix)
	configuration.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	configuration.AutomaticEnv()
	return configuration
}

// BindFlag binds the named persistent or local flag of command to key.
func BindFlag(configuration *viper.Viper, command *cobra.Command, key string, flagName string) error {
	flag := command.Flags().Lookup(flagName)
	if flag == nil {
		flag = command.PersistentFlags().Lookup(flagName)
	}
	if flag == nil {
		return fmt.Errorf("%s: %s %q", errMessageBindFlag, errMessageUnknownFlag, flagName)
	}
	if err := configuration.BindPFlag(key, flag); err != nil {
		return fmt.Errorf("%s %q: %w", errMessageBindFlag, flagName, err)
	}
	return nil
}

// Load reads configFile when set and decodes the merged settings.
func Load(configuration *viper.Viper, configFile string) (Settings, error) {
	if configFile != "" {
		configuration.SetConfigFile(configFile)
		if err := configuration.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("%s: %w", errMessageReadConfig, err)
		}
	}

	var settings Settings
	if err := configuration.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", errMessageDecodeConfig, err)
	}
	settings.Storage.Backend = strings.ToLower(strings.TrimSpace(settings.Storage.Backend))
	settings.Log.Format = strings.ToLower(strings.TrimSpace(settings.Log.Format))
	settings.Storage.Path = resolveStoragePath(settings.Storage.Backend, settings.Storage.Path)

	if err := settingsValidator.Struct(settings); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			firstFailure := validationErrors[0]
			return Settings{}, fmt.Errorf(invalidFieldMessageFormat, ErrInvalidConfiguration, firstFailure.Namespace(), firstFailure.Tag())
		}
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return settings, nil
}

// Address joins the server host and port.
func (settings ServerSettings) Address() string {
	return fmt.Sprintf("%s:%d", settings.Host, settings.Port)
}

// PersistenceConfig converts the storage settings for persistence.Open.
func (settings StorageSettings) PersistenceConfig() persistence.Config {
	return persistence.Config{Backend: settings.Backend, Path: settings.Path}
}

// LoggerConfig converts the log settings for observability.NewLogger.
func (settings LogSettings) LoggerConfig() observability.LoggerConfig {
	return observability.LoggerConfig{Level: settings.Level, Format: settings.Format, File: settings.File}
}

// resolveStoragePath places the sqlite database inside path when path is the default storage
// directory or an existing directory.
func resolveStoragePath(backend string, path string) string {
	if backend != persistence.BackendSQLite || path == "" {
		return path
	}
	if path == defaultStoragePath() {
		return filepath.Join(path, DefaultSQLiteFileName)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, DefaultSQLiteFileName)
	}
	return path
}

func defaultStoragePath() string {
	configDirectory, err := os.UserConfigDir()
	if err != nil || configDirectory == "" {
		return fallbackStorageDir
	}
	return filepath.Join(configDirectory, defaultStorageDirectory)
}

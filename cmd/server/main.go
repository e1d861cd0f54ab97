package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/f-sync/followtrack/internal/app"
	"github.com/f-sync/followtrack/internal/config"
	"github.com/f-sync/followtrack/internal/observability"
	"github.com/f-sync/followtrack/internal/server"
)

const (
	commandUse               = "followtrack-server"
	commandShortDescription  = "Serve the snapshot history API over HTTP"
	loggerName               = "followtrack-server"
	flagConfigName           = "config"
	flagConfigDescription    = "Path to a configuration file"
	flagHostName             = "host"
	flagHostDescription      = "Host interface for the HTTP server"
	flagPortName             = "port"
	flagPortDescription      = "Port for the HTTP server"
	flagStorageBackendName   = "storage-backend"
	flagStorageBackendDesc   = "Persistence backend: memory, file, badger or sqlite"
	flagStoragePathName      = "storage-path"
	flagStoragePathDesc      = "Directory or database file for the persistence backend"
	errMessageLoadSettings   = "load settings"
	errMessageOpenRuntime    = "open snapshot history"
	errMessageListenAndServe = "listen and serve"
	logMessageStartingServer = "starting HTTP server"
	logMessageServerStopped  = "server stopped"
	logMessageListenError    = "server listen failure"
	logMessageCloseFailure   = "closing snapshot history failed"
	logFieldAddress          = "address"
)

func main() {
	cobra.CheckErr(newServerCommand(config.New()).Execute())
}

func newServerCommand(configuration *viper.Viper) *cobra.Command {
	var configFile string
	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		RunE: func(*cobra.Command, []string) error {
			return runServerCommand(configuration, configFile)
		},
	}

	command.Flags().StringVar(&configFile, flagConfigName, "", flagConfigDescription)
	command.Flags().String(flagHostName, "", flagHostDescription)
	command.Flags().Int(flagPortName, 0, flagPortDescription)
	command.Flags().String(flagStorageBackendName, "", flagStorageBackendDesc)
	command.Flags().String(flagStoragePathName, "", flagStoragePathDesc)

	bindFlagToViper(configuration, command, config.KeyServerHost, flagHostName)
	bindFlagToViper(configuration, command, config.KeyServerPort, flagPortName)
	bindFlagToViper(configuration, command, config.KeyStorageBackend, flagStorageBackendName)
	bindFlagToViper(configuration, command, config.KeyStoragePath, flagStoragePathName)

	return command
}

func bindFlagToViper(configuration *viper.Viper, command *cobra.Command, key string, flagName string) {
	cobra.CheckErr(config.BindFlag(configuration, command, key, flagName))
}

func runServerCommand(configuration *viper.Viper, configFile string) error {
	settings, err := config.Load(configuration, configFile)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoadSettings, err)
	}

	loggerConfig := settings.Log.LoggerConfig()
	loggerConfig.Name = loggerName
	logger := observability.NewLogger(loggerConfig)
	defer func() {
		_ = logger.Sync()
	}()

	runtime, err := app.Open(settings, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageOpenRuntime, err)
	}
	defer func() {
		if closeErr := runtime.Close(); closeErr != nil {
			logger.Warn(logMessageCloseFailure, zap.Error(closeErr))
		}
	}()

	router, err := server.NewRouter(server.RouterConfig{
		Store:    runtime.Store,
		Importer: runtime.Importer,
		Recorder: runtime.Metrics,
		Gatherer: runtime.Registry,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	address := settings.Server.Address()
	logger.Info(logMessageStartingServer, zap.String(logFieldAddress, address))

	httpServer := &http.Server{Addr: address, Handler: router}
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(logMessageListenError, zap.Error(err))
		return fmt.Errorf("%s: %w", errMessageListenAndServe, err)
	}

	logger.Info(logMessageServerStopped)
	return nil
}

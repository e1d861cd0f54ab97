package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/f-sync/followtrack/internal/backup"
	"github.com/f-sync/followtrack/internal/config"
	"github.com/f-sync/followtrack/internal/history"
	"github.com/f-sync/followtrack/internal/importer"
	"github.com/f-sync/followtrack/internal/reconcile"
	"github.com/f-sync/followtrack/internal/relationships"
	"github.com/f-sync/followtrack/internal/report"
	"github.com/f-sync/followtrack/internal/server"
	"github.com/f-sync/followtrack/internal/watcher"
)

const (
	rootCommandUse             = "followtrack"
	rootCommandShort           = "Track follower and following snapshots from Instagram exports"
	flagConfigName             = "config"
	flagConfigDescription      = "Path to a configuration file"
	flagStorageBackendName     = "storage-backend"
	flagStorageBackendDesc     = "Persistence backend: memory, file, badger or sqlite"
	flagStoragePathName        = "storage-path"
	flagStoragePathDescription = "Directory or database file for the persistence backend"
	flagStorageKeyName         = "storage-key"
	flagStorageKeyDescription  = "Key under which the snapshot history is stored"
	flagLogLevelName           = "log-level"
	flagLogLevelDescription    = "Log level: debug, info, warn or error"
	flagLogFormatName          = "log-format"
	flagLogFormatDescription   = "Log format: console or json"
	flagLogFileName            = "log-file"
	flagLogFileDescription     = "Optional rotating log file"
	flagFromName               = "from"
	flagFromDescription        = "Timestamp of the earlier snapshot (RFC 3339)"
	flagToName                 = "to"
	flagToDescription          = "Timestamp of the later snapshot (RFC 3339)"
	flagOutName                = "out"
	flagOutDescription         = "Backup file path; defaults to the dated backup name"
	flagReportOutDescription   = "Report file path"
	defaultReportFileName      = "followtrack_report.html"
	flagDebounceName           = "debounce"
	flagDebounceDescription    = "Quiet period after an export changes before importing it again"
	flagHostName               = "host"
	flagHostDescription        = "Host interface for the HTTP server"
	flagPortName               = "port"
	flagPortDescription        = "Port for the HTTP server"
	flagWatchFollowersName     = "watch-followers"
	flagWatchFollowersDesc     = "Followers export to re-import on change while serving"
	flagWatchFollowingName     = "watch-following"
	flagWatchFollowingDesc     = "Following export to re-import on change while serving"

	shutdownTimeout = 5 * time.Second

	warningFormat             = "warning: %v\n"
	createdFormat             = "snapshot created at %s (%d followers, %d following)\n"
	unchangedFormat           = "no changes since the snapshot at %s; no snapshot created\n"
	snapshotLineFormat        = "%s  followers=%d  following=%d\n"
	noSnapshotsMessage        = "no snapshots\n"
	insufficientDataMessage   = "not enough snapshots to compare; import at least two\n"
	changesHeaderFormat       = "changes %s -> %s\n"
	deltaHeaderFormat         = "%s: +%d -%d\n"
	deltaFailureFormat        = "%s: %v\n"
	addedLineFormat           = "  + %s\n"
	removedLineFormat         = "  - %s\n"
	analysisHeaderFormat      = "%s (%d):\n"
	analysisFailureFormat     = "%s: %v\n"
	accountLineFormat         = "  %s\n"
	notFollowingBackLabel     = "not following back"
	notFollowedBackLabel      = "not followed back"
	overviewTotalsFormat      = "latest %s: %d followers, %d following\n"
	overviewGrowthFormat      = "since previous: followers %+d, following %+d\n"
	overviewReciprocityFormat = "not following back: %d, not followed back: %d\n"
	overviewTrendHeader       = "trend:\n"
	overviewTrendLineFormat   = "  %s  %d / %d\n"
	deletedFormat             = "deleted snapshot at %s; %d remaining\n"
	notDeletedFormat          = "no snapshot captured at %s\n"
	clearedMessage            = "history cleared\n"
	backupWrittenFormat       = "wrote %d snapshots to %s\n"
	restoredFormat            = "restored %d snapshots\n"
	reportWrittenFormat       = "wrote report of %d snapshots to %s\n"

	errMessageParseTimestamp  = "parse timestamp"
	errMessageIncompleteRange = "both --from and --to are required"
	errMessageListenAndServe  = "listen and serve"
	errMessageIncompleteWatch = "both --watch-followers and --watch-following are required"
	logMessageStartingServer  = "starting HTTP server"
	logMessageServerStopped   = "server stopped"
	logMessageWatchImport     = "watched export imported"
	logFieldAddress           = "address"
	logFieldOutcome           = "outcome"
)

// RootCommand builds the command tree.
func (application *Application) RootCommand() *cobra.Command {
	var configFile string
	rootCommand := &cobra.Command{
		Use:          rootCommandUse,
		Short:        rootCommandShort,
		SilenceUsage: true,
	}
	rootCommand.SetOut(application.dependencies.Stdout)
	rootCommand.SetErr(application.dependencies.Stderr)

	persistentFlags := rootCommand.PersistentFlags()
	persistentFlags.StringVar(&configFile, flagConfigName, "", flagConfigDescription)
	persistentFlags.String(flagStorageBackendName, "", flagStorageBackendDesc)
	persistentFlags.String(flagStoragePathName, "", flagStoragePathDescription)
	persistentFlags.String(flagStorageKeyName, "", flagStorageKeyDescription)
	persistentFlags.String(flagLogLevelName, "", flagLogLevelDescription)
	persistentFlags.String(flagLogFormatName, "", flagLogFormatDescription)
	persistentFlags.String(flagLogFileName, "", flagLogFileDescription)
	persistentFlags.Duration(flagDebounceName, 0, flagDebounceDescription)
	application.bindFlag(rootCommand, config.KeyStorageBackend, flagStorageBackendName)
	application.bindFlag(rootCommand, config.KeyStoragePath, flagStoragePathName)
	application.bindFlag(rootCommand, config.KeyStorageKey, flagStorageKeyName)
	application.bindFlag(rootCommand, config.KeyLogLevel, flagLogLevelName)
	application.bindFlag(rootCommand, config.KeyLogFormat, flagLogFormatName)
	application.bindFlag(rootCommand, config.KeyLogFile, flagLogFileName)
	application.bindFlag(rootCommand, config.KeyWatchDebounce, flagDebounceName)

	withRuntime := func(run func(command *cobra.Command, arguments []string) error) func(*cobra.Command, []string) error {
		return func(command *cobra.Command, arguments []string) (runErr error) {
			if err := application.prepare(configFile); err != nil {
				return err
			}
			defer func() {
				runErr = errors.Join(runErr, application.release())
			}()
			return run(command, arguments)
		}
	}

	rootCommand.AddCommand(
		&cobra.Command{
			Use:   "import <followers.json> <following.json>",
			Short: "Import a followers and a following export as a new snapshot",
			Args:  cobra.ExactArgs(2),
			RunE:  withRuntime(application.runImport),
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored snapshots, oldest first",
			Args:  cobra.NoArgs,
			RunE:  withRuntime(application.runList),
		},
		application.newChangesCommand(withRuntime),
		&cobra.Command{
			Use:   "analyze",
			Short: "Show non-reciprocal accounts of the latest snapshot",
			Args:  cobra.NoArgs,
			RunE:  withRuntime(application.runAnalyze),
		},
		&cobra.Command{
			Use:   "overview",
			Short: "Summarize counts and growth across the history",
			Args:  cobra.NoArgs,
			RunE:  withRuntime(application.runOverview),
		},
		&cobra.Command{
			Use:   "delete <takenAt>",
			Short: "Delete the snapshot captured at the given time",
			Args:  cobra.ExactArgs(1),
			RunE:  withRuntime(application.runDelete),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every snapshot",
			Args:  cobra.NoArgs,
			RunE:  withRuntime(application.runClear),
		},
		application.newBackupCommand(withRuntime),
		application.newReportCommand(withRuntime),
		&cobra.Command{
			Use:   "restore <backup.json>",
			Short: "Replace the history with the content of a backup file",
			Args:  cobra.ExactArgs(1),
			RunE:  withRuntime(application.runRestore),
		},
		application.newWatchCommand(withRuntime),
		application.newServeCommand(withRuntime),
	)
	return rootCommand
}

type runtimeWrapper func(func(*cobra.Command, []string) error) func(*cobra.Command, []string) error

func (application *Application) bindFlag(command *cobra.Command, key string, flagName string) {
	cobra.CheckErr(config.BindFlag(application.configuration, command, key, flagName))
}

func (application *Application) runImport(command *cobra.Command, arguments []string) error {
	result, err := application.runtime.Importer.Import(command.Context(), arguments[0], arguments[1])
	if err != nil {
		return err
	}
	application.reportImport(result)
	return nil
}

func (application *Application) reportImport(result importer.Result) {
	if result.Outcome == importer.OutcomeUnchanged {
		application.printf(unchangedFormat, formatTimestamp(result.Snapshot.TakenAt))
		return
	}
	application.printf(createdFormat, formatTimestamp(result.Snapshot.TakenAt), len(result.Snapshot.Followers), len(result.Snapshot.Following))
	application.warn(result.PersistWarning)
}

func (application *Application) runList(*cobra.Command, []string) error {
	currentHistory := application.runtime.Store.Snapshots()
	if len(currentHistory) == 0 {
		application.printf(noSnapshotsMessage)
		return nil
	}
	for _, snapshot := range currentHistory {
		application.printf(snapshotLineFormat, formatTimestamp(snapshot.TakenAt), len(snapshot.Followers), len(snapshot.Following))
	}
	return nil
}

func (application *Application) newChangesCommand(withRuntime runtimeWrapper) *cobra.Command {
	var rawFrom, rawTo string
	command := &cobra.Command{
		Use:   "changes",
		Short: "Show accounts gained and lost between two snapshots (default: the latest two)",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(*cobra.Command, []string) error {
			currentHistory := application.runtime.Store.Snapshots()
			if rawFrom == "" && rawTo == "" {
				changes, ready := reconcile.LatestChanges(currentHistory)
				if !ready {
					application.printf(insufficientDataMessage)
					return nil
				}
				application.printChanges(changes)
				return nil
			}
			if rawFrom == "" || rawTo == "" {
				return errors.New(errMessageIncompleteRange)
			}
			from, err := parseTimestamp(rawFrom)
			if err != nil {
				return err
			}
			to, err := parseTimestamp(rawTo)
			if err != nil {
				return err
			}
			changes, err := reconcile.Between(currentHistory, from, to)
			if err != nil {
				return err
			}
			application.printChanges(changes)
			return nil
		}),
	}
	command.Flags().StringVar(&rawFrom, flagFromName, "", flagFromDescription)
	command.Flags().StringVar(&rawTo, flagToName, "", flagToDescription)
	return command
}

func (application *Application) printChanges(changes reconcile.Changes) {
	application.printf(changesHeaderFormat, formatTimestamp(changes.PreviousTakenAt), formatTimestamp(changes.LatestTakenAt))
	for _, direction := range relationships.Directions() {
		result := changes.Result(direction)
		if result.Err != nil {
			application.printf(deltaFailureFormat, direction, result.Err)
			continue
		}
		application.printf(deltaHeaderFormat, direction, len(result.Delta.Added), len(result.Delta.Removed))
		for _, identity := range result.Delta.Added {
			application.printf(addedLineFormat, identity.Handle)
		}
		for _, identity := range result.Delta.Removed {
			application.printf(removedLineFormat, identity.Handle)
		}
	}
}

func (application *Application) runAnalyze(*cobra.Command, []string) error {
	latest, found := application.runtime.Store.Latest()
	if !found {
		application.printf(noSnapshotsMessage)
		return nil
	}
	analysis := reconcile.Analyze(latest)
	application.printAxis(notFollowingBackLabel, analysis.NotFollowingBack)
	application.printAxis(notFollowedBackLabel, analysis.NotFollowedBack)
	return nil
}

func (application *Application) printAxis(label string, result reconcile.AxisResult) {
	if result.Err != nil {
		application.printf(analysisFailureFormat, label, result.Err)
		return
	}
	application.printf(analysisHeaderFormat, label, len(result.Identities))
	for _, identity := range result.Identities {
		application.printf(accountLineFormat, identity.Handle)
	}
}

func (application *Application) runOverview(*cobra.Command, []string) error {
	overview, ready := reconcile.Overview(application.runtime.Store.Snapshots())
	if !ready {
		application.printf(noSnapshotsMessage)
		return nil
	}
	application.printf(overviewTotalsFormat, formatTimestamp(overview.Latest.TakenAt), overview.Latest.FollowerCount, overview.Latest.FollowingCount)
	if overview.HasPrevious {
		application.printf(overviewGrowthFormat, overview.FollowerGrowth.Difference, overview.FollowingGrowth.Difference)
	}
	application.printf(overviewReciprocityFormat, overview.NotFollowingBackCount, overview.NotFollowedBackCount)
	application.printf(overviewTrendHeader)
	for _, point := range overview.Trend {
		application.printf(overviewTrendLineFormat, formatTimestamp(point.TakenAt), point.FollowerCount, point.FollowingCount)
	}
	return nil
}

func (application *Application) runDelete(_ *cobra.Command, arguments []string) error {
	takenAt, err := parseTimestamp(arguments[0])
	if err != nil {
		return err
	}
	mutation := application.runtime.Store.RemoveOne(takenAt)
	if !mutation.Changed {
		application.printf(notDeletedFormat, formatTimestamp(takenAt))
		return nil
	}
	application.recordMutation(mutation)
	application.printf(deletedFormat, formatTimestamp(takenAt), len(mutation.History))
	application.warn(mutation.PersistWarning)
	return nil
}

func (application *Application) runClear(*cobra.Command, []string) error {
	mutation := application.runtime.Store.Clear()
	application.recordMutation(mutation)
	application.printf(clearedMessage)
	application.warn(mutation.PersistWarning)
	return nil
}

func (application *Application) recordMutation(mutation history.Mutation) {
	application.runtime.Metrics.SetHistorySize(len(mutation.History))
	if mutation.PersistWarning != nil {
		application.runtime.Metrics.RecordPersistWarning()
	}
}

func (application *Application) newBackupCommand(withRuntime runtimeWrapper) *cobra.Command {
	var outputPath string
	command := &cobra.Command{
		Use:   "backup",
		Short: "Write the whole history to a backup file",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(*cobra.Command, []string) error {
			currentHistory := application.runtime.Store.Snapshots()
			if len(currentHistory) == 0 {
				return errNothingToBackUp
			}
			payload, err := backup.Encode(currentHistory)
			if err != nil {
				return err
			}
			path := outputPath
			if path == "" {
				path = backup.FileName(application.dependencies.Now())
			}
			if err := application.dependencies.WriteFile(path, payload); err != nil {
				return err
			}
			application.printf(backupWrittenFormat, len(currentHistory), path)
			return nil
		}),
	}
	command.Flags().StringVar(&outputPath, flagOutName, "", flagOutDescription)
	return command
}

func (application *Application) newReportCommand(withRuntime runtimeWrapper) *cobra.Command {
	var outputPath string
	command := &cobra.Command{
		Use:   "report",
		Short: "Write an HTML report of the overview, latest changes and non-reciprocal accounts",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(*cobra.Command, []string) error {
			currentHistory := application.runtime.Store.Snapshots()
			page, err := report.RenderPage(report.PageData{History: currentHistory, GeneratedAt: application.dependencies.Now()})
			if err != nil {
				return err
			}
			if err := application.dependencies.WriteFile(outputPath, []byte(page)); err != nil {
				return err
			}
			application.printf(reportWrittenFormat, len(currentHistory), outputPath)
			return nil
		}),
	}
	command.Flags().StringVar(&outputPath, flagOutName, defaultReportFileName, flagReportOutDescription)
	return command
}

func (application *Application) runRestore(command *cobra.Command, arguments []string) error {
	result, err := application.runtime.Importer.Restore(command.Context(), arguments[0])
	if err != nil {
		return err
	}
	application.printf(restoredFormat, len(result.History))
	application.warn(result.PersistWarning)
	return nil
}

func (application *Application) newWatchCommand(withRuntime runtimeWrapper) *cobra.Command {
	command := &cobra.Command{
		Use:   "watch <followers.json> <following.json>",
		Short: "Import the two exports again whenever they change",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(command *cobra.Command, arguments []string) error {
			ctx, stop := signal.NotifyContext(command.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			fileWatcher, err := application.newImportWatcher(arguments[0], arguments[1])
			if err != nil {
				return err
			}
			return fileWatcher.Run(ctx)
		}),
	}
	return command
}

func (application *Application) newImportWatcher(followersPath string, followingPath string) (*watcher.Watcher, error) {
	return watcher.New(watcher.Config{
		Files:    []string{followersPath, followingPath},
		Debounce: application.settings.Watch.Debounce,
		Logger:   application.logger,
		Trigger: func(ctx context.Context) error {
			result, err := application.runtime.Importer.Import(ctx, followersPath, followingPath)
			if err != nil {
				return err
			}
			application.logger.Info(logMessageWatchImport, zap.String(logFieldOutcome, result.Outcome.String()))
			application.reportImport(result)
			return nil
		},
	})
}

func (application *Application) newServeCommand(withRuntime runtimeWrapper) *cobra.Command {
	var watchFollowers, watchFollowing string
	command := &cobra.Command{
		Use:   "serve",
		Short: "Serve the snapshot history API over HTTP",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(command *cobra.Command, _ []string) error {
			if (watchFollowers == "") != (watchFollowing == "") {
				return errors.New(errMessageIncompleteWatch)
			}
			ctx, stop := signal.NotifyContext(command.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return application.serve(ctx, watchFollowers, watchFollowing)
		}),
	}
	command.Flags().String(flagHostName, "", flagHostDescription)
	command.Flags().Int(flagPortName, 0, flagPortDescription)
	command.Flags().StringVar(&watchFollowers, flagWatchFollowersName, "", flagWatchFollowersDesc)
	command.Flags().StringVar(&watchFollowing, flagWatchFollowingName, "", flagWatchFollowingDesc)
	application.bindFlag(command, config.KeyServerHost, flagHostName)
	application.bindFlag(command, config.KeyServerPort, flagPortName)
	return command
}

func (application *Application) serve(ctx context.Context, watchFollowers string, watchFollowing string) error {
	router, err := server.NewRouter(server.RouterConfig{
		Store:    application.runtime.Store,
		Importer: application.runtime.Importer,
		Recorder: application.runtime.Metrics,
		Gatherer: application.runtime.Registry,
		Logger:   application.logger,
		Now:      application.dependencies.Now,
	})
	if err != nil {
		return err
	}

	var fileWatcher *watcher.Watcher
	if watchFollowers != "" {
		fileWatcher, err = application.newImportWatcher(watchFollowers, watchFollowing)
		if err != nil {
			return err
		}
	}

	address := application.settings.Server.Address()
	httpServer := &http.Server{Addr: address, Handler: router, ReadHeaderTimeout: shutdownTimeout}
	group, groupContext := errgroup.WithContext(ctx)
	group.Go(func() error {
		application.logger.Info(logMessageStartingServer, zap.String(logFieldAddress, address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", errMessageListenAndServe, err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupContext.Done()
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownContext)
	})
	if fileWatcher != nil {
		group.Go(func() error {
			return fileWatcher.Run(groupContext)
		})
	}

	err = group.Wait()
	application.logger.Info(logMessageServerStopped)
	return err
}

func parseTimestamp(rawTimestamp string) (time.Time, error) {
	timestamp, err := time.Parse(time.RFC3339Nano, rawTimestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q: %w", errMessageParseTimestamp, rawTimestamp, err)
	}
	return timestamp, nil
}

func formatTimestamp(timestamp time.Time) string {
	return timestamp.UTC().Format(backup.TakenAtLayout)
}

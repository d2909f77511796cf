// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// firefly-watch follows the latest execution of one script or load
// test. It fetches the last execution over HTTP, subscribes to the
// matching history stream, and either renders the merged state in a
// terminal dashboard or logs each change.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/firefly-qa/firefly/aggregate"
	"github.com/firefly-qa/firefly/history"
	"github.com/firefly-qa/firefly/lib/cli"
	"github.com/firefly-qa/firefly/lib/clock"
	"github.com/firefly-qa/firefly/lib/config"
	"github.com/firefly-qa/firefly/lib/version"
	"github.com/firefly-qa/firefly/lib/watchui"
	"github.com/firefly-qa/firefly/protocol"
	"github.com/firefly-qa/firefly/recording"
	"github.com/firefly-qa/firefly/stream"
	"github.com/firefly-qa/firefly/subscription"
)

// stopTimeout bounds the stop request sent after the session ends.
const stopTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("firefly-watch", version.Full())
		return nil
	}

	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if errors.Is(err, errHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	var cfg *config.Config
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	opts.apply(cfg)

	dashboard := !opts.plain && term.IsTerminal(int(os.Stdout.Fd()))

	// The dashboard owns the terminal, so logs go to --log-output or
	// nowhere while it runs.
	logOutput := io.Writer(os.Stderr)
	if dashboard {
		logOutput = io.Discard
		if opts.logOutput != "" {
			file, err := os.OpenFile(opts.logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("opening log output: %w", err)
			}
			defer file.Close()
			logOutput = file
		}
	}
	logger, err := cli.NewLogger(logOutput, cfg.Log)
	if err != nil {
		return err
	}
	logger = logger.With("kind", opts.kind.String(), "entity", opts.entityID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return watch(ctx, cfg, opts, dashboard, logger)
}

func watch(ctx context.Context, cfg *config.Config, opts options, dashboard bool, logger *slog.Logger) error {
	client, err := history.NewClient(history.ClientConfig{
		BaseURL: cfg.Server.APIURL,
		Token:   cfg.Server.Token,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	var fetcher subscription.SnapshotFetcher = history.ScriptFetcher{Client: client}
	if opts.kind == protocol.LoadTest {
		fetcher = history.LoadTestFetcher{Client: client}
	}

	manager, err := stream.NewManager(stream.ManagerConfig{
		BaseURL:           cfg.Server.StreamURL,
		Dialer:            stream.NewWebsocketDialer(cfg.Stream.HandshakeTimeout.Std()),
		Logger:            logger,
		ReconnectInterval: cfg.Stream.ReconnectInterval.Std(),
		SendRetryInterval: cfg.Stream.SendRetryInterval.Std(),
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	var tap func([]byte)
	if cfg.Recording.Path != "" {
		writer, closeRecording, err := openRecording(cfg.Recording)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeRecording(); err != nil {
				logger.Error("closing recording", "path", cfg.Recording.Path, "error", err)
				return
			}
			logger.Info("recording saved", "path", cfg.Recording.Path, "frames", writer.Frames())
		}()
		tap = writer.Tap(opts.kind.Endpoint(), clock.Real(), logger)
	}

	store := aggregate.NewStore()
	controller, err := subscription.New(subscription.Config{
		Kind:          opts.kind,
		Manager:       manager,
		Store:         store,
		Fetcher:       fetcher,
		Logger:        logger,
		InboxCapacity: cfg.Stream.InboxCapacity,
		Tap:           tap,
	})
	if err != nil {
		return err
	}

	// Subscribe before Mount so the first event is not missed.
	events := store.Subscribe()
	if err := controller.Mount(ctx); err != nil {
		return err
	}
	defer controller.Unmount()

	if opts.run {
		executionID, err := startExecution(ctx, client, opts)
		if err != nil {
			return explain(opts, err)
		}
		logger.Info("execution started", "execution", executionID)
		if opts.stopOnExit {
			defer stopLoadTest(client, opts.entityID, logger)
		}
		workers := 0
		if opts.kind == protocol.LoadTest {
			workers = opts.tasks
		}
		if err := controller.StartExecution(opts.entityID, executionID, workers); err != nil {
			return err
		}
	} else if err := controller.Watch(opts.entityID); err != nil {
		return err
	}

	if !dashboard {
		logEvents(ctx, events, store, controller, logger)
		return nil
	}

	model := watchui.NewModel(watchui.Config{
		Store:    store,
		Kind:     opts.kind,
		EntityID: opts.entityID,
		Phase:    func() string { return controller.State().Phase.String() },
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// startExecution asks the server for a new run of the watched entity
// and returns its execution id.
func startExecution(ctx context.Context, client *history.Client, opts options) (string, error) {
	if opts.kind == protocol.LoadTest {
		return client.StartLoadTest(ctx, history.StartLoadTestRequest{
			RootFolder:       opts.rootFolder,
			EnvName:          opts.envName,
			LoadTestID:       opts.entityID,
			NumberOfTasks:    opts.tasks,
			SettingOverwrite: map[string]history.EnvOverwrite{},
			Params:           map[string]any{},
			ConfigValues:     map[string]any{},
		})
	}
	return client.RunScript(ctx, history.RunScriptRequest{
		RootFolder:       opts.rootFolder,
		EnvName:          opts.envName,
		ScriptID:         opts.entityID,
		SettingOverwrite: map[string]history.EnvOverwrite{},
		Params:           map[string]any{},
	})
}

func stopLoadTest(client *history.Client, loadTestID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := client.StopLoadTest(ctx, loadTestID); err != nil {
		logger.Error("stopping load test", "error", err)
		return
	}
	logger.Info("load test stopped")
}

// explain adds a hint to the server errors a user can act on.
func explain(opts options, err error) error {
	switch {
	case history.IsNotFound(err):
		return fmt.Errorf("%s %s not found on the server: %w", opts.kind, opts.entityID, err)
	case history.IsUnauthorized(err):
		return fmt.Errorf("server rejected the credentials; set server.token or %s: %w", config.TokenVariable, err)
	}
	return err
}

// openRecording creates the recording file. The returned function
// flushes the compressed stream and closes the file.
func openRecording(settings config.RecordingConfig) (*recording.Writer, func() error, error) {
	compression, err := recording.ParseCompression(settings.Compression)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Create(settings.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating recording: %w", err)
	}
	writer, err := recording.NewWriter(file, compression)
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	closeAll := func() error {
		return errors.Join(writer.Close(), file.Close())
	}
	return writer, closeAll, nil
}

// logEvents logs every store change for the watched entity until ctx
// is done.
func logEvents(ctx context.Context, events <-chan aggregate.Event, store *aggregate.Store,
	controller *subscription.Controller, logger *slog.Logger) {
	var last protocol.Status
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping", "reason", context.Cause(ctx))
			return
		case event := <-events:
			status := logEvent(logger, store, controller.State(), event)
			if status != last && status.Terminal() {
				logger.Info("execution finished", "status", status)
			}
			last = status
		}
	}
}

// logEvent logs one change and returns the entity's status after it.
func logEvent(logger *slog.Logger, store *aggregate.Store, state subscription.State, event aggregate.Event) protocol.Status {
	attrs := []any{
		"cause", event.Cause,
		"phase", state.Phase.String(),
	}
	var status protocol.Status
	switch event.Kind {
	case protocol.Script:
		execution := store.Script(event.EntityID)
		status = execution.Status
		attrs = append(attrs,
			"execution", execution.ExecutionID,
			"status", execution.Status,
			"fetch", execution.FetchStatus,
			"log_lines", len(execution.Log),
			"errors", len(execution.Errors))
	case protocol.LoadTest:
		execution := store.LoadTest(event.EntityID)
		status = execution.Status
		attrs = append(attrs,
			"execution", execution.ExecutionID,
			"status", execution.Status,
			"fetch", execution.FetchStatus,
			"workers", len(execution.Workers),
			"charts", len(execution.Charts))
	}
	logger.Info("updated", attrs...)
	return status
}

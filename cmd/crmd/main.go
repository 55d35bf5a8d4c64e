// Command crmd serves the CRM mutation API and runs the background jobs.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crmcore/internal/adapters/mutations"
	"crmcore/internal/blob"
	"crmcore/internal/config"
	"crmcore/internal/core"
	"crmcore/internal/jobs"
	"crmcore/internal/logging"
	"crmcore/internal/metrics"
)

const (
	heartbeatInterval = 5 * time.Minute
	restockInterval   = 12 * time.Hour
	reportInterval    = 7 * 24 * time.Hour
	reminderInterval  = 24 * time.Hour
	shutdownTimeout   = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "listen address (overrides CRM_HTTP_ADDR)")
	driver := fs.String("storage", "", "storage driver: memory|sqlite|postgres (overrides CRM_STORAGE_DRIVER)")
	runJob := fs.String("run-job", "", "run the named job once and exit")
	expvarMetrics := fs.Bool("expvar-metrics", false, "record operation metrics via expvar instead of prometheus")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *driver != "" {
		cfg.Storage.Driver = core.StorageDriver(*driver)
	}

	zl, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "crmd", Output: stdout})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	logger := logging.Adapt(zl)
	defer func() { _ = logger.Sync() }()

	if err := serve(ctx, cfg, logger, *runJob, *expvarMetrics); err != nil {
		logger.Error("crmd stopped", "error", err.Error())
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg config.Config, logger *logging.Logger, runJob string, expvarMetrics bool) error {
	store, err := core.OpenPersistentStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	registry := metrics.NewRegistry()
	var recorder core.MetricsRecorder = registry
	if expvarMetrics {
		recorder = core.NewExpvarMetricsRecorder("")
	}
	svc := core.NewService(store,
		core.WithLogger(logger.With("component", "service")),
		core.WithMetricsRecorder(recorder),
		core.WithTracer(core.NewOTelTracer(nil)),
	)

	archive, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	var notifier jobs.Notifier = &jobs.FileNotifier{Log: jobs.NewLogFile(cfg.ReminderLog)}
	if len(cfg.KafkaBrokers) > 0 {
		kn := jobs.NewKafkaNotifier(jobs.NewKafkaWriter(cfg.KafkaBrokers, cfg.ReminderTopic))
		defer func() { _ = kn.Close() }()
		notifier = kn
	}

	runner := jobs.NewRunner(jobs.WithLogger(logger.With("component", "jobs")), jobs.WithObserver(registry))
	runner.Every(heartbeatInterval, &jobs.Heartbeat{Store: svc, Log: jobs.NewLogFile(cfg.HeartbeatLog)})
	runner.Every(restockInterval, &jobs.Restock{Service: svc, Log: jobs.NewLogFile(cfg.RestockLog)})
	runner.Every(reportInterval, &jobs.Report{Reader: svc, Log: jobs.NewLogFile(cfg.ReportLog), Archive: archive})
	runner.Every(reminderInterval, &jobs.Reminders{Reader: svc, Notifier: notifier})

	if runJob != "" {
		return runner.RunNow(ctx, runJob)
	}

	handler := mutations.NewHandler(svc, logger.With("component", "http"))
	mux := http.NewServeMux()
	mux.Handle("/api/v1/", handler)
	mux.Handle("/healthz", handler)
	mux.Handle("/metrics", registry.Handler())
	mux.Handle("/debug/vars", expvar.Handler())

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	jobsDone := make(chan struct{})
	if cfg.JobsEnabled {
		go func() {
			runner.Run(runCtx)
			close(jobsDone)
		}()
	} else {
		close(jobsDone)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "storage", string(cfg.Storage.Driver), "jobs", cfg.JobsEnabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		cancel()
		<-jobsDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	err = srv.Shutdown(shutdownCtx)
	cancel()
	<-jobsDone
	return err
}

package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/rzbill/listdb/internal/config"
	"github.com/rzbill/listdb/internal/metrics"
	"github.com/rzbill/listdb/internal/retention"
	"github.com/rzbill/listdb/internal/runtime"
	logpkg "github.com/rzbill/listdb/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// HealthInterval is how often the engine is probed; zero means 30s.
	HealthInterval time.Duration
}

// Run opens the store, then runs the retention scheduler and the metrics
// endpoint until ctx is cancelled or the process is signalled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}

	procLogger := opts.Logger
	if procLogger == nil {
		lc := &logpkg.Config{
			Level:  getenvDefault("LISTDB_LOG_LEVEL", cfg.Log.Level),
			Format: getenvDefault("LISTDB_LOG_FORMAT", cfg.Log.Format),
		}
		var err error
		procLogger, err = logpkg.ApplyConfig(lc)
		if err != nil {
			// Fallback to a sane default
			lvl := logpkg.InfoLevel
			if l, e := logpkg.ParseLevel(lc.Level); e == nil {
				lvl = l
			}
			procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
		}
		logpkg.RedirectStdLog(procLogger)
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		var err error
		if m, err = metrics.New(procLogger); err != nil {
			return err
		}
	}

	rt, err := runtime.Open(sctx, runtime.Options{Config: cfg, Logger: procLogger, Metrics: m})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting listdb server",
		logpkg.Str("engine", cfg.Engine),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("metrics", cfg.MetricsAddr),
		logpkg.Bool("retention", cfg.Retention.Enabled),
		logpkg.Str("cron", cfg.Retention.Cron),
	)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	mgr := retention.New(rt.Engine(), rt.Store(), cfg.Retention, procLogger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgr.Run(sctx); err != nil && sctx.Err() == nil {
			errCh <- err
		}
	}()

	if m != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Serve(sctx, cfg.MetricsAddr); err != nil && sctx.Err() == nil {
				errCh <- err
			}
		}()
	}

	interval := opts.HealthInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-sctx.Done():
			break loop
		case runErr = <-errCh:
			stop()
			break loop
		case <-ticker.C:
			if err := rt.CheckHealth(sctx); err != nil && sctx.Err() == nil {
				procLogger.Error("health check failed", logpkg.Err(err))
			}
		}
	}
	// Stop background work before the deferred Close so nothing touches a closed engine.
	wg.Wait()
	procLogger.Info("listdb server stopped")
	return runErr
}

package listscmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/listdb/internal/config"
	"github.com/rzbill/listdb/internal/metrics"
	"github.com/rzbill/listdb/internal/runtime"
	logpkg "github.com/rzbill/listdb/pkg/log"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath string
	dataDir    string
	engine     string
	fsync      string
	logLevel   string
	logFormat  string
}

// NewRoot constructs the root command with every list, prune, retention and
// serve subcommand registered.
func NewRoot() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "listdb",
		Short:         "listdb named-list storage CLI",
		Long:          "listdb stores append-only, etag-ordered lists of key/value items in an embedded Pebble database.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", os.Getenv("LISTDB_CONFIG"), "Config file (JSON or YAML)")
	pf.StringVar(&g.dataDir, "data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	pf.StringVar(&g.engine, "engine", "", "Storage engine: pebble|memory")
	pf.StringVar(&g.fsync, "fsync", "", "Fsync mode: always|interval|never")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text|json (default text)")

	root.AddCommand(
		newSetCommand(g),
		newGetCommand(g),
		newReadCommand(g),
		newLastCommand(g),
		newRemoveCommand(g),
		newCountCommand(g),
		newNamesCommand(g),
		newPruneCommand(g),
		newRetentionCommand(g),
		newServeCommand(g),
	)
	return root
}

// config resolves file, .env and environment settings, then applies any
// persistent flags the user set.
func (g *globals) config() (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Resolve(g.configPath)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	if g.dataDir != "" {
		cfg.DataDir = g.dataDir
	}
	if g.engine != "" {
		cfg.Engine = g.engine
	}
	if g.fsync != "" {
		cfg.Fsync = g.fsync
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	return cfg, cfg.Validate()
}

// logger builds the process logger and routes standard library output
// (Pebble's event logging among it) through it.
func (g *globals) logger(cfg cfgpkg.Config) (logpkg.Logger, error) {
	logger, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	logpkg.RedirectStdLog(logger)
	return logger, nil
}

// withRuntime opens the runtime for a single command and closes it after fn.
func (g *globals) withRuntime(ctx context.Context, fn func(rt *runtime.Runtime) error) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}
	logger, err := g.logger(cfg)
	if err != nil {
		return err
	}
	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		if m, err = metrics.New(logger); err != nil {
			return err
		}
	}
	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger, Metrics: m})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are named) into the process environment. Missing files are ignored and
// variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "config: load %s", p)
		}
	}
	return nil
}

// FromEnv overlays LISTDB_* environment variables onto cfg. Values that do
// not parse are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("LISTDB_ENGINE"); v != "" {
		cfg.Engine = v
	}
	if v := os.Getenv("LISTDB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LISTDB_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("LISTDB_FSYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FsyncIntervalMs = n
		}
	}
	if v := os.Getenv("LISTDB_COMPRESSION"); v != "" {
		cfg.Compression = v
	}
	if v := os.Getenv("LISTDB_COMPRESS_MIN_BYTES"); v != "" {
		if n, err := parseSize(v); err == nil {
			cfg.CompressMinBytes = n
		}
	}
	if v := os.Getenv("LISTDB_PULSE_EVERY_OPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pulse.EveryOps = n
		}
	}
	if v := os.Getenv("LISTDB_PULSE_MAX_BATCH_BYTES"); v != "" {
		if n, err := parseSize(v); err == nil {
			cfg.Pulse.MaxBatchBytes = n
		}
	}
	if v := os.Getenv("LISTDB_PULSE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pulse.PerSecond = f
		}
	}
	if v := os.Getenv("LISTDB_RETENTION_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Retention.Enabled = b
		}
	}
	if v := os.Getenv("LISTDB_RETENTION_CRON"); v != "" {
		cfg.Retention.Cron = v
	}
	// LISTDB_RETENTION_LISTS=orders=72h,audit=720h
	if v := os.Getenv("LISTDB_RETENTION_LISTS"); v != "" {
		var lists []RetentionList
		for _, part := range strings.Split(v, ",") {
			name, age, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok || name == "" {
				continue
			}
			d, err := parseDuration(age)
			if err != nil {
				continue
			}
			lists = append(lists, RetentionList{Name: name, MaxAge: d})
		}
		cfg.Retention.Lists = lists
	}
	if v := os.Getenv("LISTDB_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("LISTDB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LISTDB_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// Resolve builds the effective configuration: defaults, then the file at
// path (if any), then .env and LISTDB_* variables. The result is validated.
func Resolve(path string) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}
	if path == "" {
		path = os.Getenv("LISTDB_CONFIG")
	}
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	FromEnv(&cfg)
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

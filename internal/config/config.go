package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Engine           string          `json:"engine" yaml:"engine"` // pebble|memory
	DataDir          string          `json:"dataDir" yaml:"dataDir"`
	Fsync            string          `json:"fsync" yaml:"fsync"` // always|interval|never
	FsyncIntervalMs  int             `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
	Compression      string          `json:"compression" yaml:"compression"` // none|snappy|zstd
	CompressMinBytes SizeBytes       `json:"compressMinBytes" yaml:"compressMinBytes"`
	Pulse            PulseConfig     `json:"pulse" yaml:"pulse"`
	Retention        RetentionConfig `json:"retention" yaml:"retention"`
	MetricsAddr      string          `json:"metricsAddr" yaml:"metricsAddr"`
	Log              LogConfig       `json:"log" yaml:"log"`
}

// PulseConfig bounds the batches of bulk removals. A bulk removal commits
// once either limit is reached; zero disables that limit.
type PulseConfig struct {
	// EveryOps counts kv operations, not records: each pruned record is
	// three deletes, so 1024 commits roughly every 341 records.
	EveryOps      int       `json:"everyOps" yaml:"everyOps"`
	MaxBatchBytes SizeBytes `json:"maxBatchBytes" yaml:"maxBatchBytes"`
	PerSecond     float64   `json:"perSecond" yaml:"perSecond"`
}

// RetentionConfig drives scheduled age pruning.
type RetentionConfig struct {
	Enabled bool            `json:"enabled" yaml:"enabled"`
	Cron    string          `json:"cron" yaml:"cron"`
	Lists   []RetentionList `json:"lists" yaml:"lists"`
}

// RetentionList prunes records of Name older than MaxAge.
type RetentionList struct {
	Name   string   `json:"name" yaml:"name"`
	MaxAge Duration `json:"maxAge" yaml:"maxAge"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Engine:           "pebble",
		Fsync:            "interval",
		FsyncIntervalMs:  5,
		Compression:      "none",
		CompressMinBytes: 512,
		Pulse: PulseConfig{
			EveryOps:      1024,
			MaxBatchBytes: 4 << 20,
		},
		Retention: RetentionConfig{
			Cron: "0 2 * * *",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config: parse %s", path)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config: parse %s", path)
		}
	}
	return cfg, nil
}

// Validate checks enumerations, the retention schedule and list rules.
func (c Config) Validate() error {
	switch c.Engine {
	case "pebble", "memory":
	default:
		return errors.Newf("config: unknown engine %q", c.Engine)
	}
	switch c.Fsync {
	case "", "always", "interval", "never":
	default:
		return errors.Newf("config: unknown fsync mode %q", c.Fsync)
	}
	switch c.Compression {
	case "", "none", "snappy", "zstd":
	default:
		return errors.Newf("config: unknown compression %q", c.Compression)
	}
	if c.Pulse.EveryOps < 0 || c.Pulse.MaxBatchBytes < 0 || c.Pulse.PerSecond < 0 {
		return errors.New("config: pulse limits must not be negative")
	}
	if c.Retention.Enabled {
		if !gronx.IsValid(c.Retention.Cron) {
			return errors.Newf("config: invalid retention cron expression: %s", c.Retention.Cron)
		}
		for i, l := range c.Retention.Lists {
			if l.Name == "" {
				return errors.Newf("config: retention.lists[%d] has no name", i)
			}
			if l.MaxAge.Duration() <= 0 {
				return errors.Newf("config: retention.lists[%d] (%s) needs a positive maxAge", i, l.Name)
			}
		}
	}
	return nil
}

// SizeBytes is a byte count that unmarshals from integers or human-friendly
// strings such as "64MB" or "4MiB".
type SizeBytes int64

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, errors.Newf("invalid size value: %q", raw)
}

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s *SizeBytes) UnmarshalJSON(b []byte) error {
	v, err := parseSize(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int() int { return int(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

// Duration accepts Go duration strings ("72h", "30m") or plain numbers of
// seconds.
type Duration time.Duration

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return 0, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return Duration(d), nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(secs * float64(time.Second))), nil
	}
	return 0, errors.Newf("invalid duration value: %q", raw)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	v, err := parseDuration(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

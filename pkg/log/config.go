package log

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Config declares a logger. Zero values mean info level, text format and
// console output.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text|json
	// Outputs lists "console", "null" or "file:<path>".
	Outputs    []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	ShowCaller bool     `json:"showCaller,omitempty" yaml:"showCaller,omitempty"`
	// RedactKeys replaces the value of matching fields with [REDACTED].
	RedactKeys []string `json:"redactKeys,omitempty" yaml:"redactKeys,omitempty"`
	// SampleInitial lines per level+message pass, then one every SampleThereafter.
	SampleInitial    int `json:"sampleInitial,omitempty" yaml:"sampleInitial,omitempty"`
	SampleThereafter int `json:"sampleThereafter,omitempty" yaml:"sampleThereafter,omitempty"`
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{ShowCaller: cfg.ShowCaller}
	case "json":
		formatter = &JSONFormatter{ShowCaller: cfg.ShowCaller}
	default:
		return nil, errors.Newf("log: unknown format %q", cfg.Format)
	}

	opts := []LoggerOption{WithLevel(level), WithFormatter(formatter)}
	for _, spec := range cfg.Outputs {
		switch {
		case spec == "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case spec == "null":
			opts = append(opts, WithOutput(NullOutput{}))
		case strings.HasPrefix(spec, "file:"):
			out, err := NewFileOutput(strings.TrimPrefix(spec, "file:"))
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithOutput(out))
		default:
			return nil, errors.Newf("log: unknown output %q", spec)
		}
	}

	l := NewLogger(opts...).(*BaseLogger)
	l.handler = l.handler.withRedactions(cfg.RedactKeys).withSampler(cfg.SampleInitial, cfg.SampleThereafter)
	l.rebuild()
	return l, nil
}

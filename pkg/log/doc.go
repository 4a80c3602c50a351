// Package log is the structured logging facade used across listdb.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that feeds our formatter and
// outputs pipeline, so slog-aware code and the facade produce identical lines.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("lists"), log.Str("list", "orders"))
//	l.Info("pruned", log.Int("removed", 42))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting and multiple outputs (console, file, null). Redaction and
// sampling are handler wrappers configured the same way.
//
// # Interop
//
// Libraries that write through the standard library logger (pebble among
// them) can be routed through a Logger with RedirectStdLog or ToStdLogger.
package log

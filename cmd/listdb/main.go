package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	listscmd "github.com/rzbill/listdb/internal/cmd/lists"
	logpkg "github.com/rzbill/listdb/pkg/log"
)

func main() {
	// Respect LISTDB_LOG_LEVEL until a command builds its configured logger.
	level := os.Getenv("LISTDB_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := listscmd.NewRoot().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

// Package serverrun exposes the Run entrypoint used by `listdb serve`: it
// opens the store and keeps the retention scheduler and metrics endpoint
// running until shutdown.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	cfg.MetricsAddr = ":9464"
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun

// Package config loads listdb configuration. Default() is the baseline;
// Load overlays a JSON or YAML file, FromEnv overlays LISTDB_* variables and
// Resolve runs the whole chain including .env files and validation.
//
// Example:
//
//	cfg, err := config.Resolve("/etc/listdb.yaml")
//	if err != nil {
//	    return err
//	}
//	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
package config

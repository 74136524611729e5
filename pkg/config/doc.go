// Package config layers run configuration from defaults, an optional .env
// file, a yaml config file, and PVCSHIP_* environment variables. Flags are
// applied on top by the command layer.
package config

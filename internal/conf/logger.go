// Package conf provides configuration management for birdnet-pipeline.
package conf

import "github.com/tphakala/birdnet-pipeline/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// The logger is fetched from the global logger each time so that it follows
// the centralized logger configured after settings are loaded.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}

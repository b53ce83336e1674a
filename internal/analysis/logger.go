package analysis

import (
	"sync"

	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the analysis package logger. Thread-safe initialization
// is guaranteed through sync.Once.
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("analysis")
	})
	return serviceLogger
}

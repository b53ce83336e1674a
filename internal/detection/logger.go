package detection

import (
	"sync"

	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the detection package logger.
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("detection")
	})
	return serviceLogger
}

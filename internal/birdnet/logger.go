package birdnet

import (
	"sync"

	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the logger for the birdnet module.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("birdnet")
	})
	return serviceLogger
}

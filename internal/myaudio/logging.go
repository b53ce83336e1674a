package myaudio

import (
	"sync"

	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the myaudio logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("audio")
	})
	return serviceLogger
}

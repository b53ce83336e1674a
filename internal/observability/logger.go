package observability

import "github.com/tphakala/birdnet-pipeline/internal/logger"

// getLogger returns the observability module logger from the current global
// logger, so the endpoint follows the configuration applied at startup.
func getLogger() logger.Logger {
	return logger.Global().Module("observability")
}

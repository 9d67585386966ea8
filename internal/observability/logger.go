package observability

import "github.com/tphakala/pulsebridge/internal/logger"

// GetLogger returns the logger for the metrics endpoint
func GetLogger() logger.Logger {
	return logger.Global().Module("metrics")
}

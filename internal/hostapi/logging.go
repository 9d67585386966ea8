package hostapi

import "github.com/tphakala/pulsebridge/internal/logger"

// GetLogger returns the hostapi logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("hostapi")
}

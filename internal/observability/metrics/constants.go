// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Label value constants used for metric labels.
const (
	// LabelSuccess is the status label for operations that succeeded.
	LabelSuccess = "success"
	// LabelError is the status label for operations that failed.
	LabelError = "error"
	// LabelInput is the direction label for capture.
	LabelInput = "input"
	// LabelOutput is the direction label for playback.
	LabelOutput = "output"
)

// Histogram bucket configuration constants.
const (
	// BucketStart10us is the starting bucket for callback histograms (10us to ~80ms range).
	BucketStart10us = 0.00001
	// BucketStart100us is the starting bucket for operation histograms (100us to ~3s range).
	BucketStart100us = 0.0001
	// BucketStart500us is the starting bucket for connect histograms (0.5ms to ~4s range).
	BucketStart500us = 0.0005

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount14 defines 14 exponential buckets.
	BucketCount14 = 14
	// BucketCount16 defines 16 exponential buckets.
	BucketCount16 = 16
)

// ShutdownTimeout is the timeout for graceful shutdown operations.
const ShutdownTimeout = 5 * time.Second

// Package metrics provides the Prometheus collectors of the voice changer.
package metrics

// Operation results used as label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusNoop    = "noop"
)

// Histogram bucket layout constants
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~4s range).
	BucketStart1ms = 0.001
	// BucketStart100us is the starting bucket for 0.1ms histograms.
	BucketStart100us = 0.0001
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12

	// BucketPitchLinearStart is the starting bucket for pitch factor histograms.
	BucketPitchLinearStart = 0.5
	// BucketPitchLinearWidth is the width of each pitch factor bucket.
	BucketPitchLinearWidth = 0.1
	// BucketPitchLinearCount covers pitch factors 0.5 to 2.0.
	BucketPitchLinearCount = 16
)

package transfer

import (
	"errors"
)

// TransferConfig holds all configuration for the upload engine.
// It is built once at startup and passed to the scheduler; the engine never
// reads the environment itself.
type TransferConfig struct {
	// Files at or above this size take the staged pathway.
	ThresholdBytes int64 `json:"threshold_bytes"`

	// Staged uploads are split into parts of this size (the last part may be smaller).
	PartSize int64 `json:"part_size"`

	// Number of workers executing units in parallel.
	MaxConcurrency int `json:"max_concurrency"`

	// Unit-level retry policy for transient failures.
	RetryPolicy *RetryPolicy `json:"retry_policy"`

	// Per-part retry policy for staged uploads.
	PartRetryPolicy *RetryPolicy `json:"part_retry_policy"`

	// Capacity of the progress event feed; events beyond it are dropped.
	EventBufferSize int `json:"event_buffer_size"`

	// Staging bucket for the staged pathway.
	Bucket string `json:"bucket"`

	// Walk dot-files and dot-directories instead of skipping them.
	IncludeHidden bool `json:"include_hidden"`
}

const (
	DefaultThreshold = 100 * 1024 * 1024 // 100 MiB
	DefaultPartSize  = 8 * 1024 * 1024   // 8 MiB
	MaxPartSize      = 5 * 1024 * 1024 * 1024
	MaxParts         = 10000
	DefaultWorkers   = 4
)

// DefaultTransferConfig returns a configuration with sensible defaults
func DefaultTransferConfig() *TransferConfig {
	return &TransferConfig{
		ThresholdBytes:  DefaultThreshold,
		PartSize:        DefaultPartSize,
		MaxConcurrency:  DefaultWorkers,
		RetryPolicy:     DefaultRetryPolicy(),
		PartRetryPolicy: DefaultRetryPolicy(),
		EventBufferSize: 256,
	}
}

// Validate checks if the configuration values are valid
func (tc *TransferConfig) Validate() error {
	if tc.ThresholdBytes <= 0 {
		return &ConfigurationError{Field: "threshold_bytes", Err: errors.New("must be positive")}
	}
	if tc.PartSize <= 0 {
		return &ConfigurationError{Field: "part_size", Err: errors.New("must be positive")}
	}
	if tc.PartSize > MaxPartSize {
		return &ConfigurationError{Field: "part_size", Err: errors.New("exceeds 5 GiB")}
	}
	if tc.MaxConcurrency <= 0 {
		return &ConfigurationError{Field: "max_concurrency", Err: errors.New("must be positive")}
	}
	if tc.RetryPolicy == nil {
		return &ConfigurationError{Field: "retry_policy", Err: errors.New("is required")}
	}
	if err := tc.RetryPolicy.Validate(); err != nil {
		return &ConfigurationError{Field: "retry_policy", Err: err}
	}
	if tc.PartRetryPolicy == nil {
		return &ConfigurationError{Field: "part_retry_policy", Err: errors.New("is required")}
	}
	if err := tc.PartRetryPolicy.Validate(); err != nil {
		return &ConfigurationError{Field: "part_retry_policy", Err: err}
	}
	if tc.EventBufferSize < 0 {
		return &ConfigurationError{Field: "event_buffer_size", Err: errors.New("cannot be negative")}
	}
	return nil
}

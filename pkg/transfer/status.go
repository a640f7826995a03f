package transfer

import (
	"context"
	"errors"
	"time"
)

// UnitState represents the current state of a transfer unit
type UnitState int

const (
	// StatePending indicates the unit is queued but not yet started
	StatePending UnitState = iota
	// StateInProgress indicates an attempt is running
	StateInProgress
	// StateRetrying indicates the unit is waiting out a backoff before its next attempt
	StateRetrying
	// StateSucceeded indicates the payload was placed or handed off
	StateSucceeded
	// StateFailed indicates the unit gave up
	StateFailed
	// StateCancelled indicates the operator cancelled the unit
	StateCancelled
)

// String returns a human-readable string representation of the unit state
func (s UnitState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in progress"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the state is final (succeeded, failed, or cancelled)
func (s UnitState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// CanTransitionTo checks if a state transition is valid.
// A unit never reaches Succeeded or Failed without passing through InProgress.
func (s UnitState) CanTransitionTo(next UnitState) bool {
	if s.IsTerminal() {
		return false
	}

	switch s {
	case StatePending:
		return next == StateInProgress || next == StateCancelled
	case StateInProgress:
		return next == StateRetrying || next == StateSucceeded ||
			next == StateFailed || next == StateCancelled
	case StateRetrying:
		return next == StateInProgress || next == StateFailed || next == StateCancelled
	default:
		return false
	}
}

// RetryPolicy defines the bounded exponential backoff for transient failures
type RetryPolicy struct {
	MaxAttempts   int           `json:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	MaxDelay      time.Duration `json:"max_delay"`
}

// DefaultRetryPolicy returns a sensible default retry policy
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      30 * time.Second,
	}
}

// Validate checks the policy bounds.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return errors.New("max_attempts must be at least 1")
	}
	if rp.InitialDelay < 0 {
		return errors.New("initial_delay cannot be negative")
	}
	if rp.BackoffFactor < 1 {
		return errors.New("backoff_factor must be at least 1")
	}
	if rp.MaxDelay < rp.InitialDelay {
		return errors.New("max_delay cannot be less than initial_delay")
	}
	return nil
}

// GetRetryDelay calculates the delay before the next retry attempt
func (rp *RetryPolicy) GetRetryDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return rp.InitialDelay
	}

	delay := rp.InitialDelay
	for i := 0; i < retryCount; i++ {
		delay = time.Duration(float64(delay) * rp.BackoffFactor)
		if delay > rp.MaxDelay {
			return rp.MaxDelay
		}
	}
	return delay
}

// ShouldRetry reports whether a failure of the given kind on attempt number
// `attempt` (1-based) earns another attempt.
func (rp *RetryPolicy) ShouldRetry(kind ErrorKind, attempt int) bool {
	return kind == KindTransient && attempt < rp.MaxAttempts
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Error types for unit state management
var (
	// ErrInvalidStateTransition is returned when an invalid state transition is attempted
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrCancelled marks operator-initiated cancellation.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrPartRetriesExhausted fails a staged unit outright; the unit is not retried.
	ErrPartRetriesExhausted = errors.New("part retry budget exhausted")

	// ErrFolderCreation is wrapped by every unit error caused by a failed remote folder.
	ErrFolderCreation = errors.New("remote folder creation failed")

	// ErrNoStager is returned when a staged unit runs without a staging store.
	ErrNoStager = errors.New("no staging store configured")
)

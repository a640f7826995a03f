package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// ErrorKind represents how a transfer failure is handled
type ErrorKind int

const (
	// KindTransient failures are retried with backoff until the budget runs out
	KindTransient ErrorKind = iota
	// KindRejected failures are terminal and never retried
	KindRejected
	// KindCancelled failures come from operator cancellation
	KindCancelled
)

// String returns a string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TransferError is a classified unit failure. Op names the step that failed.
type TransferError struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func newTransferError(kind ErrorKind, op, path string, err error) *TransferError {
	return &TransferError{Kind: kind, Op: op, Path: path, Err: err}
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool { return err != nil && CategorizeError(err) == KindTransient }

// IsRejected reports whether err is a terminal rejection.
func IsRejected(err error) bool { return err != nil && CategorizeError(err) == KindRejected }

// IsCancelled reports whether err stems from cancellation.
func IsCancelled(err error) bool { return err != nil && CategorizeError(err) == KindCancelled }

// ConfigurationError is fatal and raised before any work starts.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ClassificationError is returned when a selected path has no usable size.
type ClassificationError struct {
	Path string
	Err  error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("cannot classify %s: %v", e.Path, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// PartialJobFailure summarises a job in which at least one unit did not succeed.
type PartialJobFailure struct {
	JobID     string
	Succeeded int
	Failed    int
	Cancelled int
}

func (e *PartialJobFailure) Error() string {
	return fmt.Sprintf("job %s: %d succeeded, %d failed, %d cancelled",
		e.JobID, e.Succeeded, e.Failed, e.Cancelled)
}

// statusCoder is implemented by adapter errors that carry an HTTP status.
// A zero status means no response was received.
type statusCoder interface {
	HTTPStatus() int
}

// CategorizeError determines the kind of an error.
// Unknown errors are treated as transient; the retry budget still bounds them.
func CategorizeError(err error) ErrorKind {
	if err == nil {
		return KindTransient
	}

	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}

	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrPartRetriesExhausted), errors.Is(err, ErrFolderCreation), errors.Is(err, ErrNoStager):
		return KindRejected
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return KindRejected
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() != 0 {
		return kindForStatus(sc.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	errMsg := strings.ToLower(err.Error())
	for _, pattern := range rejectedPatterns {
		if strings.Contains(errMsg, pattern) {
			return KindRejected
		}
	}

	return KindTransient
}

var rejectedPatterns = []string{
	"access denied",
	"forbidden",
	"unauthorized",
	"already exists",
	"quota",
	"no such bucket",
	"invalid checksum",
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return KindTransient
	case code >= 500:
		return KindTransient
	case code >= 400:
		return KindRejected
	default:
		return KindTransient
	}
}

// classify wraps err as a TransferError unless it already is one.
func classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransferError
	if errors.As(err, &te) {
		return err
	}
	return newTransferError(CategorizeError(err), op, path, err)
}

// logUnitError logs a unit failure with the action taken.
func logUnitError(u *TransferUnit, err error, action string, attempt int) {
	fields := []any{
		"file", u.SourcePath,
		"unit", u.ID,
		"pathway", u.Pathway.String(),
		"attempt", attempt,
		"kind", CategorizeError(err).String(),
		"action", action,
		"error", err,
	}

	switch action {
	case "retry":
		slog.Warn("Transfer attempt failed, retrying", fields...)
	case "cancel":
		slog.Info("Transfer cancelled", fields...)
	default:
		slog.Error("Transfer failed", fields...)
	}
}

// Package errs defines the error-kind taxonomy shared by every component of
// the memory core. Kinds are sentinel errors checked with errors.Is; callers
// wrap them with fmt.Errorf("%s: %w", detail, errs.ErrStore) or via the
// constructor helpers below.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks missing or invalid configuration: bad DSN, dimension
	// mismatch, weight/ranking count mismatch. Never retried.
	ErrConfig = errors.New("config error")

	// ErrStore marks a database I/O or serialization failure. The stores
	// return it without retrying; IsTransient reports whether it is worth
	// retrying.
	ErrStore = errors.New("store error")

	// ErrEmbedding marks an embedding-provider failure: non-2xx response,
	// length/dimension mismatch, network error after retries exhausted.
	ErrEmbedding = errors.New("embedding error")

	// ErrNotFound marks the absence of a requested record; returned as a
	// sentinel rather than surfaced as an exceptional condition.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks caller input that fails a documented invariant:
	// empty text, empty source/action, unsupported format.
	ErrValidation = errors.New("validation error")

	// ErrCancelled marks a caller-initiated deadline or cancellation.
	ErrCancelled = errors.New("cancelled")

	// ErrFatal marks an invariant violation requiring operator attention,
	// e.g. a stored vector whose length does not equal the configured
	// dimension.
	ErrFatal = errors.New("fatal invariant violation")
)

// Config wraps detail with ErrConfig.
func Config(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConfig)
}

// Store wraps detail with ErrStore.
func Store(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrStore)
}

// Embedding wraps detail with ErrEmbedding.
func Embedding(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrEmbedding)
}

// NotFound wraps detail with ErrNotFound.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Validation wraps detail with ErrValidation.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// Cancelled wraps detail with ErrCancelled.
func Cancelled(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrCancelled)
}

// Fatal wraps detail with ErrFatal.
func Fatal(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrFatal)
}

// IsTransient reports whether err looks like a transient error worth
// retrying: any ErrStore or ErrEmbedding that does not also carry
// ErrValidation, ErrFatal or ErrConfig.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrFatal) || errors.Is(err, ErrConfig) {
		return false
	}
	return errors.Is(err, ErrStore) || errors.Is(err, ErrEmbedding)
}

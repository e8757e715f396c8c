package firmstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	// Data errors
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrInvalidData   = errors.New("invalid document data")

	// Shard errors
	ErrShardUnavailable = errors.New("shard unavailable")
	ErrNoShards         = errors.New("shard set is empty")
	ErrUnauthorized     = errors.New("unauthorized access")

	// Index errors
	ErrIndexUnavailable = errors.New("field index unavailable")

	// Coordination errors
	ErrLockHeld = errors.New("lock held by another process")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorWithContext adds additional context to errors for better debugging and logging
type ErrorWithContext struct {
	Err     error
	Context map[string]interface{}
}

func (e *ErrorWithContext) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (context: %+v)", e.Err, e.Context)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WithContext adds context to an error
func WithContext(err error, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Err:     err,
		Context: context,
	}
}

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsShardUnavailable checks if an error came from an unreachable shard
func IsShardUnavailable(err error) bool {
	return errors.Is(err, ErrShardUnavailable)
}

// IsPermanent checks if an error is permanent (not retryable)
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrInvalidConfig)
}

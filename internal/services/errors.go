package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"reward-ledger/internal/repository"
)

var (
	ErrSystemPaused     = errors.New("reward distribution is paused")
	ErrDailyCapExceeded = errors.New("daily cap exceeded")
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrConcurrencyConflict is retryable with the same idempotency key
	ErrConcurrencyConflict = repository.ErrConflict
	ErrConfigUnavailable   = errors.New("reward configuration unavailable")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrLockNotFound        = errors.New("lock not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrWalletInUse         = errors.New("wallet address already registered")
	ErrInvalidAddress      = errors.New("invalid destination address")
	// ErrPreviouslyFailed is returned with the FAILED entry when a key whose first attempt failed is replayed
	ErrPreviouslyFailed = errors.New("idempotency key previously failed")
)

// ValidationError reports malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AntiAbuseError reports a request rejected by a per-user cap
type AntiAbuseError struct {
	UserID    string
	EventType string
	Count     int64
	Cap       int
}

func (e *AntiAbuseError) Error() string {
	return fmt.Sprintf("user %s reached the daily cap of %d for %s", e.UserID, e.Cap, e.EventType)
}

func (e *AntiAbuseError) Unwrap() error {
	return ErrDailyCapExceeded
}

// ConfigurationError reports a missing tier or event mapping
type ConfigurationError struct {
	Tier      int64
	EventType string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no reward amount configured for %s in tier %d", e.EventType, e.Tier)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrUnknownEventType
}

// TransferError reports a failed settlement attempt
type TransferError struct {
	TransferID uuid.UUID
	Attempt    int
	Err        error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s attempt %d: %v", e.TransferID, e.Attempt, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// isRetryable reports whether a failed grant may be retried with the same key
func isRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrConfigUnavailable)
}

package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the use cases wraps exactly one of them.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrTimeout         = errors.New("time limit exceeded")
	ErrUnauthenticated = errors.New("unauthenticated")
)

var (
	// ErrQuizNotFound indicates the quiz does not exist or is not visible to the caller.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrQuestionNotFound indicates a referenced question does not exist.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrAttemptNotFound indicates the attempt does not exist.
	ErrAttemptNotFound = fmt.Errorf("attempt %w", ErrNotFound)
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = fmt.Errorf("submission %w", ErrNotFound)
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrNotOwner is returned when a caller touches another user's attempt.
	ErrNotOwner = fmt.Errorf("attempt belongs to another user: %w", ErrForbidden)
	// ErrAdminRequired is returned by admin-only operations.
	ErrAdminRequired = fmt.Errorf("admin access required: %w", ErrForbidden)

	// ErrUserExists is returned when the username or email is taken.
	ErrUserExists = fmt.Errorf("username or email already exists: %w", ErrConflict)
	// ErrDuplicateAttempt is returned by stores when the (user, quiz) unique index rejects an insert.
	ErrDuplicateAttempt = fmt.Errorf("duplicate attempt: %w", ErrConflict)

	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrUnauthenticated)
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AttemptConflictError carries the existing attempt so callers can recover,
// e.g. resume or display the result of the attempt that already exists.
type AttemptConflictError struct {
	AttemptID int64
	Status    AttemptStatus
	Reason    string
}

func (e *AttemptConflictError) Error() string {
	return fmt.Sprintf("%s: attempt=%d status=%s", e.Reason, e.AttemptID, e.Status)
}

func (e *AttemptConflictError) Unwrap() error { return ErrConflict }

// AttemptExpiredError is returned when answers arrive after the time limit.
// The attempt has already been moved to time_expired when this is returned.
type AttemptExpiredError struct {
	AttemptID int64
}

func (e *AttemptExpiredError) Error() string {
	return fmt.Sprintf("attempt %d exceeded its time limit", e.AttemptID)
}

func (e *AttemptExpiredError) Unwrap() error { return ErrTimeout }

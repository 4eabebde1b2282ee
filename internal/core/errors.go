package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidPeriod         = errors.New("invalid period")
	ErrDuplicateCategory     = errors.New("category already exists")
	ErrCategoryOwnership     = errors.New("category does not belong to user")
	ErrDuplicateUser         = errors.New("username already taken")
	ErrInvalidCredentials    = errors.New("invalid username or password")
	ErrAuthorizationRequired = errors.New("cloud storage authorization required")
)

// ValidationError is bad form or query input. It is shown inline and the
// request otherwise continues.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError means the resource does not exist or is not owned by the requester.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// NoRecipientError is returned before sending when the user has no email address.
type NoRecipientError struct {
	UserID int64
}

func (e *NoRecipientError) Error() string {
	return fmt.Sprintf("user %d has no email address configured", e.UserID)
}

// DeliveryError wraps a failed send attempt.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("email delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// StateMismatchError aborts an OAuth callback whose state token does not
// match the one issued to the session.
type StateMismatchError struct{}

func (e *StateMismatchError) Error() string {
	return "oauth state mismatch"
}

// UploadError wraps a provider-side or network failure during upload.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a document, attribute, classification or
	// index key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDocumentNotFound is returned when the referenced document id is unknown.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrExists is returned when creating an entity whose key or name is taken.
	ErrExists = errors.New("already exists")
	// ErrFolderNotEmpty is returned when deleting a folder entry that still
	// has children.
	ErrFolderNotEmpty = errors.New("Folder not empty")
	// ErrClassificationInUse is returned when deleting a classification that
	// documents still reference.
	ErrClassificationInUse = errors.New("classification in use")
	// ErrAttributeInUse is returned when deleting an attribute referenced by
	// a schema, classification or index entry.
	ErrAttributeInUse = errors.New("attribute in use")
	// ErrTooManyDocumentIDs is returned when a query supplies more document
	// ids than the cap allows.
	ErrTooManyDocumentIDs = errors.New("Maximum number of DocumentIds is 100")
	// ErrBadToken is returned when a pagination token is malformed or was
	// issued for a different query.
	ErrBadToken = errors.New("invalid pagination token")
	// ErrCanceled is returned when the operation is canceled by the caller.
	ErrCanceled = errors.New("operation canceled")
)

// ValidationFailure is a single field-level violation.
type ValidationFailure struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// ValidationError is a structured, multi-item validation failure. Every
// violation found during a request is collected; callers never see a
// truncated list.
type ValidationError []ValidationFailure

// Append adds a violation and returns the extended error.
func (v ValidationError) Append(key, message string) ValidationError {
	return append(v, ValidationFailure{Key: key, Message: message})
}

// Merge appends all violations from other.
func (v ValidationError) Merge(other ValidationError) ValidationError {
	return append(v, other...)
}

// Empty reports whether no violations were collected.
func (v ValidationError) Empty() bool { return len(v) == 0 }

// OrNil returns the error as an error value, or nil when empty.
func (v ValidationError) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationError) Error() string {
	msgs := make([]string, len(v))
	for i, f := range v {
		msgs[i] = f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Validation builds a single-item ValidationError.
func Validation(key, format string, args ...any) ValidationError {
	return ValidationError{{Key: key, Message: fmt.Sprintf(format, args...)}}
}

// AsValidation unwraps err to a ValidationError if it is one.
func AsValidation(err error) (ValidationError, bool) {
	var verr ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// WrapError converts context cancellation into ErrCanceled and passes
// everything else through.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCanceled
	}
	return err
}

// Package apperrors defines the sentinel errors shared across services and
// workers. Callers classify failures with errors.Is and wrap context with
// fmt.Errorf("%w: ...").
package apperrors

import "errors"

var (
	// ErrValidation is returned for malformed or rejected input
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a document already has an order in flight
	ErrConflict = errors.New("conflicting resource")

	// ErrInvalidState is returned when an operation is not legal in the
	// entity's current lifecycle state
	ErrInvalidState = errors.New("invalid state")

	// ErrInsufficientCredits is returned when a debit would drive a
	// user's balance negative
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrNotFound is returned when the requested entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat is returned for file extensions the extractor
	// cannot handle
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtraction is returned when text extraction fails on a supported format
	ErrExtraction = errors.New("text extraction failed")

	// ErrSubmission is returned when the rewrite provider rejects a submission
	ErrSubmission = errors.New("rewrite submission failed")

	// ErrRemoteProcessing is returned when the rewrite provider reports
	// a failed task
	ErrRemoteProcessing = errors.New("remote processing failed")

	// ErrTimeout is returned when the poll budget is exhausted before the
	// provider reaches a terminal status
	ErrTimeout = errors.New("processing timed out")
)

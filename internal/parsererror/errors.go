// Package parsererror defines the error taxonomy of the pipeline.
// The posture throughout is local recovery: fragment-level errors reject one
// fragment, statement-level errors abort one statement, and nothing short of
// a programming error propagates across sibling items.
package parsererror

import (
	"errors"
	"fmt"
)

// UnrecognizedFormatError is statement-level: the detector could not place
// the first page in the closed issuer set. The statement is aborted, the
// batch is not.
type UnrecognizedFormatError struct {
	Source  string
	Snippet string
}

func (e *UnrecognizedFormatError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("unrecognized statement format for %s (first page starts %q)", e.Source, e.Snippet)
	}
	return fmt.Sprintf("unrecognized statement format for %s", e.Source)
}

// InvalidDateError is fragment-level: the raw date could not be parsed after
// cleaning. Only the offending fragment is rejected.
type InvalidDateError struct {
	Raw string
	Err error
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid transaction date %q: %v", e.Raw, e.Err)
}

func (e *InvalidDateError) Unwrap() error {
	return e.Err
}

// InvalidAmountError is fragment-level: the raw amount failed to parse, or
// parsed to exactly zero (a misparsed subtotal line, not a transaction).
type InvalidAmountError struct {
	Raw    string
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid transaction amount %q: %s", e.Raw, e.Reason)
}

// ExternalServiceError wraps a failure of persistence, the vector index, or
// the feedback channel after the retry layer has exhausted its attempts.
// It is surfaced per item and never aborts sibling transactions.
type ExternalServiceError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable after %d attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsRejection reports whether err is a fragment-level rejection, i.e. a
// reason to drop one fragment while continuing the document.
func IsRejection(err error) bool {
	var dateErr *InvalidDateError
	var amountErr *InvalidAmountError
	return errors.As(err, &dateErr) || errors.As(err, &amountErr)
}

package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCredentialsMissing = errors.New("credentials missing")
	ErrUnsupportedMedia   = errors.New("unsupported media type")
	ErrObjectNotFound     = errors.New("object not found")
	ErrJobTimeout         = errors.New("ocr job timed out")
	ErrResultsNotFound    = errors.New("ocr results not found")
	ErrPageFailed         = errors.New("ocr failed for a page")
	ErrNoTextRecognized   = errors.New("no text recognized in document")
	ErrSessionBusy        = errors.New("session has an operation in flight")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidTransition  = errors.New("invalid workflow transition")
	ErrEmptyDraft         = errors.New("draft is empty")
	ErrUnknownDirective   = errors.New("unknown correction directive")
)

// TimeoutError is returned when an OCR job does not complete within its ceiling.
type TimeoutError struct {
	JobID   string
	Elapsed time.Duration
	Ceiling time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ocr job %s timed out after %s (ceiling %s)", e.JobID, e.Elapsed.Round(time.Millisecond), e.Ceiling)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrJobTimeout }

// JobFailedError carries the remote cause of a failed OCR job.
type JobFailedError struct {
	JobID string
	Err   error
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("ocr job %s failed: %v", e.JobID, e.Err)
}

func (e *JobFailedError) Unwrap() error { return e.Err }

// ErrorKind classifies correction failures.
type ErrorKind string

const (
	KindCredentialsMissing ErrorKind = "credentials_missing"
	KindClientInitFailed   ErrorKind = "client_init_failed"
	KindNetwork            ErrorKind = "network_error"
	KindRemote             ErrorKind = "remote_error"
	KindParse              ErrorKind = "parse_error"
	KindEmptyResponse      ErrorKind = "empty_response"
)

// CorrectionError is the typed failure returned by the correction client.
// Snippet holds a truncated copy of the raw response for parse failures.
type CorrectionError struct {
	Kind      ErrorKind
	Transient bool
	Message   string
	Snippet   string
	Err       error
}

func (e *CorrectionError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (response: %q)", e.Snippet)
	}
	return msg
}

func (e *CorrectionError) Unwrap() error { return e.Err }

func (e *CorrectionError) Is(target error) bool {
	return e.Kind == KindCredentialsMissing && target == ErrCredentialsMissing
}

// Retryable reports whether repeating the same request may succeed.
func (e *CorrectionError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindEmptyResponse:
		return true
	case KindRemote:
		return e.Transient
	}
	return false
}

// NewCorrectionError builds a CorrectionError of the given kind.
func NewCorrectionError(kind ErrorKind, message string, err error) *CorrectionError {
	return &CorrectionError{Kind: kind, Message: message, Err: err}
}

// CorrectionErrorKind extracts the kind from err, if it is a CorrectionError.
func CorrectionErrorKind(err error) (ErrorKind, bool) {
	var ce *CorrectionError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

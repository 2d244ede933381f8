package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrPermanent     = errors.New("permanent request failure")
	ErrQuota         = errors.New("insufficient credits")
	ErrContinuity    = errors.New("continuity extraction failed")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Error kinds reported by ErrorKind and persisted alongside failed jobs.
const (
	KindValidation = "validation"
	KindTransient  = "transient_network"
	KindPermanent  = "permanent_request"
	KindQuota      = "quota_or_credit"
	KindContinuity = "continuity_extraction"
	KindCanceled   = "canceled"
	KindUnknown    = "unknown"
)

// ErrorClassifier is implemented by every pipeline error type.
type ErrorClassifier interface {
	ErrorKind() string
}

// ValidationError reports an input the pipeline refuses to process.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error        { return e.Err }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
func (e *ValidationError) ErrorKind() string    { return KindValidation }

// TransientNetworkError is a failure that may succeed on a later attempt:
// transport errors, timeouts, throttling, and 5xx responses.
type TransientNetworkError struct {
	Op         string
	StatusCode int
	RetryAfter int // seconds, 0 when the server gave no hint
	Err        error
}

func (e *TransientNetworkError) Error() string {
	msg := "transient failure"
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }
func (e *TransientNetworkError) Is(target error) bool {
	return target == ErrTransient
}
func (e *TransientNetworkError) ErrorKind() string { return KindTransient }

// PermanentRequestError is a rejection that retrying cannot fix (4xx, malformed payload,
// or a job the service reports as failed for a request-level reason).
type PermanentRequestError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *PermanentRequestError) Error() string {
	msg := "request rejected"
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *PermanentRequestError) Is(target error) bool { return target == ErrPermanent }
func (e *PermanentRequestError) ErrorKind() string    { return KindPermanent }

// QuotaOrCreditError reports that the account cannot pay for a request.
type QuotaOrCreditError struct {
	Required  float64
	Available float64
	Detail    string
}

func (e *QuotaOrCreditError) Error() string {
	if e.Detail != "" {
		return "insufficient credits: " + e.Detail
	}
	return fmt.Sprintf("insufficient credits: required %.2f, available %.2f", e.Required, e.Available)
}

func (e *QuotaOrCreditError) Is(target error) bool { return target == ErrQuota }
func (e *QuotaOrCreditError) ErrorKind() string    { return KindQuota }

// ContinuityExtractionError reports that a terminal frame could not be produced.
// It is always recovered locally.
type ContinuityExtractionError struct {
	SegmentIndex int
	Path         string
	Err          error
}

func (e *ContinuityExtractionError) Error() string {
	msg := fmt.Sprintf("continuity extraction failed for segment %d", e.SegmentIndex)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ContinuityExtractionError) Unwrap() error        { return e.Err }
func (e *ContinuityExtractionError) Is(target error) bool { return target == ErrContinuity }
func (e *ContinuityExtractionError) ErrorKind() string    { return KindContinuity }

// Retryable reports whether err should be retried by the orchestrator.
// Only transient network failures qualify; cancellation never does.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var transient *TransientNetworkError
	if errors.As(err, &transient) {
		return true
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

// Kind maps err onto one of the Kind* constants.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return KindValidation
	case errors.Is(err, ErrQuota):
		return KindQuota
	case errors.Is(err, ErrPermanent):
		return KindPermanent
	case errors.Is(err, ErrContinuity):
		return KindContinuity
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout):
		return KindTransient
	default:
		return KindUnknown
	}
}

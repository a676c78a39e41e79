// Package domain holds the types shared by every PROC component: the
// error taxonomy, retry policies, fan-out jobs, budget allocations and
// the provider adapter value objects.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed tagged set every failure in the system is
// classified into. It is never extended at runtime.
type ErrorKind string

const (
	KindRateLimited        ErrorKind = "RATE_LIMITED"
	KindTimeout            ErrorKind = "TIMEOUT"
	KindNetwork            ErrorKind = "NETWORK"
	KindServiceUnavailable ErrorKind = "SERVICE_UNAVAILABLE"
	KindAuth               ErrorKind = "AUTH"
	KindInvalidInput       ErrorKind = "INVALID_INPUT"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindQuotaExceeded      ErrorKind = "QUOTA_EXCEEDED"
	KindParse              ErrorKind = "PARSE"
	KindInternal           ErrorKind = "INTERNAL"
	KindUnknown            ErrorKind = "UNKNOWN"
)

// defaultRetryable is the fallback retryability used whenever a
// ClassifiedError is constructed without an explicit override. Per
// spec.md §3: RateLimited, Timeout, Network, ServiceUnavailable and
// Internal are retryable by default; everything else is not.
func defaultRetryable(kind ErrorKind) bool {
	switch kind {
	case KindRateLimited, KindTimeout, KindNetwork, KindServiceUnavailable, KindInternal:
		return true
	default:
		return false
	}
}

// ClassifiedError is the uniform error value produced by the Error
// Classifier (C1) and consumed by the Retry Engine (C2). It never
// encodes failure by its own absence — a nil *ClassifiedError means
// success, a non-nil one always carries a Kind.
type ClassifiedError struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int // 0 if not HTTP-derived
	Cause      string
	Retryable  bool
}

func (e *ClassifiedError) Error() string {
	if e == nil {
		return ""
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s (http %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewClassifiedError builds a ClassifiedError defaulting Retryable from
// Kind. Call sites that need provider-specific overrides should set
// Retryable after construction.
func NewClassifiedError(kind ErrorKind, message string, httpStatus int, cause error) *ClassifiedError {
	ce := &ClassifiedError{
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  defaultRetryable(kind),
	}
	if cause != nil {
		ce.Cause = cause.Error()
	}
	return ce
}

// AsClassifiedError unwraps err looking for an already-classified
// error, mirroring the teacher's errors.As(err, &domainErr) idiom.
func AsClassifiedError(err error) (*ClassifiedError, bool) {
	if err == nil {
		return nil, false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Sentinel errors of the non-provider layers. Registry.Execute returns
// ErrUnknownTool (wrapped) for an unknown tool name. Capability gating
// and schema-validation failures are reported by the dispatcher as
// in-band error ToolResults; ErrMissingCapability and
// ErrSchemaValidation are not returned by it.
var (
	ErrUnknownTool       = errors.New("unknown tool")
	ErrMissingCapability = errors.New("missing capability")
	ErrSchemaValidation  = errors.New("schema validation failed")
)

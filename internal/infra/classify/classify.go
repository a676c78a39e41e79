// Package classify implements the Error Classifier (C1): a
// referentially transparent, total function from "anything a failed
// call produced" to a single domain.ClassifiedError. It never panics.
package classify

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
)

const maxMessageLen = 500

// HTTPStatus classifies err using the provided HTTP status code. When
// status is 0, status is not consulted (classification falls through
// to the message-heuristic and socket-error steps of Classify).
func HTTPStatus(status int, err error) *domain.ClassifiedError {
	return Classify(err, status)
}

// Classify applies the prioritized match of §4.1 to err (and, when
// non-zero, an HTTP status already extracted by the caller). A nil err
// with no status classifies as Unknown/non-retryable rather than
// panicking or returning nil, since C1 must be total.
func Classify(err error, httpStatus int) *domain.ClassifiedError {
	if err == nil && httpStatus == 0 {
		return domain.NewClassifiedError(domain.KindUnknown, "no error information", 0, nil)
	}

	if isCancellation(err) {
		return domain.NewClassifiedError(domain.KindTimeout, "operation canceled", 0, err)
	}

	if code, ok := socketErrorCode(err); ok {
		return domain.NewClassifiedError(domain.KindNetwork, code, 0, err)
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if isTimeoutMessage(err, msg) {
		return domain.NewClassifiedError(domain.KindTimeout, truncate(msg), 0, err)
	}

	if httpStatus != 0 {
		return classifyHTTPStatus(httpStatus, msg, err)
	}

	if kind, ok := classifyMessageHeuristic(msg); ok {
		return domain.NewClassifiedError(kind, truncate(msg), 0, err)
	}

	return domain.NewClassifiedError(domain.KindUnknown, truncate(msg), 0, err)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// socketErrorCode maps a subset of OS-level socket errors to the
// Network kind per §4.1 step 3. The returned string is used as the
// classified message.
func socketErrorCode(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return "ECONNREFUSED", true
		}
		if errors.Is(opErr.Err, syscall.ECONNRESET) {
			return "ECONNRESET", true
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return "ENOTFOUND", true
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "ECONNREFUSED", true
	case strings.Contains(msg, "no such host"):
		return "ENOTFOUND", true
	case strings.Contains(msg, "connection reset"):
		return "ECONNRESET", true
	}
	return "", false
}

func isTimeoutMessage(err error, msg string) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") ||
		strings.Contains(msg, "ECONNABORTED") || strings.Contains(msg, "ETIMEDOUT")
}

// classifyHTTPStatus implements the dispatch table of §4.1 step 5.
func classifyHTTPStatus(status int, msg string, err error) *domain.ClassifiedError {
	kind := domain.KindUnknown
	switch status {
	case 400:
		kind = domain.KindInvalidInput
	case 401:
		kind = domain.KindAuth
	case 403:
		kind = domain.KindQuotaExceeded
	case 404:
		kind = domain.KindNotFound
	case 408:
		kind = domain.KindTimeout
	case 429:
		kind = domain.KindRateLimited
	case 500:
		kind = domain.KindInternal
	case 502, 503:
		kind = domain.KindServiceUnavailable
	case 504:
		kind = domain.KindTimeout
	case 510:
		kind = domain.KindServiceUnavailable
	default:
		if status >= 500 {
			kind = domain.KindServiceUnavailable
		}
	}
	return domain.NewClassifiedError(kind, truncate(msg), status, err)
}

// classifyMessageHeuristic implements §4.1 step 6.
func classifyMessageHeuristic(msg string) (domain.ErrorKind, bool) {
	if msg == "" {
		return "", false
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "api_key") || strings.Contains(lower, "api key") || strings.Contains(lower, "invalid api") {
		return domain.KindAuth, true
	}
	if strings.Contains(msg, "JSON") || strings.Contains(lower, "parse") || strings.Contains(msg, "Unexpected token") {
		return domain.KindParse, true
	}
	return "", false
}

func truncate(msg string) string {
	if len(msg) <= maxMessageLen {
		return msg
	}
	return msg[:maxMessageLen] + "…"
}

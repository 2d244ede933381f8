package generation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scriptreel/internal/services"
)

// classifyStatus maps a non-2xx response onto the error taxonomy:
// 408, 429, and 5xx are transient; 402 is a credit problem; every other status is a
// permanent rejection carrying the service's own detail.
func classifyStatus(op string, status int, retryAfter string, body []byte) error {
	detail := errorDetail(body)
	switch {
	case status == http.StatusPaymentRequired:
		return &services.QuotaOrCreditError{Detail: detailOr(detail, "generation service reported insufficient credits")}
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return &services.TransientNetworkError{
			Op:         op,
			StatusCode: status,
			RetryAfter: parseRetryAfter(retryAfter),
			Err:        statusError(detail),
		}
	default:
		return &services.PermanentRequestError{Op: op, StatusCode: status, Detail: detail}
	}
}

// statusError returns nil for an empty detail so the wrapped error stays terse.
func statusError(detail string) error {
	if detail == "" {
		return nil
	}
	return errors.New(detail)
}

// errorDetail extracts {"error": "..."} or {"error": {"message": "..."}} and falls
// back to the trimmed body.
func errorDetail(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if len(payload.Error) > 0 {
			var text string
			if json.Unmarshal(payload.Error, &text) == nil && strings.TrimSpace(text) != "" {
				return strings.TrimSpace(text)
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(payload.Error, &nested) == nil && strings.TrimSpace(nested.Message) != "" {
				return strings.TrimSpace(nested.Message)
			}
		}
		if strings.TrimSpace(payload.Message) != "" {
			return strings.TrimSpace(payload.Message)
		}
	}
	return strings.Join(strings.Fields(string(body)), " ")
}

func detailOr(detail, fallback string) string {
	if detail == "" {
		return fallback
	}
	return detail
}

// parseRetryAfter returns whole seconds from either Retry-After form, 0 when absent.
func parseRetryAfter(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return seconds
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay <= 0 {
			return 0
		}
		return int((delay + time.Second - 1) / time.Second)
	}
	return 0
}

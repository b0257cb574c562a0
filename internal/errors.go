package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ErrorCode classifies an error per §7 so queue consumers and HTTP handlers
// know how to react without parsing messages.
type ErrorCode string

const (
	CodeValidation      ErrorCode = "VALIDATION_ERROR"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeTransient       ErrorCode = "TRANSIENT_NETWORK_ERROR"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeQuotaExhausted  ErrorCode = "QUOTA_EXHAUSTED"
	CodeAuth            ErrorCode = "AUTH_ERROR"
	CodeConflict        ErrorCode = "CONFLICT"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// AppError is the one error type that crosses component boundaries in this
// repository. Provider errors are classified into one of these before they
// leave the provider package; nothing upstream inspects raw transport
// errors.
type AppError struct {
	Code          ErrorCode `json:"code"`
	Message       string    `json:"message"`
	Details       string    `json:"details,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	RetryAfter    time.Duration `json:"retry_after,omitempty"`
	StatusCode    int       `json:"-"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

func newErr(code ErrorCode, message, details string) *AppError {
	return &AppError{
		Code:          code,
		Message:       message,
		Details:       details,
		CorrelationID: uuid.NewString(),
		StatusCode:    statusForCode(code),
	}
}

func ValidationError(message, details string) *AppError { return newErr(CodeValidation, message, details) }
func NotFoundError(resource string) *AppError            { return newErr(CodeNotFound, resource+" not found", "") }
func TransientError(message, details string) *AppError   { return newErr(CodeTransient, message, details) }
func TimeoutError(message string) *AppError              { return newErr(CodeTimeout, message, "") }
func ConflictError(message, details string) *AppError    { return newErr(CodeConflict, message, details) }
func InternalError(message, details string) *AppError    { return newErr(CodeInternal, message, details) }
func AuthError(message string) *AppError                 { return newErr(CodeAuth, message, "") }

// QuotaExhaustedError marks a provider unavailable for the remainder of the
// UTC day; the orchestrator treats this the same as an unavailable provider.
func QuotaExhaustedError(provider string) *AppError {
	return newErr(CodeQuotaExhausted, "provider quota exhausted", provider)
}

// RateLimitedError carries the upstream or internal retry-after hint.
func RateLimitedError(retryAfter time.Duration) *AppError {
	e := newErr(CodeRateLimited, "rate limited", "")
	e.RetryAfter = retryAfter
	return e
}

// Retryable reports whether a queue consumer should retry the message that
// produced this error, as opposed to acking it or routing it to the DLQ.
func Retryable(err error) bool {
	ae, ok := err.(*AppError)
	if !ok {
		return true // unclassified errors are treated conservatively as transient
	}
	switch ae.Code {
	case CodeTransient, CodeTimeout, CodeRateLimited:
		return true
	case CodeQuotaExhausted:
		return true // retried the next UTC day, not immediately
	default:
		return false
	}
}

// WriteErrorResponse writes a JSON error body, falling back to plain text
// if encoding fails for any reason.
func WriteErrorResponse(w http.ResponseWriter, err error, correlationID string) {
	ae, ok := err.(*AppError)
	if !ok {
		ae = InternalError("an unexpected error occurred", err.Error())
	}
	if correlationID != "" {
		ae.CorrelationID = correlationID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.StatusCode)

	if encErr := json.NewEncoder(w).Encode(map[string]any{"error": ae}); encErr != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal server error"))
	}
}

func statusForCode(code ErrorCode) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeRateLimited, CodeQuotaExhausted:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusRequestTimeout
	case CodeTransient:
		return http.StatusBadGateway
	case CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

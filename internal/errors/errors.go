// Package errors defines the wallet layer's service error taxonomy.
//
// Every orchestration operation reports failure through a *ServiceError so
// callers can branch on a stable machine code instead of matching message
// text. Collaborator transport failures are converted at the service boundary
// into DataUnavailable, which is always retryable.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeNotFound          Code = "not_found"
	CodeInsufficientFunds Code = "insufficient_funds"
	CodeInvalidCredential Code = "invalid_credential_format"
	CodeDataUnavailable   Code = "data_unavailable"
	CodeSettlementPending Code = "settlement_not_yet_confirmed"
	CodeSettlementBroken  Code = "settlement_mismatch"
	CodeRateLimited       Code = "rate_limit_exceeded"
)

// ServiceError is the uniform error shape returned by wallet operations.
type ServiceError struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Retryable  bool   `json:"retryable"`
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithCause attaches an underlying error.
func (e *ServiceError) WithCause(err error) *ServiceError {
	clone := *e
	clone.cause = err
	return &clone
}

// Validation reports a request rejected before any network call.
func Validation(format string, args ...any) *ServiceError {
	return &ServiceError{
		Code:       CodeValidation,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusBadRequest,
	}
}

// NotFound reports an identity or ledger row that could not be resolved.
func NotFound(format string, args ...any) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusNotFound,
	}
}

// InsufficientFunds reports the client-side fast-fail balance check. The
// authoritative check is re-run server side at execution time.
func InsufficientFunds(available, requested string) *ServiceError {
	return &ServiceError{
		Code:       CodeInsufficientFunds,
		Message:    fmt.Sprintf("insufficient balance: have %s, need %s", available, requested),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// InvalidCredential reports a signing secret that fails the syntactic check.
func InvalidCredential(msg string) *ServiceError {
	return &ServiceError{
		Code:       CodeInvalidCredential,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
	}
}

// DataUnavailable reports an unreachable backing store or network. Cached
// state is preserved and the call may be retried.
func DataUnavailable(msg string, cause error) *ServiceError {
	return &ServiceError{
		Code:       CodeDataUnavailable,
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		cause:      cause,
	}
}

// SettlementPending reports a deposit whose settlement has not appeared on the
// external ledger yet. Non-fatal; the caller should poll again.
func SettlementPending(transactionID string) *ServiceError {
	return &ServiceError{
		Code:       CodeSettlementPending,
		Message:    fmt.Sprintf("deposit %s not yet settled", transactionID),
		HTTPStatus: http.StatusConflict,
		Retryable:  true,
	}
}

// SettlementMismatch reports a settlement whose memo or amount does not match
// the recorded intent. Fatal for that deposit handle; balance untouched.
func SettlementMismatch(msg string) *ServiceError {
	return &ServiceError{
		Code:       CodeSettlementBroken,
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// RateLimitExceeded reports a throttled request on the HTTP surface.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return &ServiceError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window),
		HTTPStatus: http.StatusTooManyRequests,
		Retryable:  true,
	}
}

// CodeOf extracts the service error code, or empty for foreign errors.
func CodeOf(err error) Code {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ""
}

// IsRetryable reports whether the operation may be retried as-is.
func IsRetryable(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Retryable
	}
	return false
}

// AsService converts any error into a *ServiceError, wrapping foreign errors
// as DataUnavailable so callers always see a uniform shape.
func AsService(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return DataUnavailable("collaborator call failed", err)
}

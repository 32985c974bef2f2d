package aggregates

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes failure semantics across the ledger, the external
// clients and the HTTP layer.
type ErrorCode string

const (
	CodeNotAuthenticated   ErrorCode = "not_authenticated"
	CodeNotFound           ErrorCode = "not_found"
	CodeInvalidInput       ErrorCode = "invalid_input"
	CodeAmountMismatch     ErrorCode = "amount_mismatch"
	CodeAlreadyProcessed   ErrorCode = "already_processed"
	CodeGatewayRejected    ErrorCode = "gateway_rejected"
	CodeGatewayUnreachable ErrorCode = "gateway_unreachable"
	CodeDownloadFailed     ErrorCode = "download_failed"
	CodeStorageUnavailable ErrorCode = "storage_unavailable"
	CodeSignatureInvalid   ErrorCode = "signature_invalid"

	CodeConflict  ErrorCode = "conflict"
	CodeRetryable ErrorCode = "retryable"
	CodeInternal  ErrorCode = "internal"
)

// Error is the canonical error wrapper. Detail carries code-specific context,
// e.g. the current order status for CodeAlreadyProcessed.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// WithDetail is NewError plus a machine-readable detail.
func WithDetail(code ErrorCode, op, message, detail string) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Detail:  strings.TrimSpace(detail),
	}
}

// Wrap annotates an existing error with a code.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// IsCode checks whether err (or a wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the outermost code when available.
func CodeOf(err error) ErrorCode {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return ""
	}
	return aggErr.Code
}

// DetailOf extracts the detail of the outermost *Error.
func DetailOf(err error) string {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return ""
	}
	return aggErr.Detail
}

// IsRetryable reports codes a caller may retry without changing its request.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeGatewayUnreachable, CodeDownloadFailed, CodeStorageUnavailable, CodeRetryable:
		return true
	default:
		return false
	}
}

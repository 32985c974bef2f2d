package apierr

import (
	"errors"
	"fmt"
	"net/http"

	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
)

type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

var statusByCode = map[domainagg.ErrorCode]int{
	domainagg.CodeNotAuthenticated:   http.StatusUnauthorized,
	domainagg.CodeSignatureInvalid:   http.StatusUnauthorized,
	domainagg.CodeNotFound:           http.StatusNotFound,
	domainagg.CodeInvalidInput:       http.StatusBadRequest,
	domainagg.CodeAmountMismatch:     http.StatusBadRequest,
	domainagg.CodeAlreadyProcessed:   http.StatusConflict,
	domainagg.CodeConflict:           http.StatusConflict,
	domainagg.CodeGatewayRejected:    http.StatusBadGateway,
	domainagg.CodeGatewayUnreachable: http.StatusServiceUnavailable,
	domainagg.CodeDownloadFailed:     http.StatusServiceUnavailable,
	domainagg.CodeStorageUnavailable: http.StatusServiceUnavailable,
	domainagg.CodeRetryable:          http.StatusServiceUnavailable,
	domainagg.CodeInternal:           http.StatusInternalServerError,
}

// FromError maps any error onto the HTTP envelope. Only the domain message of
// client-facing codes is exposed; causes and internal failures are replaced by
// a generic message.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var de *domainagg.Error
	if !errors.As(err, &de) {
		return &Error{Status: http.StatusInternalServerError, Code: string(domainagg.CodeInternal), Message: "internal error", Err: err}
	}
	status, ok := statusByCode[de.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := de.Message
	switch {
	case de.Code == domainagg.CodeGatewayRejected:
		msg = "payment was not approved"
	case status == http.StatusInternalServerError:
		msg = "internal error"
	case status >= 500:
		msg = "temporarily unavailable, please retry"
	case msg == "":
		msg = string(de.Code)
	}
	return &Error{Status: status, Code: string(de.Code), Message: msg, Err: err}
}

// Detail returns the diagnostic code carried by err, if any.
func Detail(err error) string {
	return domainagg.DetailOf(err)
}

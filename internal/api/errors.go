package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for client-detected failure kinds. Server-reported codes pass
// through unchanged.
const (
	CodeNetwork    = "NETWORK_ERROR"
	CodeTimeout    = "TIMEOUT"
	CodeParse      = "PARSE_ERROR"
	CodeAuthFailed = "AUTH_FAILED"
)

// Error is a failed API request. Status 0 means no response reached the
// client; 408/TIMEOUT marks the configured request budget expiring.
type Error struct {
	Message string
	Status  int
	Code    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

func networkError(err error) *Error {
	return &Error{Message: "network error: " + err.Error(), Status: 0, Code: CodeNetwork}
}

func timeoutError() *Error {
	return &Error{Message: "request timeout", Status: http.StatusRequestTimeout, Code: CodeTimeout}
}

func parseError(status int, err error) *Error {
	return &Error{Message: "invalid response: " + err.Error(), Status: status, Code: CodeParse}
}

func authFailedError() *Error {
	return &Error{Message: "authentication failed", Status: http.StatusUnauthorized, Code: CodeAuthFailed}
}

func asError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsTimeout reports whether err is the timeout kind.
func IsTimeout(err error) bool {
	e, ok := asError(err)
	return ok && e.Code == CodeTimeout
}

// IsNetwork reports whether err is the no-response kind.
func IsNetwork(err error) bool {
	e, ok := asError(err)
	return ok && e.Code == CodeNetwork
}

// IsParse reports whether err is the malformed-response kind.
func IsParse(err error) bool {
	e, ok := asError(err)
	return ok && e.Code == CodeParse
}

// IsAuthFailed reports whether err is the terminal authentication failure
// produced after an unsuccessful token refresh.
func IsAuthFailed(err error) bool {
	e, ok := asError(err)
	return ok && e.Code == CodeAuthFailed
}

// IsStatus reports whether err is a server-reported failure with the status.
func IsStatus(err error, status int) bool {
	e, ok := asError(err)
	return ok && e.Status == status
}

// IsNotFound reports whether err is a server-reported 404.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// IsUnavailable reports whether a read-only listing may fall back to the
// built-in dataset: the server was unreachable, timed out, or is down.
func IsUnavailable(err error) bool {
	if IsNetwork(err) || IsTimeout(err) {
		return true
	}
	e, ok := asError(err)
	return ok && e.Status >= http.StatusInternalServerError
}

// Package errorutil carries the error codes shared by the engine, the HTTP
// layer and slactl.
package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeConflict               = "CONFLICT"
	CodeInternal               = "INTERNAL_ERROR"
	CodeConfiguration          = "CONFIGURATION_ERROR"
	CodeNoConfigurationFound   = "NO_CONFIGURATION_FOUND"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// statusByCode is the HTTP status each code is served with.
var statusByCode = map[string]int{
	CodeValidationFailed:       http.StatusBadRequest,
	CodeNotFound:               http.StatusNotFound,
	CodeUnauthorized:           http.StatusUnauthorized,
	CodeForbidden:              http.StatusForbidden,
	CodeConflict:               http.StatusConflict,
	CodeInternal:               http.StatusInternalServerError,
	CodeConfiguration:          http.StatusUnprocessableEntity,
	CodeNoConfigurationFound:   http.StatusUnprocessableEntity,
	CodeInvalidTransition:      http.StatusConflict,
	CodeConcurrentModification: http.StatusConflict,
}

// DomainError is an error with a stable code, an HTTP status and optional
// structured details.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError builds an error with an explicit status.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func coded(code, message string, details map[string]any, cause error) *DomainError {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details, Err: cause}
}

func NewValidationError(message string, details map[string]any) error {
	return coded(CodeValidationFailed, message, details, nil)
}

// NewNotFound names the missing resource; details usually carry its id.
func NewNotFound(resource string, details map[string]any) error {
	return coded(CodeNotFound, resource+" not found", details, nil)
}

func NewUnauthorized(message string) error {
	return coded(CodeUnauthorized, message, nil, nil)
}

func NewForbidden(message string) error {
	return coded(CodeForbidden, message, nil, nil)
}

func NewConflict(message string, details map[string]any) error {
	return coded(CodeConflict, message, details, nil)
}

// NewConfigurationError reports a malformed SLA configuration or a
// business-time target without a calendar. No tracking is created.
func NewConfigurationError(message string, details map[string]any) error {
	return coded(CodeConfiguration, message, details, nil)
}

// NewNoConfigurationFound reports a domain with neither a matching nor a
// default configuration.
func NewNoConfigurationFound(domain string) error {
	return coded(CodeNoConfigurationFound, "no sla configuration found", map[string]any{"domain": domain}, nil)
}

// NewInvalidTransition reports a rejected state machine transition.
func NewInvalidTransition(operation, status string) error {
	return coded(CodeInvalidTransition,
		fmt.Sprintf("cannot %s tracking in status %s", operation, status),
		map[string]any{"operation": operation, "status": status}, nil)
}

// NewConcurrentModification reports exhausted optimistic retries. It wraps
// the last conflict.
func NewConcurrentModification(resource string, cause error) error {
	return coded(CodeConcurrentModification, resource+" was modified concurrently", nil, cause)
}

func NewInternalError(cause error) error {
	return coded(CodeInternal, "internal server error", nil, cause)
}

// HasCode reports whether err wraps a DomainError carrying code.
func HasCode(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}

// ToDomainError returns the wrapped DomainError, or an internal error
// hiding err's text from clients.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return coded(CodeInternal, "internal server error", nil, err)
}

// CodeForStatus picks the generic code for a bare HTTP status.
func CodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidationFailed
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	}
	return CodeInternal
}

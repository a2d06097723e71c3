package errors

import (
	"errors"
	"fmt"
)

// Error types for the monitoring pipeline
var (
	ErrAuthenticationFailed = errors.New("mailbox authentication failed")
	ErrConnectivity         = errors.New("connection failed or timed out")
	ErrElementNotFound      = errors.New("expected page element not found")
	ErrParseFailed          = errors.New("failed to parse observed data")
	ErrPersistence          = errors.New("session store operation failed")
	ErrFlowFailed           = errors.New("authentication flow failed")
)

// AutomationError represents a pipeline error with additional context
type AutomationError struct {
	Type     string // Error type identifier
	Code     string // Stable error code
	Message  string // Human-readable error message
	Cause    error  // Underlying error
	Selector string // CSS selector involved (if applicable)
	URL      string // URL involved (if applicable)
}

// Error implements the error interface
func (e *AutomationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AutomationError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error
func (e *AutomationError) Is(target error) bool {
	switch target {
	case ErrAuthenticationFailed:
		return e.Type == "authentication_failed"
	case ErrConnectivity:
		return e.Type == "connectivity"
	case ErrElementNotFound:
		return e.Type == "element_not_found"
	case ErrParseFailed:
		return e.Type == "parse_failed"
	case ErrPersistence:
		return e.Type == "persistence"
	case ErrFlowFailed:
		return e.Type == "flow_failed"
	default:
		return false
	}
}

// NewAuthenticationError creates a mailbox credential rejection error
func NewAuthenticationError(message string, cause error) *AutomationError {
	return &AutomationError{
		Type:    "authentication_failed",
		Code:    "QW_AUTH_001",
		Message: message,
		Cause:   cause,
	}
}

// NewConnectivityError creates a network or timeout error
func NewConnectivityError(message string, cause error) *AutomationError {
	return &AutomationError{
		Type:    "connectivity",
		Code:    "QW_CONN_002",
		Message: message,
		Cause:   cause,
	}
}

// NewElementNotFoundError creates a missing-element error for a selector
func NewElementNotFoundError(selector string, cause error) *AutomationError {
	return &AutomationError{
		Type:     "element_not_found",
		Code:     "QW_DOM_003",
		Message:  "no element matches " + selector,
		Cause:    cause,
		Selector: selector,
	}
}

// NewParseError creates a malformed-input error
func NewParseError(message string, cause error) *AutomationError {
	return &AutomationError{
		Type:    "parse_failed",
		Code:    "QW_PARSE_004",
		Message: message,
		Cause:   cause,
	}
}

// NewPersistenceError creates a session store failure error
func NewPersistenceError(message string, cause error) *AutomationError {
	return &AutomationError{
		Type:    "persistence",
		Code:    "QW_STORE_005",
		Message: message,
		Cause:   cause,
	}
}

// NewFlowError creates an authentication flow failure error
func NewFlowError(message string, cause error) *AutomationError {
	return &AutomationError{
		Type:    "flow_failed",
		Code:    "QW_FLOW_006",
		Message: message,
		Cause:   cause,
	}
}

// NewNavigationError creates a connectivity error carrying the target URL
func NewNavigationError(url string, cause error) *AutomationError {
	return &AutomationError{
		Type:    "connectivity",
		Code:    "QW_NAV_007",
		Message: "navigation to " + url + " failed",
		Cause:   cause,
		URL:     url,
	}
}

// IsAuthenticationError checks if error is a credential rejection
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

// IsConnectivityError checks if error is a network or timeout failure
func IsConnectivityError(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

// IsElementNotFoundError checks if error is a missing page element
func IsElementNotFoundError(err error) bool {
	return errors.Is(err, ErrElementNotFound)
}

// IsParseError checks if error is a malformed-input failure
func IsParseError(err error) bool {
	return errors.Is(err, ErrParseFailed)
}

// IsPersistenceError checks if error is a session store failure
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// GetAutomationError extracts an AutomationError from an error chain
func GetAutomationError(err error) (*AutomationError, bool) {
	var autoErr *AutomationError
	if errors.As(err, &autoErr) {
		return autoErr, true
	}
	return nil, false
}

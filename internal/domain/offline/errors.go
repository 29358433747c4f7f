package offline

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error codes
const (
	CodeNetworkFailure     = "NETWORK_FAILURE"
	CodeServerRejection    = "SERVER_REJECTION"
	CodeQuotaExceeded      = "QUOTA_EXCEEDED"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodePolicyDenied       = "POLICY_DENIED"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeUnknownEntity      = "UNKNOWN_ENTITY"
)

// DomainError represents a sync-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Sentinel errors
var (
	ErrNetworkFailure     = NewDomainError(CodeNetworkFailure, "Remote service is unreachable")
	ErrServerRejection    = NewDomainError(CodeServerRejection, "Remote service rejected the request")
	ErrQuotaExceeded      = NewDomainError(CodeQuotaExceeded, "Too many pending offline changes")
	ErrPersistenceFailure = NewDomainError(CodePersistenceFailure, "Local storage write failed")
	ErrPolicyDenied       = NewDomainError(CodePolicyDenied, "Action is not allowed while offline")
	ErrNotFound           = NewDomainError(CodeNotFound, "Record not found")
	ErrInvalidInput       = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrUnknownEntity      = NewDomainError(CodeUnknownEntity, "Entity is not registered")
)

// NetworkError is returned when a remote call produced no usable response
type NetworkError struct {
	Op  string
	Err error
}

// NewNetworkError wraps a transport error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return e.Op + ": network failure"
	}
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNetworkFailure) true for every NetworkError
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetworkFailure
}

// RejectionError is returned when the server answered with a non-success status
type RejectionError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server rejected request (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server rejected request (%d): %s", e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrServerRejection) true for every RejectionError
func (e *RejectionError) Is(target error) bool {
	return target == ErrServerRejection
}

// IsNetworkFailure classifies an error as a connectivity problem.
// Deadline expiry and net.Error values count as connectivity problems even when unwrapped.
func IsNetworkFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetworkFailure) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsServerRejection reports whether the error is anything other than a connectivity problem
func IsServerRejection(err error) bool {
	return err != nil && !IsNetworkFailure(err)
}

// CodeOf extracts the error code, or an empty string for unclassified errors
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		return CodeServerRejection
	}
	if IsNetworkFailure(err) {
		return CodeNetworkFailure
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

package dto

import (
	"net/http"

	"github.com/erp/client/internal/domain/offline"
)

// Error code constants
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal   = "ERR_INTERNAL"
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	ErrCodeValidation = "ERR_VALIDATION"
	ErrCodeNotFound   = "ERR_NOT_FOUND"
	ErrCodeTooLarge   = "ERR_REQUEST_TOO_LARGE"
)

// Sync error codes
const (
	ErrCodeNetworkFailure     = "ERR_NETWORK_FAILURE"
	ErrCodeServerRejection    = "ERR_SERVER_REJECTION"
	ErrCodeQuotaExceeded      = "ERR_QUOTA_EXCEEDED"
	ErrCodePolicyDenied       = "ERR_POLICY_DENIED"
	ErrCodePersistenceFailure = "ERR_PERSISTENCE_FAILURE"
	ErrCodeUnknownEntity      = "ERR_UNKNOWN_ENTITY"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeValidation: http.StatusBadRequest,
	ErrCodeNotFound:   http.StatusNotFound,
	ErrCodeTooLarge:   http.StatusRequestEntityTooLarge,

	ErrCodeNetworkFailure:     http.StatusServiceUnavailable,
	ErrCodeServerRejection:    http.StatusUnprocessableEntity,
	ErrCodeQuotaExceeded:      http.StatusTooManyRequests,
	ErrCodePolicyDenied:       http.StatusForbidden,
	ErrCodePersistenceFailure: http.StatusInternalServerError,
	ErrCodeUnknownEntity:      http.StatusNotFound,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodeMapping maps sync engine error codes to API codes
var domainCodeMapping = map[string]string{
	offline.CodeNetworkFailure:     ErrCodeNetworkFailure,
	offline.CodeServerRejection:    ErrCodeServerRejection,
	offline.CodeQuotaExceeded:      ErrCodeQuotaExceeded,
	offline.CodePolicyDenied:       ErrCodePolicyDenied,
	offline.CodePersistenceFailure: ErrCodePersistenceFailure,
	offline.CodeNotFound:           ErrCodeNotFound,
	offline.CodeInvalidInput:       ErrCodeValidation,
	offline.CodeUnknownEntity:      ErrCodeUnknownEntity,
}

// NormalizeErrorCode converts an engine error code to the API format.
// Unknown codes come from record validation and map to ERR_VALIDATION.
func NormalizeErrorCode(code string) string {
	if newCode, ok := domainCodeMapping[code]; ok {
		return newCode
	}
	if code == "" {
		return ErrCodeInternal
	}
	return ErrCodeValidation
}

package dto

import (
	"net/http"
	"testing"

	"github.com/erp/client/internal/domain/offline"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		code       string
		want       string
		wantStatus int
	}{
		{offline.CodeNetworkFailure, ErrCodeNetworkFailure, http.StatusServiceUnavailable},
		{offline.CodeServerRejection, ErrCodeServerRejection, http.StatusUnprocessableEntity},
		{offline.CodeQuotaExceeded, ErrCodeQuotaExceeded, http.StatusTooManyRequests},
		{offline.CodePolicyDenied, ErrCodePolicyDenied, http.StatusForbidden},
		{offline.CodePersistenceFailure, ErrCodePersistenceFailure, http.StatusInternalServerError},
		{offline.CodeNotFound, ErrCodeNotFound, http.StatusNotFound},
		{offline.CodeInvalidInput, ErrCodeValidation, http.StatusBadRequest},
		{offline.CodeUnknownEntity, ErrCodeUnknownEntity, http.StatusNotFound},
		{"INVALID_CREDIT_LIMIT", ErrCodeValidation, http.StatusBadRequest},
		{"", ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := NormalizeErrorCode(tt.code)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantStatus, GetHTTPStatus(got))
		})
	}
}

func TestGetHTTPStatus_Unknown(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus("ERR_SOMETHING_ELSE"))
}

func TestNewErrorResponseWithRequestID(t *testing.T) {
	resp := NewErrorResponseWithRequestID(ErrCodeNotFound, "missing", "req-1")
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	assert.Equal(t, &ErrorInfo{Code: ErrCodeNotFound, Message: "missing", RequestID: "req-1"}, resp.Error)
}

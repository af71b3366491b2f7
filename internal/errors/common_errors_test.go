package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name   string
		appErr *AppError
		want   string
	}{
		{
			name: "error with cause",
			appErr: &AppError{
				Type:    ErrTypeStorage,
				Message: "failed to write series",
				Cause:   fmt.Errorf("disk full"),
			},
			want: "[STORAGE] failed to write series: disk full",
		},
		{
			name: "error without cause",
			appErr: &AppError{
				Type:    ErrTypeQuota,
				Message: "query quota exhausted",
			},
			want: "[QUOTA] query quota exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	appErr := NewStorageError("write failed", cause)

	assert.True(t, errors.Is(appErr, cause))
	assert.Equal(t, cause, appErr.Unwrap())
}

func TestAppError_WithContext(t *testing.T) {
	appErr := NewParsingError("bad csv row", nil).
		WithContext("row", 14).
		WithContext("keyword", "bitcoin")

	require.NotNil(t, appErr.Context)
	assert.Equal(t, 14, appErr.Context["row"])
	assert.Equal(t, "bitcoin", appErr.Context["keyword"])
}

func TestAppError_ErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewAuthError("sign-in rejected", nil))

	var appErr *AppError
	require.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, ErrTypeAuth, appErr.Type)
}

func TestCommonErrorConstructors(t *testing.T) {
	cause := fmt.Errorf("cause")

	tests := []struct {
		name     string
		err      *AppError
		wantType ErrorType
	}{
		{"auth", NewAuthError("msg", cause), ErrTypeAuth},
		{"network", NewNetworkError("msg", cause), ErrTypeNetwork},
		{"parsing", NewParsingError("msg", cause), ErrTypeParsing},
		{"storage", NewStorageError("msg", cause), ErrTypeStorage},
		{"validation", NewAppValidationError("msg"), ErrTypeValidation},
		{"not found", NewNotFoundError("series"), ErrTypeNotFound},
		{"permission", NewPermissionError("msg"), ErrTypePermission},
		{"config", NewConfigError("msg", cause), ErrTypeConfig},
		{"quota", NewQuotaError("msg", cause), ErrTypeQuota},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.NotNil(t, tt.err.Context)
		})
	}
}

func TestNewNotFoundError_Message(t *testing.T) {
	err := NewNotFoundError("anchor series")
	assert.Equal(t, "[NOT_FOUND] anchor series not found", err.Error())
}

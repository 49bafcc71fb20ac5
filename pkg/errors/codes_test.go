package errors

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var allCodes = []ErrorCode{
	ErrCodeInternal, ErrCodeBadRequest, ErrCodeNotFound, ErrCodeConflict,
	ErrCodeServiceUnavailable, ErrCodeTimeout, ErrCodeValidation, ErrCodeSerialization,
	ErrCodeDatabaseError, ErrCodeCacheError, ErrCodeExternalService, ErrCodeNotImplemented,
	ErrCodeStorageError, ErrCodeMessageQueueError, ErrCodeSearchError,
	ErrCodeParse, ErrCodeInvalidLeaf, ErrCodeToolkit, ErrCodeUnsupportedConfiguration,
	ErrCodeCancelled, ErrCodeFingerprintUnavailable, ErrCodeTransformFailed,
}

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "COMMON_001", ErrCodeInternal.String())
	assert.Equal(t, "MMP_004", CodeUnsupportedConfiguration.String())
}

func TestHTTPStatusForCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeInternal, 500},
		{ErrCodeBadRequest, 400},
		{ErrCodeNotFound, 404},
		{ErrCodeParse, 400},
		{ErrCodeInvalidLeaf, 422},
		{ErrCodeCancelled, 499},
		{ErrCodeStorageError, 502},
		{ErrCodeMessageQueueError, 502},
		{ErrCodeSearchError, 502},
		{ErrorCode("UNKNOWN"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, HTTPStatusForCode(tt.code), string(tt.code))
	}
}

func TestDefaultMessageForCode(t *testing.T) {
	assert.Equal(t, "internal server error", DefaultMessageForCode(ErrCodeInternal))
	assert.Equal(t, "unknown error", DefaultMessageForCode(ErrorCode("UNKNOWN")))
}

func TestBackendCodes_AreDistinct(t *testing.T) {
	assert.Equal(t, ErrCodeStorageError, CodeStorageError)
	assert.Equal(t, ErrCodeMessageQueueError, CodeMessageQueueError)
	assert.Equal(t, ErrCodeSearchError, CodeSearchError)
	assert.NotEqual(t, CodeStorageError, CodeSearchError)
	assert.True(t, IsServerError(CodeMessageQueueError))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(ErrCodeUnsupportedConfiguration))
	assert.False(t, IsClientError(ErrCodeToolkit))
}

func TestIsServerError(t *testing.T) {
	assert.True(t, IsServerError(ErrCodeToolkit))
	assert.False(t, IsServerError(ErrCodeParse))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "COMMON", ModuleForCode(ErrCodeInternal))
	assert.Equal(t, "MMP", ModuleForCode(ErrCodeInvalidLeaf))
	assert.Equal(t, "UNKNOWN", ModuleForCode(ErrorCode("")))
}

func TestErrorCodeFormat_Convention(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z]+_\d{3}$`)
	for _, code := range allCodes {
		assert.Regexp(t, re, string(code))
	}
}

func TestErrorCodeMappings_Completeness(t *testing.T) {
	for _, code := range allCodes {
		_, hasStatus := ErrorCodeHTTPStatus[code]
		_, hasMessage := ErrorCodeMessage[code]
		assert.True(t, hasStatus, "missing status for %s", code)
		assert.True(t, hasMessage, "missing message for %s", code)
	}
}

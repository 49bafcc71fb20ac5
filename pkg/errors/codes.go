package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeNotImplemented     ErrorCode = "COMMON_016"
	ErrCodeStorageError       ErrorCode = "COMMON_017"
	ErrCodeMessageQueueError  ErrorCode = "COMMON_018"
	ErrCodeSearchError        ErrorCode = "COMMON_019"
)

// Matched-molecular-pair error codes.
const (
	ErrCodeParse                    ErrorCode = "MMP_001"
	ErrCodeInvalidLeaf              ErrorCode = "MMP_002"
	ErrCodeToolkit                  ErrorCode = "MMP_003"
	ErrCodeUnsupportedConfiguration ErrorCode = "MMP_004"
	ErrCodeCancelled                ErrorCode = "MMP_005"
	ErrCodeFingerprintUnavailable   ErrorCode = "MMP_006"
	ErrCodeTransformFailed          ErrorCode = "MMP_007"
)

// Aliases used at call sites.
const (
	CodeUnknown        = ErrorCode("UNKNOWN")
	CodeOK             = ErrorCode("OK")
	CodeInternal       = ErrCodeInternal
	CodeInvalidParam   = ErrCodeBadRequest
	CodeNotFound       = ErrCodeNotFound
	CodeConflict       = ErrCodeConflict
	CodeNotImplemented = ErrCodeNotImplemented

	CodeParse                    = ErrCodeParse
	CodeInvalidLeaf              = ErrCodeInvalidLeaf
	CodeToolkit                  = ErrCodeToolkit
	CodeUnsupportedConfiguration = ErrCodeUnsupportedConfiguration
	CodeCancelled                = ErrCodeCancelled
	CodeFingerprintUnavailable   = ErrCodeFingerprintUnavailable
	CodeTransformFailed          = ErrCodeTransformFailed

	CodeDatabaseError     = ErrCodeDatabaseError
	CodeCacheError        = ErrCodeCacheError
	CodeMessageQueueError = ErrCodeMessageQueueError
	CodeStorageError      = ErrCodeStorageError
	CodeSearchError       = ErrCodeSearchError
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeNotImplemented:     http.StatusNotImplemented,
	ErrCodeStorageError:       http.StatusBadGateway,
	ErrCodeMessageQueueError:  http.StatusBadGateway,
	ErrCodeSearchError:        http.StatusBadGateway,

	ErrCodeParse:                    http.StatusBadRequest,
	ErrCodeInvalidLeaf:              http.StatusUnprocessableEntity,
	ErrCodeToolkit:                  http.StatusInternalServerError,
	ErrCodeUnsupportedConfiguration: http.StatusBadRequest,
	ErrCodeCancelled:                499,
	ErrCodeFingerprintUnavailable:   http.StatusUnprocessableEntity,
	ErrCodeTransformFailed:          http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeNotImplemented:     "not implemented",
	ErrCodeStorageError:       "object storage error",
	ErrCodeMessageQueueError:  "message queue error",
	ErrCodeSearchError:        "search backend error",

	ErrCodeParse:                    "structure could not be parsed",
	ErrCodeInvalidLeaf:              "fragment must carry exactly one attachment point",
	ErrCodeToolkit:                  "structure toolkit failure",
	ErrCodeUnsupportedConfiguration: "unsupported configuration",
	ErrCodeCancelled:                "run cancelled",
	ErrCodeFingerprintUnavailable:   "fingerprint unavailable",
	ErrCodeTransformFailed:          "transform could not be generated",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	return HTTPStatusForCode(code) >= 500
}

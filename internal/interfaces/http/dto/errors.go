package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
	// ErrCodeValidationLength is used when a field length is invalid
	ErrCodeValidationLength = "ERR_VALIDATION_LENGTH"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller lacks permission
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeSequenceNotEditable is used when a sequence forbids counter or format edits
	ErrCodeSequenceNotEditable = "ERR_SEQUENCE_NOT_EDITABLE"
	// ErrCodeSequenceNotDeletable is used when a sequence forbids deletion
	ErrCodeSequenceNotDeletable = "ERR_SEQUENCE_NOT_DELETABLE"
	// ErrCodeSequenceRegression is used when a counter update would move backwards
	ErrCodeSequenceRegression = "ERR_SEQUENCE_REGRESSION"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeInvalidNextNumber is used when a counter value is not positive
	ErrCodeInvalidNextNumber = "ERR_INVALID_NEXT_NUMBER"
	// ErrCodeInvalidFormat is used when a sequence format pattern is rejected
	ErrCodeInvalidFormat = "ERR_INVALID_FORMAT"
	// ErrCodeInvalidDocumentType is used when a document type is not recognized
	ErrCodeInvalidDocumentType = "ERR_INVALID_DOCUMENT_TYPE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,
	ErrCodeValidationLength:   http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Business rule errors
	ErrCodeInvalidState:         http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:         http.StatusUnprocessableEntity,
	ErrCodeSequenceNotEditable:  http.StatusUnprocessableEntity,
	ErrCodeSequenceNotDeletable: http.StatusUnprocessableEntity,
	ErrCodeSequenceRegression:   http.StatusConflict,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeInvalidJSON:         http.StatusBadRequest,
	ErrCodeInvalidNextNumber:   http.StatusBadRequest,
	ErrCodeInvalidFormat:       http.StatusBadRequest,
	ErrCodeInvalidDocumentType: http.StatusBadRequest,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps raw domain error codes to standardized codes
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":               ErrCodeNotFound,
	"ALREADY_EXISTS":          ErrCodeAlreadyExists,
	"INVALID_INPUT":           ErrCodeInvalidInput,
	"INVALID_STATE":           ErrCodeInvalidState,
	"UNAUTHORIZED":            ErrCodeUnauthorized,
	"FORBIDDEN":               ErrCodeForbidden,
	"CONCURRENCY_CONFLICT":    ErrCodeConcurrencyConflict,
	"VALIDATION_ERROR":        ErrCodeValidation,
	"BAD_REQUEST":             ErrCodeBadRequest,
	"INTERNAL_ERROR":          ErrCodeInternal,
	"SEQUENCE_NOT_EDITABLE":   ErrCodeSequenceNotEditable,
	"SEQUENCE_NOT_DELETABLE":  ErrCodeSequenceNotDeletable,
	"SEQUENCE_REGRESSION":     ErrCodeSequenceRegression,
	"INVALID_NEXT_NUMBER":     ErrCodeInvalidNextNumber,
	"INVALID_FORMAT":          ErrCodeInvalidFormat,
	"INVALID_DOCUMENT_TYPE":   ErrCodeInvalidDocumentType,
	"INVALID_DOCUMENT_NUMBER": ErrCodeInvalidInput,
	"INVALID_AMOUNT":          ErrCodeInvalidInput,
}

// NormalizeErrorCode converts a raw domain error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}

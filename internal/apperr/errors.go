// Package apperr defines the closed set of error variants produced by the
// backend's subsystems. Each variant carries its HTTP status and public code
// so the classifier never has to guess from error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind identifies the variant of an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindRateLimit
	KindStorage
	KindUpload
	KindHashing
	KindVerification
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindStorage:
		return "storage"
	case KindUpload:
		return "upload"
	case KindHashing:
		return "hashing"
	case KindVerification:
		return "verification"
	default:
		return "internal"
	}
}

// Public error codes.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeTokenMissing       = "AUTH_TOKEN_MISSING"
	CodeTokenInvalid       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenNotActive     = "TOKEN_NOT_ACTIVE"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthenticated    = "AUTHENTICATION_ERROR"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeDuplicateEntry     = "DUPLICATE_ENTRY"
	CodeInvalidReference   = "INVALID_REFERENCE"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeTooManyFiles       = "TOO_MANY_FILES"
	CodeUnexpectedField    = "UNEXPECTED_FIELD"
	CodeMissingFile        = "MISSING_FILE"
	CodeInvalidFileType    = "INVALID_FILE_TYPE"
	CodeInvalidUpload      = "INVALID_UPLOAD"
	CodeHashing            = "HASHING_ERROR"
	CodeVerification       = "VERIFICATION_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

// StorageKind narrows a storage failure.
type StorageKind int

const (
	StorageUnavailable StorageKind = iota
	StorageDuplicate
	StorageNotFound
	StorageInvalidReference
)

// UploadKind narrows an upload failure.
type UploadKind int

const (
	UploadInvalid UploadKind = iota
	UploadFileTooLarge
	UploadTooManyFiles
	UploadUnexpectedField
	UploadMissingFile
	UploadInvalidType
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the application error type. Status and Code are what clients see;
// Err is the internal cause and is never rendered outside development.
type Error struct {
	Kind       Kind
	Status     int
	Code       string
	Message    string
	Details    any
	RetryAfter time.Duration
	Key        string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so sentinel values work with errors.Is
// even after a cause has been attached with Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func Validation(message string, fields []FieldError) *Error {
	return &Error{
		Kind:    KindValidation,
		Status:  http.StatusBadRequest,
		Code:    CodeValidation,
		Message: message,
		Details: fields,
	}
}

func Authentication(code, message string) *Error {
	return &Error{
		Kind:    KindAuthentication,
		Status:  http.StatusUnauthorized,
		Code:    code,
		Message: message,
	}
}

func Authorization(message string) *Error {
	return &Error{
		Kind:    KindAuthorization,
		Status:  http.StatusForbidden,
		Code:    CodeForbidden,
		Message: message,
	}
}

func NotFound(message string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Status:  http.StatusNotFound,
		Code:    CodeNotFound,
		Message: message,
	}
}

// RateLimited reports that key exhausted its budget for the current window.
func RateLimited(key string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Status:     http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "Too many requests, please try again later",
		RetryAfter: retryAfter,
		Key:        key,
	}
}

func Storage(kind StorageKind, cause error) *Error {
	e := &Error{Kind: KindStorage, Err: cause}
	switch kind {
	case StorageDuplicate:
		e.Status, e.Code, e.Message = http.StatusConflict, CodeDuplicateEntry, "Resource already exists"
	case StorageNotFound:
		e.Status, e.Code, e.Message = http.StatusNotFound, CodeNotFound, "Resource not found"
	case StorageInvalidReference:
		e.Status, e.Code, e.Message = http.StatusBadRequest, CodeInvalidReference, "Referenced resource does not exist"
	default:
		e.Status, e.Code, e.Message = http.StatusServiceUnavailable, CodeStorageUnavailable, "Storage temporarily unavailable"
	}
	return e
}

func Upload(kind UploadKind, message string) *Error {
	e := &Error{Kind: KindUpload, Status: http.StatusBadRequest, Message: message}
	switch kind {
	case UploadFileTooLarge:
		e.Code = CodeFileTooLarge
	case UploadTooManyFiles:
		e.Code = CodeTooManyFiles
	case UploadUnexpectedField:
		e.Code = CodeUnexpectedField
	case UploadMissingFile:
		e.Code = CodeMissingFile
	case UploadInvalidType:
		e.Code = CodeInvalidFileType
	default:
		e.Code = CodeInvalidUpload
	}
	return e
}

func Hashing(message string) *Error {
	return &Error{
		Kind:    KindHashing,
		Status:  http.StatusInternalServerError,
		Code:    CodeHashing,
		Message: message,
	}
}

func Verification(message string) *Error {
	return &Error{
		Kind:    KindVerification,
		Status:  http.StatusInternalServerError,
		Code:    CodeVerification,
		Message: message,
	}
}

func Internal(cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     cause,
	}
}

package errors

import "fmt"

type ErrorCode string

const (
	ErrInvalidInput               ErrorCode = "INVALID_INPUT"
	ErrInvalidRequestData         ErrorCode = "INVALID_REQUEST_DATA"
	ErrUnauthorized               ErrorCode = "UNAUTHORIZED"
	ErrTokenExpired               ErrorCode = "TOKEN_EXPIRED"
	ErrInvalidTokenFormat         ErrorCode = "INVALID_TOKEN_FORMAT"
	ErrMissingAuthorizationHeader ErrorCode = "MISSING_AUTHORIZATION_HEADER"
	ErrForbidden                  ErrorCode = "FORBIDDEN"
	ErrNotFound                   ErrorCode = "NOT_FOUND"
	ErrInternalServer             ErrorCode = "INTERNAL_SERVER_ERROR"

	// Calendar provider errors
	ErrAuthExchange         ErrorCode = "AUTH_EXCHANGE_FAILED"
	ErrTokenRefresh         ErrorCode = "TOKEN_REFRESH_FAILED"
	ErrProviderUnavailable  ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"
	ErrNotConfigured        ErrorCode = "NOT_CONFIGURED"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func Code(err error) ErrorCode {
	if ae, ok := err.(*AppError); ok && ae != nil {
		return ae.Code
	}
	return ErrInternalServer
}

func IsUnsupportedOperation(err error) bool {
	return Code(err) == ErrUnsupportedOperation
}

func IsProviderUnavailable(err error) bool {
	return Code(err) == ErrProviderUnavailable
}

func IsNotConfigured(err error) bool {
	return Code(err) == ErrNotConfigured
}

func IsNotFound(err error) bool {
	return Code(err) == ErrNotFound
}

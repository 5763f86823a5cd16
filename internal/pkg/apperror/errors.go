package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError   ErrorCode = "DATABASE_ERROR"
	ErrCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"

	// Коды эскроу-ледгера.
	ErrCodeInvalidTransition       ErrorCode = "INVALID_TRANSITION"
	ErrCodeNotEligible             ErrorCode = "NOT_ELIGIBLE"
	ErrCodeAlreadyResolved         ErrorCode = "ALREADY_RESOLVED"
	ErrCodeAlreadyExecuted         ErrorCode = "ALREADY_EXECUTED"
	ErrCodeConcurrentModification  ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodePaymentNotVerified      ErrorCode = "PAYMENT_NOT_VERIFIED"
	ErrCodeBookingNotEligible      ErrorCode = "BOOKING_NOT_ELIGIBLE"
	ErrCodeObligationAlreadyExists ErrorCode = "OBLIGATION_ALREADY_EXISTS"
)

// Kind группирует ошибки для пользователя: "это уже произошло" против "это пока нельзя".
const (
	KindAlreadyDone = "already_done"
	KindNotAllowed  = "not_allowed"
	KindRetry       = "retry"
	KindOther       = "other"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf создаёт ошибку с форматированным сообщением.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotEligible:
		return http.StatusUnprocessableEntity
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrCodeConflict,
		ErrCodeInvalidTransition,
		ErrCodeAlreadyResolved,
		ErrCodeAlreadyExecuted,
		ErrCodeConcurrentModification,
		ErrCodePaymentNotVerified,
		ErrCodeBookingNotEligible,
		ErrCodeObligationAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// As извлекает AppError из цепочки ошибок.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode проверяет код ошибки на любом уровне обёртки.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// IsRetryable возвращает true только для проигранной оптимистичной гонки.
func IsRetryable(err error) bool {
	return HasCode(err, ErrCodeConcurrentModification)
}

// Kind классифицирует ошибку для отображения человеку.
func Kind(err error) string {
	appErr, ok := As(err)
	if !ok {
		return KindOther
	}
	switch appErr.Code {
	case ErrCodeAlreadyResolved, ErrCodeAlreadyExecuted, ErrCodeObligationAlreadyExists:
		return KindAlreadyDone
	case ErrCodeInvalidTransition, ErrCodeNotEligible, ErrCodePaymentNotVerified, ErrCodeBookingNotEligible:
		return KindNotAllowed
	case ErrCodeConcurrentModification:
		return KindRetry
	default:
		return KindOther
	}
}

func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

func IsForbidden(err error) bool {
	return HasCode(err, ErrCodeForbidden)
}

func IsValidation(err error) bool {
	return HasCode(err, ErrCodeValidation)
}

var (
	ErrBookingNotFound    = New(ErrCodeNotFound, "бронирование не найдено")
	ErrPaymentNotFound    = New(ErrCodeNotFound, "платёж не найден")
	ErrDisputeNotFound    = New(ErrCodeNotFound, "спор не найден")
	ErrObligationNotFound = New(ErrCodeNotFound, "обязательство не найдено")
	ErrServiceNotFound    = New(ErrCodeNotFound, "услуга не найдена")
	ErrUnauthorized       = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden          = New(ErrCodeForbidden, "недостаточно прав")
)

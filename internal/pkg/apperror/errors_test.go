package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAndKind(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
		kind   string
	}{
		{ErrCodeInvalidTransition, http.StatusConflict, KindNotAllowed},
		{ErrCodeNotEligible, http.StatusUnprocessableEntity, KindNotAllowed},
		{ErrCodePaymentNotVerified, http.StatusConflict, KindNotAllowed},
		{ErrCodeBookingNotEligible, http.StatusConflict, KindNotAllowed},
		{ErrCodeAlreadyResolved, http.StatusConflict, KindAlreadyDone},
		{ErrCodeAlreadyExecuted, http.StatusConflict, KindAlreadyDone},
		{ErrCodeObligationAlreadyExists, http.StatusConflict, KindAlreadyDone},
		{ErrCodeConcurrentModification, http.StatusConflict, KindRetry},
		{ErrCodeNotFound, http.StatusNotFound, KindOther},
		{ErrCodeForbidden, http.StatusForbidden, KindOther},
		{ErrCodeTooManyRequests, http.StatusTooManyRequests, KindOther},
		{ErrCodeDatabaseError, http.StatusInternalServerError, KindOther},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "x")
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, tt.kind, Kind(err))
		})
	}
}

func TestHasCodeThroughWrapping(t *testing.T) {
	base := New(ErrCodeConcurrentModification, "проиграна гонка")
	wrapped := fmt.Errorf("booking.accept: %w", base)

	assert.True(t, HasCode(wrapped, ErrCodeConcurrentModification))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(New(ErrCodeAlreadyExecuted, "x")))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeNotFound))
	assert.Equal(t, KindOther, Kind(errors.New("plain")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Wrap(cause, ErrCodeDatabaseError, "select booking")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "DATABASE_ERROR")
	assert.True(t, IsNotFound(ErrBookingNotFound))
}

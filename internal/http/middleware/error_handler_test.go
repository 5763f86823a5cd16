package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
)

func TestErrorBody(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		kind      string
		retryable bool
		message   string
	}{
		{
			name:    "already executed",
			err:     apperror.New(apperror.ErrCodeAlreadyExecuted, "обязательство уже исполнено"),
			status:  http.StatusConflict,
			code:    "ALREADY_EXECUTED",
			kind:    apperror.KindAlreadyDone,
			message: "обязательство уже исполнено",
		},
		{
			name:    "not eligible wrapped",
			err:     fmt.Errorf("dispute: %w", apperror.New(apperror.ErrCodeNotEligible, "окно спора закрыто")),
			status:  http.StatusUnprocessableEntity,
			code:    "NOT_ELIGIBLE",
			kind:    apperror.KindNotAllowed,
			message: "окно спора закрыто",
		},
		{
			name:      "concurrent modification",
			err:       apperror.New(apperror.ErrCodeConcurrentModification, "состояние изменилось"),
			status:    http.StatusConflict,
			code:      "CONCURRENT_MODIFICATION",
			kind:      apperror.KindRetry,
			retryable: true,
			message:   "состояние изменилось",
		},
		{
			name:    "database error masked",
			err:     apperror.Wrap(errors.New("pq: relation does not exist"), apperror.ErrCodeDatabaseError, "select bookings"),
			status:  http.StatusInternalServerError,
			code:    "DATABASE_ERROR",
			kind:    apperror.KindOther,
			message: internalMessage,
		},
		{
			name:    "plain error",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			code:    "INTERNAL_ERROR",
			kind:    apperror.KindOther,
			message: internalMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorBody(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.kind, body.Kind)
			assert.Equal(t, tt.retryable, body.Retryable)
			assert.Equal(t, tt.message, body.Error)
		})
	}
}

func TestErrorHandler_RendersContextError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(apperror.New(apperror.ErrCodeForbidden, "нет прав"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"нет прав","code":"FORBIDDEN","kind":"other","retryable":false}`, w.Body.String())
}

func TestUUIDValidator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/bookings/:id", UUIDValidator("id"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bookings/123", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bookings/6f1c2b9e-3d4a-4b5c-8d9e-0a1b2c3d4e5f", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

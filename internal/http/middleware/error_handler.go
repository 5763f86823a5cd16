package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/creator-escrow/internal/dto"
	"github.com/ignatzorin/creator-escrow/internal/logger"
	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
)

const internalMessage = "внутренняя ошибка сервера"

// ErrorHandler обрабатывает ошибки централизованно.
// Хэндлер может положить ошибку в c.Error и не писать ответ сам.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		RenderError(c, c.Errors.Last().Err)
	}
}

// RenderError пишет ошибку в формате {"error","code","kind","retryable"}.
// Внутренние причины клиенту не отдаются.
func RenderError(c *gin.Context, err error) {
	status, body := errorBody(err)

	fields := logrus.Fields{
		"error":  err.Error(),
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"code":   body.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.WithFields(fields).Error("request failed")
	} else {
		logger.WithFields(fields).Debug("request rejected")
	}

	c.AbortWithStatusJSON(status, body)
}

func errorBody(err error) (int, dto.ErrorResponse) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, dto.ErrorResponse{
			Error: "превышено время ожидания",
			Code:  string(apperror.ErrCodeInternal),
			Kind:  apperror.KindOther,
		}
	}

	appErr, ok := apperror.As(err)
	if !ok {
		return http.StatusInternalServerError, dto.ErrorResponse{
			Error: internalMessage,
			Code:  string(apperror.ErrCodeInternal),
			Kind:  apperror.KindOther,
		}
	}

	message := appErr.Message
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		message = internalMessage
	}

	return status, dto.ErrorResponse{
		Error:     message,
		Code:      string(appErr.Code),
		Kind:      apperror.Kind(appErr),
		Retryable: apperror.IsRetryable(appErr),
	}
}

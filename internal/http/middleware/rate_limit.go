package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
)

// RateLimitMiddleware ограничивает число запросов.
// Ключ пользователь, если он уже известен из токена, иначе IP.
// По умолчанию: 10 запросов в минуту.
func RateLimitMiddleware(limit int64, period time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		limit = 10
	}
	if period <= 0 {
		period = 1 * time.Minute
	}

	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}
	instance := limiter.New(memory.NewStore(), rate)

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if raw, ok := c.Get(ContextUserIDKey); ok {
			if userID, ok := raw.(uuid.UUID); ok {
				key = "user:" + userID.String()
			}
		}

		lctx, err := instance.Get(c, key)
		if err != nil {
			RenderError(c, apperror.Wrap(err, apperror.ErrCodeInternal, "rate limiter недоступен"))
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", lctx.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", lctx.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", lctx.Reset))

		if lctx.Reached {
			RenderError(c, apperror.New(apperror.ErrCodeTooManyRequests, "слишком много запросов, попробуйте позже"))
			return
		}

		c.Next()
	}
}

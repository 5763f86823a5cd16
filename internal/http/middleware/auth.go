package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/creator-escrow/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextActorKey  = "actor"
	ContextUserIDKey = "userID"
)

// AuthMiddleware проверяет JWT access токен и кладёт Actor в контекст.
func AuthMiddleware(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			RenderError(c, apperror.New(apperror.ErrCodeUnauthorized, "требуется авторизация"))
			return
		}

		actor, err := tokens.ParseActor(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			RenderError(c, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "токен невалиден"))
			return
		}

		c.Set(ContextActorKey, actor)
		c.Set(ContextUserIDKey, actor.ID)
		c.Next()
	}
}

package common

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/creator-escrow/internal/dto"
	"github.com/ignatzorin/creator-escrow/internal/http/middleware"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
)

var (
	// ErrActorNotFound пользователь не найден в контексте запроса.
	ErrActorNotFound = apperror.New(apperror.ErrCodeUnauthorized, "требуется авторизация")

	// ErrInvalidUUID неверный формат идентификатора.
	ErrInvalidUUID = apperror.New(apperror.ErrCodeValidation, "неверный формат UUID")
)

// CurrentActor извлекает Actor, положенный AuthMiddleware.
func CurrentActor(c *gin.Context) (models.Actor, error) {
	raw, exists := c.Get(middleware.ContextActorKey)
	if !exists {
		return models.Actor{}, ErrActorNotFound
	}

	actor, ok := raw.(models.Actor)
	if !ok {
		return models.Actor{}, ErrActorNotFound
	}

	return actor, nil
}

// ParseUUIDParam parses UUID from URL parameter
func ParseUUIDParam(c *gin.Context, paramName string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(c.Param(paramName))
	if err != nil {
		return uuid.Nil, ErrInvalidUUID
	}
	return parsed, nil
}

// BindJSON binds JSON request and returns a validation error
func BindJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "ошибка валидации запроса")
	}
	return nil
}

// RespondError sends a standardized error response
func RespondError(c *gin.Context, err error) {
	middleware.RenderError(c, err)
}

// RespondJSON sends a JSON response with the given status code and data
func RespondJSON(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// RespondList sends a page of items
func RespondList(c *gin.Context, items interface{}, limit, offset int) {
	c.JSON(http.StatusOK, dto.ListResponse{Items: items, Limit: limit, Offset: offset})
}

// ParseIntQuery safely reads an integer query parameter with a fallback value
func ParseIntQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetPagination extracts limit and offset from query parameters with defaults
func GetPagination(c *gin.Context) (limit, offset int) {
	limit = ParseIntQuery(c, "limit", 20)
	offset = ParseIntQuery(c, "offset", 0)
	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return
}

// OptionalQuery возвращает nil для пустого параметра.
func OptionalQuery(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

// ParseBoolQuery читает true/false; пусто значит nil.
func ParseBoolQuery(c *gin.Context, key string) (*bool, error) {
	raw := OptionalQuery(c, key)
	if raw == nil {
		return nil, nil
	}
	v, err := strconv.ParseBool(*raw)
	if err != nil {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "параметр %s должен быть true или false", key)
	}
	return &v, nil
}

package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/creator-escrow/internal/config"
	"github.com/ignatzorin/creator-escrow/internal/http/handlers"
	"github.com/ignatzorin/creator-escrow/internal/http/middleware"
	"github.com/ignatzorin/creator-escrow/internal/service"
)

// ArtifactsURL префикс раздачи файлов артефактов.
const ArtifactsURL = "/api/artifacts"

// Handlers все хэндлеры API.
type Handlers struct {
	Bookings   *handlers.BookingHandler
	Payments   *handlers.PaymentHandler
	Disputes   *handlers.DisputeHandler
	Settlement *handlers.SettlementHandler
	Health     *handlers.HealthHandler
	Policies   *handlers.PolicyHandler
	WS         *handlers.WSHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokenManager *service.TokenManager) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorHandler())

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")
	if h.WS != nil {
		api.GET("/ws", h.WS.Handle)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))

	// изменяющие запросы ограничиваются по пользователю
	write := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)
	id := middleware.UUIDValidator("id")

	protected.StaticFS("/artifacts", http.Dir(cfg.ArtifactStoragePath))

	bookings := protected.Group("/bookings")
	{
		bookings.POST("", write, h.Bookings.Create)
		bookings.GET("/my", h.Bookings.ListMine)
		bookings.GET("/:id", id, h.Bookings.Get)
		bookings.GET("/:id/history", id, h.Bookings.History)
		bookings.POST("/:id/payments", id, write, h.Payments.SubmitForBooking)
		bookings.GET("/:id/payments", id, h.Payments.ListByBooking)
		bookings.POST("/:id/start", id, write, h.Bookings.Start)
		bookings.POST("/:id/deliver", id, write, h.Bookings.Deliver)
		bookings.POST("/:id/accept", id, write, h.Bookings.Accept)
		bookings.POST("/:id/reject", id, write, h.Bookings.Reject)
		bookings.POST("/:id/disputes", id, write, h.Disputes.Open)
	}

	protected.POST("/payments/tier", write, h.Payments.SubmitTier)

	// права администратора проверяет политика доступа в сервисах
	admin := protected.Group("/admin")
	{
		admin.GET("/payments", h.Payments.List)
		admin.POST("/payments/:id/verify", id, h.Payments.Verify)
		admin.POST("/bookings/:id/confirm-payment", id, h.Bookings.ConfirmPayment)
		admin.GET("/disputes", h.Disputes.List)
		admin.GET("/disputes/:id", id, h.Disputes.Get)
		admin.POST("/disputes/:id/resolve", id, h.Disputes.Resolve)
		admin.GET("/settlements", h.Settlement.List)
		admin.POST("/settlements/:id/execute", id, h.Settlement.Execute)
		if h.Policies != nil {
			admin.POST("/policies/reload", h.Policies.Reload)
		}
	}

	return r
}

package http

import (
	"github.com/vilass86/cardgame/internal/config"
	"github.com/vilass86/cardgame/internal/http/handlers"
	"github.com/vilass86/cardgame/internal/http/middleware"
	"github.com/vilass86/cardgame/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the router needs.
type Deps struct {
	Handler *handlers.Handler
	Health  *handlers.HealthHandler
	Hub     *ws.Hub
	Config  *config.Config
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Config
	r.Use(middleware.Metrics())

	// Health checks (no rate limiting)
	r.GET("/health", d.Health.Health)
	r.GET("/healthz", d.Health.Liveness)
	r.GET("/readyz", d.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(v1, d.Handler, cfg)

	// session event stream
	r.GET("/ws/sessions/:id", ws.HandleWS(d.Hub, d.Handler.Sessions, cfg.AllowedOrigin))
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, cfg *config.Config) {
	actionRL := middleware.ActionRateLimit(cfg.ActionRateLimit, cfg.ActionRateWindow)

	// Auth
	api.POST("/auth/token", h.DevToken)

	// Accounts
	api.GET("/accounts/me", middleware.JWT(), h.Me)
	api.GET("/accounts/me/transactions", middleware.JWT(), h.MyTransactions)

	// Sessions
	sessions := api.Group("/sessions")
	{
		sessions.POST("", middleware.JWT(), actionRL, h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.GET("/:id/verify", h.VerifySession)
		sessions.GET("/:id/audit", h.SessionAudit)

		sessions.POST("/:id/join", middleware.JWT(), actionRL, h.JoinSession)
		sessions.POST("/:id/leave", middleware.JWT(), actionRL, h.LeaveSession)
		sessions.POST("/:id/lock", middleware.JWT(), actionRL, h.LockSession)
		sessions.POST("/:id/randomness", middleware.JWT(), actionRL, h.RequestRandomness)
		sessions.POST("/:id/cancel", middleware.JWT(), actionRL, h.CancelSession)
		sessions.POST("/:id/refund", middleware.JWT(), actionRL, h.ClaimRefund)

		// permissionless
		sessions.POST("/:id/resolve", h.ResolveSession)
		sessions.POST("/:id/expire", h.ExpireSession)
	}

	// Randomness oracle
	api.POST("/randomness/fulfill", h.FulfillRandomness)
	api.GET("/randomness/public-key", h.PublicKey)
}

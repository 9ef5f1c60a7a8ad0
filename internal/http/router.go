package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/odilabs/odi-auth/internal/config"
	"github.com/odilabs/odi-auth/internal/domain"
	"github.com/odilabs/odi-auth/internal/http/handler"
	httpmiddleware "github.com/odilabs/odi-auth/internal/http/middleware"
	"github.com/odilabs/odi-auth/internal/middleware"
	"github.com/odilabs/odi-auth/internal/ratelimit"
)

// NewRouter wires gin routes and middleware. The store-backed per-IP window
// guards the endpoints that mint or test credentials; the identity-scoped
// login throttle inside the service applies on top of it.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, rpmLimiter *middleware.RateLimiter, ipLimiter *ratelimit.Limiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rpmLimiter != nil {
		r.Use(rpmLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	ipGuard := middleware.IPRateLimit(ipLimiter, cfg.IPRateWindow, int64(cfg.IPRateMax))

	auth := r.Group("/auth")
	{
		auth.POST("/code", ipGuard, authHandler.SendCode)
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", ipGuard, authHandler.Login)
		auth.POST("/refresh-token", authHandler.Refresh)
		auth.POST("/logout", authMiddleware.ValidateJWT, authHandler.Logout)
		auth.GET("/me", authMiddleware.ValidateJWT, authHandler.Me)
		auth.GET("/admin/ping", authMiddleware.ValidateJWT, httpmiddleware.RequireRole(domain.RoleAdmin), authHandler.AdminPing)
	}

	return r
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/7HR4IZ3/ai-video-creator/internal/config"
	"github.com/7HR4IZ3/ai-video-creator/internal/http/handler"
	httpmiddleware "github.com/7HR4IZ3/ai-video-creator/internal/http/middleware"
	"github.com/7HR4IZ3/ai-video-creator/internal/middleware"
)

// ChannelPath is where CLI processes open the notification channel.
const ChannelPath = "/ws"

// NewRouter wires Gin routes and middleware. channel serves the websocket notification endpoint.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, channel http.Handler, rateLimiter *middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.SetHTMLTemplate(handler.Pages())

	r.GET("/health", authHandler.Health)
	r.POST("/auth/start", rateLimiter.Handler(), authHandler.StartAuth)
	r.GET("/oauth2callback/:platform", authHandler.Callback)

	tokens := r.Group("/tokens")
	{
		tokens.GET("/:platform", authHandler.StoredTokens)
		tokens.POST("/:platform/refresh", authHandler.RefreshTokens)
	}

	if channel != nil {
		r.GET(ChannelPath, gin.WrapH(channel))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Route not found."})
	})

	return r
}

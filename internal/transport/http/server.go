package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// authAttemptsPerMinute bounds signup/login attempts per client IP.
const authAttemptsPerMinute = 30

// NewServer builds the HTTP server with REST and WebSocket routes.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(authService, logger)
	messageHandlers := NewMessageHandlers(hub, st, logger)
	wsHandler := NewWSHandler(hub, authService, cfg, logger)
	started := time.Now()

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/ws", gin.WrapH(wsHandler))

	api := router.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, StatusResponse{
			Status:   "ok",
			Protocol: proto.ProtocolVersion,
			Online:   len(hub.OnlineUsers()),
			Uptime:   time.Since(started).Truncate(time.Second).String(),
		})
	})

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", NewIPRateLimiter(authAttemptsPerMinute).Middleware(), apiHandlers.Signup)
	authGroup.POST("/login", NewIPRateLimiter(authAttemptsPerMinute).Middleware(), apiHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService, logger))
	{
		protected.GET("/auth/check", apiHandlers.CheckAuth)
		protected.PUT("/auth/update-profile", apiHandlers.UpdateProfile)

		protected.GET("/presence/online", messageHandlers.Online)

		protected.GET("/messages/users", messageHandlers.Sidebar)
		protected.GET("/messages/:id", messageHandlers.Conversation)
		protected.POST("/messages/send/:id", messageHandlers.Send)
		protected.PUT("/messages/mark/:id", messageHandlers.MarkSeen)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status   string `json:"status"`
	Protocol int    `json:"protocol"`
	Online   int    `json:"online"`
	Uptime   string `json:"uptime"`
}

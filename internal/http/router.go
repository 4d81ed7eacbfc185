// Package http wires the gin router.
package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/streamhive/account-service/internal/config"
	"github.com/streamhive/account-service/internal/http/handler"
	"github.com/streamhive/account-service/internal/http/middleware"
)

// NewRouter wires routes and middleware.
func NewRouter(cfg config.Config, accounts *handler.AccountHandler, auth *middleware.Auth) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	users := r.Group("/api/v1/users")
	{
		users.POST("/register", accounts.Register)
		users.POST("/login", accounts.Login)
		users.POST("/refresh-token", accounts.Refresh)

		users.POST("/logout", auth.RequireAuth, accounts.Logout)
		users.POST("/change-password", auth.RequireAuth, accounts.ChangePassword)
		users.GET("/current-user", auth.RequireAuth, accounts.CurrentUser)
		users.PATCH("/update-account", auth.RequireAuth, accounts.UpdateAccount)
		users.PATCH("/avatar", auth.RequireAuth, accounts.UpdateAvatar)
		users.PATCH("/cover-image", auth.RequireAuth, accounts.UpdateCoverImage)
		users.GET("/c/:username", auth.RequireAuth, accounts.ChannelProfile)
		users.GET("/watch-history", auth.RequireAuth, accounts.WatchHistory)
	}

	return r
}

package routes

import (
	"github.com/cpp-cyber/dirauth/internal/api/handlers"
	"github.com/cpp-cyber/dirauth/internal/api/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up all API routes with their respective middleware and handlers
func RegisterRoutes(r *gin.Engine, authHandler *handlers.AuthHandler, directoryHandler *handlers.DirectoryHandler) {
	// Public routes (no authentication required)
	public := r.Group("/api/v1")
	public.POST("/login", authHandler.LoginHandler)
	public.GET("/health", authHandler.HealthHandler)

	// Private routes (authentication required)
	private := r.Group("/api/v1")
	private.Use(middleware.AuthRequired)
	private.POST("/logout", authHandler.LogoutHandler)
	private.GET("/session", authHandler.SessionHandler)
	private.GET("/users/:username", directoryHandler.GetUserHandler)
	private.PATCH("/entries", directoryHandler.ModifyEntryHandler)

	// Admin routes (authentication + admin privileges required)
	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.AdminRequired)
	admin.GET("/users", directoryHandler.GetUsersHandler)
	admin.GET("/groups", directoryHandler.GetGroupsHandler)
	admin.POST("/users", directoryHandler.AddEntryHandler)
}

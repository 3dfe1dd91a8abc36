package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cpp-cyber/dirauth/internal/directory"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// =================================================
// Login / Logout / Session Handlers
// =================================================

type AuthHandler struct {
	service *directory.Service
	log     *zap.Logger
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(service *directory.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		log:     log,
	}
}

// LoginHandler handles the login POST request
func (h *AuthHandler) LoginHandler(c *gin.Context) {
	var req UsernamePasswordRequest
	if !validateAndBind(c, &req) {
		return
	}

	user, err := h.service.Authenticate(c.Request.Context(), req.Username, req.Password, true)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrMissingPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
		case errors.Is(err, directory.ErrInvalidCredentials), errors.Is(err, directory.ErrNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		default:
			h.log.Error("authentication failed",
				zap.String("username", req.Username),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
		}
		return
	}

	isAdmin := userInGroup(user, h.service.Config().AdminGroup)

	// Create session
	session := sessions.Default(c)
	session.Set("id", user.AccountName())
	session.Set("isAdmin", isAdmin)

	if err := session.Save(); err != nil {
		h.log.Error("failed to save session",
			zap.String("username", req.Username),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    user,
		"isAdmin": isAdmin,
	})
}

// LogoutHandler handles user logout
func (h *AuthHandler) LogoutHandler(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()

	if err := session.Save(); err != nil {
		h.log.Error("failed to clear session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

// SessionHandler returns current session information for authenticated users
func (h *AuthHandler) SessionHandler(c *gin.Context) {
	session := sessions.Default(c)

	// Since this is under private routes, AuthRequired middleware ensures session exists
	id := session.Get("id")
	isAdmin := session.Get("isAdmin")

	adminStatus := false
	if isAdmin != nil {
		adminStatus = isAdmin.(bool)
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"username":      id.(string),
		"isAdmin":       adminStatus,
	})
}

// HealthHandler probes the directory connection
func (h *AuthHandler) HealthHandler(c *gin.Context) {
	if err := h.service.HealthCheck(); err != nil {
		h.log.Error("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// userInGroup reports whether the resolved entry belongs to the named group,
// checking resolved groups first and falling back to memberOf values.
func userInGroup(user directory.Entry, group string) bool {
	if group == "" {
		return false
	}

	if groups, ok := user["groups"].([]directory.Entry); ok {
		for _, g := range groups {
			if cn, ok := g["cn"].(string); ok && strings.EqualFold(cn, group) {
				return true
			}
		}
	}

	memberOf, _ := user["memberOf"].([]string)
	if single, ok := user["memberOf"].(string); ok {
		memberOf = []string{single}
	}
	for _, dn := range memberOf {
		if strings.HasPrefix(strings.ToLower(dn), "cn="+strings.ToLower(group)+",") {
			return true
		}
	}

	return false
}

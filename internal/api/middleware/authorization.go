package middleware

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// AuthRequired provides authentication middleware for ensuring that a user is logged in.
func AuthRequired(c *gin.Context) {
	session := sessions.Default(c)
	id := session.Get("id")
	if id == nil {
		c.String(http.StatusUnauthorized, "Unauthorized")
		c.Abort()
		return
	}
	c.Next()
}

// AdminRequired ensures the session belongs to a member of the configured
// admin group. The flag is set at login from the resolved group membership.
func AdminRequired(c *gin.Context) {
	session := sessions.Default(c)
	id := session.Get("id")
	if id == nil {
		c.String(http.StatusUnauthorized, "Unauthorized")
		c.Abort()
		return
	}

	isAdmin, _ := session.Get("isAdmin").(bool)
	if !isAdmin {
		c.String(http.StatusForbidden, "Admin access required")
		c.Abort()
		return
	}

	c.Next()
}

// GetUser returns the account name of the session user, or an empty string.
func GetUser(c *gin.Context) string {
	userID := sessions.Default(c).Get("id")
	if userID != nil {
		return userID.(string)
	}
	return ""
}

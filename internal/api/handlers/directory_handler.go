package handlers

import (
	"errors"
	"net/http"

	"github.com/cpp-cyber/dirauth/internal/directory"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// =================================================
// Directory Lookup / Mutation Handlers
// =================================================

type DirectoryHandler struct {
	service *directory.Service
	log     *zap.Logger
}

// NewDirectoryHandler creates a new directory handler.
func NewDirectoryHandler(service *directory.Service, log *zap.Logger) *DirectoryHandler {
	return &DirectoryHandler{
		service: service,
		log:     log,
	}
}

// GetUserHandler returns a single user by account name
func (h *DirectoryHandler) GetUserHandler(c *gin.Context) {
	username := c.Param("username")

	user, err := h.service.FindUser(c.Request.Context(), username, true)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, directory.ErrAmbiguousResult):
			c.JSON(http.StatusConflict, gin.H{"error": "Username matches more than one entry"})
		default:
			h.log.Error("user lookup failed", zap.String("username", username), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ADMIN: GetUsersHandler returns all users with resolved groups
func (h *DirectoryHandler) GetUsersHandler(c *gin.Context) {
	users, err := h.service.Lookup().SynchronizeAllUsers(c.Request.Context())
	if users == nil && err != nil {
		h.log.Error("user synchronization failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve users"})
		return
	}

	// Per-entry group failures are tolerated; the affected users come back
	// without groups.
	if err != nil {
		h.log.Error("some group resolutions failed during user synchronization", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"count": len(users),
	})
}

// ADMIN: GetGroupsHandler returns all groups
func (h *DirectoryHandler) GetGroupsHandler(c *gin.Context) {
	groups, err := h.service.Lookup().SynchronizeAllGroups(c.Request.Context())
	if err != nil {
		h.log.Error("group synchronization failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve groups"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"groups": groups,
		"count":  len(groups),
	})
}

// ModifyEntryHandler applies attribute changes to an entry. Supplying a
// password performs the change as that entry (self-service); otherwise the
// admin session is used.
func (h *DirectoryHandler) ModifyEntryHandler(c *gin.Context) {
	var req ModifyEntryRequest
	if !validateAndBind(c, &req) {
		return
	}

	err := h.service.Modify(c.Request.Context(), req.DN, req.Changes, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		h.log.Error("modify failed", zap.String("dn", req.DN), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to modify entry"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Entry modified"})
}

// ADMIN: AddEntryHandler creates a new entry under the configured base
func (h *DirectoryHandler) AddEntryHandler(c *gin.Context) {
	var req AddEntryRequest
	if !validateAndBind(c, &req) {
		return
	}

	entry, err := h.service.Add(c.Request.Context(), req.Attributes)
	if err != nil {
		if errors.Is(err, directory.ErrOperationNotSupported) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "Entry creation is not configured"})
			return
		}
		h.log.Error("add failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create entry"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}

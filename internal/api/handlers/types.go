package handlers

import (
	"net/http"

	"github.com/cpp-cyber/dirauth/internal/directory"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// API endpoint request structures

type UsernamePasswordRequest struct {
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required"`
}

type ModifyEntryRequest struct {
	DN      string             `json:"dn" validate:"required"`
	Changes []directory.Change `json:"changes" validate:"required,min=1"`

	// Username ties the modification to a cached account-name record so it
	// can be invalidated. Password switches to a self-service bind as the
	// modified entry.
	Username string `json:"username"`
	Password string `json:"password"`
}

type AddEntryRequest struct {
	Attributes map[string][]string `json:"attributes" validate:"required"`
}

var validate = validator.New()

// validateAndBind binds the JSON body into req and validates it, writing the
// error response itself on failure.
func validateAndBind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}

	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}

	return true
}

package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/edustack/campus-api/internal/middleware"
	"github.com/edustack/campus-api/internal/models"
)

// claimsFromContext pulls the JWT claims the auth middleware stored, or nil
// when the request never passed through it.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}

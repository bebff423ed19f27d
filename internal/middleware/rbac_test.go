package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/edustack/campus-api/internal/models"
)

func rankRouter(min models.Role, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	})
	r.Use(RequireMinRank(min))
	r.GET("/", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireMinRankAllowsHigherRank(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Roles: []string{string(models.RoleDirector)}}
	w := httptest.NewRecorder()
	rankRouter(models.RoleAdmin, claims).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequireMinRankRejectsLowerRank(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Roles: []string{string(models.RoleStudent), string(models.RoleTeacher)}}
	w := httptest.NewRecorder()
	rankRouter(models.RoleAdmin, claims).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireMinRankRejectsMissingClaims(t *testing.T) {
	w := httptest.NewRecorder()
	rankRouter(models.RoleTeacher, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRolesMatchesAnyListedRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "u1", Roles: []string{string(models.RoleTeacher)}})
		c.Next()
	})
	r.Use(RequireRoles(models.RoleAdmin, models.RoleTeacher))
	r.GET("/", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

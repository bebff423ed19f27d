package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/edustack/campus-api/internal/middleware"
	"github.com/edustack/campus-api/internal/models"
)

func TestGovernanceHandlerRequestRoleWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewGovernanceHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/role-requests", bytes.NewReader([]byte(`{"role":"TEACHER"}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.RequestRole(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGovernanceHandlerUpdateRolesInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewGovernanceHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/users/u1/roles", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "u1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Roles: []string{string(models.RoleAdmin)}})

	handler.UpdateRoles(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGovernanceHandlerAssignTeacherMissingUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewGovernanceHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/modules/m1/teachers", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "m1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Roles: []string{string(models.RoleAdmin)}})

	handler.AssignTeacher(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

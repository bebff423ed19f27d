package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/internal/service"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/response"
)

// GovernanceHandler exposes role and assignment governance endpoints.
type GovernanceHandler struct {
	governance *service.GovernanceService
}

// NewGovernanceHandler constructs GovernanceHandler.
func NewGovernanceHandler(governance *service.GovernanceService) *GovernanceHandler {
	return &GovernanceHandler{governance: governance}
}

type roleRequestPayload struct {
	Role string `json:"role" binding:"required"`
}

type updateRolesPayload struct {
	Roles []string `json:"roles" binding:"required"`
}

type assignTeacherPayload struct {
	UserID string `json:"user_id" binding:"required"`
}

// RequestRole godoc
// @Summary Request a role elevation for the calling account
// @Tags Governance
// @Accept json
// @Produce json
// @Param payload body roleRequestPayload true "Requested role"
// @Success 204
// @Router /role-requests [post]
func (h *GovernanceHandler) RequestRole(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req roleRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.governance.RequestRole(c.Request.Context(), claims.UserID, models.Role(req.Role)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ApproveRoleRequest godoc
// @Summary Approve a pending role request
// @Tags Governance
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body roleRequestPayload true "Role being granted"
// @Success 204
// @Router /users/{id}/role-requests/approve [post]
func (h *GovernanceHandler) ApproveRoleRequest(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req roleRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.governance.ApproveRoleRequest(c.Request.Context(), claims.UserID, c.Param("id"), models.Role(req.Role)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RejectRoleRequest godoc
// @Summary Reject a pending role request
// @Tags Governance
// @Produce json
// @Param id path string true "User ID"
// @Success 204
// @Router /users/{id}/role-requests/reject [post]
func (h *GovernanceHandler) RejectRoleRequest(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.governance.RejectRoleRequest(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateRoles godoc
// @Summary Replace a user's role set
// @Tags Governance
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body updateRolesPayload true "New role set"
// @Success 204
// @Router /users/{id}/roles [put]
func (h *GovernanceHandler) UpdateRoles(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req updateRolesPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	roles := make([]models.Role, len(req.Roles))
	for i, r := range req.Roles {
		roles[i] = models.Role(r)
	}
	if err := h.governance.UpdateUserRoles(c.Request.Context(), claims.UserID, c.Param("id"), roles); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignTeacher godoc
// @Summary Assign a teacher to a module
// @Tags Governance
// @Accept json
// @Produce json
// @Param id path string true "Module ID"
// @Param payload body assignTeacherPayload true "Teacher user ID"
// @Success 204
// @Router /modules/{id}/teachers [post]
func (h *GovernanceHandler) AssignTeacher(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req assignTeacherPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.governance.AssignTeacher(c.Request.Context(), claims.UserID, c.Param("id"), req.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UnassignTeacher godoc
// @Summary Remove a teacher from a module
// @Tags Governance
// @Produce json
// @Param id path string true "Module ID"
// @Param userId path string true "Teacher user ID"
// @Success 204
// @Router /modules/{id}/teachers/{userId} [delete]
func (h *GovernanceHandler) UnassignTeacher(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.governance.UnassignTeacher(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("userId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

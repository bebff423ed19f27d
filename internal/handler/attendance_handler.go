package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/internal/service"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/response"
)

// AttendanceHandler exposes attendance and participation endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

type markAttendancePayload struct {
	UserID string `json:"user_id" binding:"required"`
	Status string `json:"status" binding:"required"`
}

type bulkMarkPayload struct {
	UserIDs []string `json:"user_ids" binding:"required,min=1"`
}

// Mark godoc
// @Summary Record an attendance status for one student
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body markAttendancePayload true "Mark payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req markAttendancePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	status := models.AttendanceStatus(strings.ToUpper(req.Status))
	summary, err := h.attendance.Mark(c.Request.Context(), claims.UserID, c.Param("id"), req.UserID, status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"summary": summary}, nil)
}

// BulkMarkPresent godoc
// @Summary Mark a list of students present for a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body bulkMarkPayload true "Student IDs"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance/bulk [post]
func (h *AttendanceHandler) BulkMarkPresent(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req bulkMarkPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	marked, err := h.attendance.BulkMarkPresent(c.Request.Context(), claims.UserID, c.Param("id"), req.UserIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"marked_count": marked, "requested_count": len(req.UserIDs)}, nil)
}

// Summary godoc
// @Summary Participation summary for one student in a batch
// @Tags Attendance
// @Produce json
// @Param id path string true "Batch ID"
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/participation/{userId} [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	summary, err := h.attendance.Summary(c.Request.Context(), c.Param("id"), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Recompute godoc
// @Summary Rebuild a participation summary from the attendance ledger
// @Tags Attendance
// @Produce json
// @Param id path string true "Batch ID"
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/participation/{userId}/recompute [post]
func (h *AttendanceHandler) Recompute(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.attendance.RecomputeSummary(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

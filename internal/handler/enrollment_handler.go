package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edustack/campus-api/internal/service"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/response"
)

// EnrollmentHandler exposes batch enrollment endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

type joinedWhatsAppPayload struct {
	Joined bool `json:"joined"`
}

// Enroll godoc
// @Summary Enroll the calling user in a batch
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.AlreadyEnrolled {
		response.JSON(c, http.StatusOK, result, nil)
		return
	}
	response.Created(c, result)
}

// MarkJoinedWhatsApp godoc
// @Summary Record whether the caller joined the batch group chat
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body joinedWhatsAppPayload true "Joined flag"
// @Success 204
// @Router /batches/{id}/whatsapp [put]
func (h *EnrollmentHandler) MarkJoinedWhatsApp(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req joinedWhatsAppPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.enrollments.MarkJoinedWhatsApp(c.Request.Context(), claims.UserID, c.Param("id"), req.Joined); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListByBatch godoc
// @Summary List the roster of a batch
// @Tags Enrollments
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/enrollments [get]
func (h *EnrollmentHandler) ListByBatch(c *gin.Context) {
	enrollments, err := h.enrollments.ListByBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

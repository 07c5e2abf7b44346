package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/service"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/response"
)

// EnrollmentHandler exposes booking endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List enrollments
// @Description Students see their own bookings, including cancellations still inside the visibility window. Admins see everything.
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param classId query string false "Filter by class"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.StudentID = c.Query("studentId")
	filter.ClassID = c.Query("classId")
	filter.Status = models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Cancel godoc
// @Summary Cancel a booking
// @Description Marks the enrollment CANCELLED. The row stays visible to its owner for the visibility window and can be reactivated until it expires.
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/cancel [post]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	enrollment, err := h.enrollments.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Reactivate godoc
// @Summary Reactivate a cancelled booking
// @Description Restores a cancelled enrollment to ACTIVE when its visibility window has not expired. Status flip and audit event commit together.
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/{id}/reactivate [post]
func (h *EnrollmentHandler) Reactivate(c *gin.Context) {
	enrollment, err := h.enrollments.Reactivate(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// History godoc
// @Summary List the audit trail of a booking
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/events [get]
func (h *EnrollmentHandler) History(c *gin.Context) {
	events, err := h.enrollments.History(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

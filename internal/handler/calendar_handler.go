package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/service"
	appErrors "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/errors"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/response"
)

// CalendarHandler exposes the public booking calendar.
type CalendarHandler struct {
	calendar *service.CalendarService
}

// NewCalendarHandler constructs CalendarHandler.
func NewCalendarHandler(calendar *service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendar: calendar}
}

// ListClasses godoc
// @Summary List bookable classes
// @Tags Calendar
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /calendar/classes [get]
func (h *CalendarHandler) ListClasses(c *gin.Context) {
	classes, err := h.calendar.ListClasses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// ListSessions godoc
// @Summary List calendar sessions
// @Description Returns scheduled class sessions inside the requested date range.
// @Tags Calendar
// @Produce json
// @Param classId query string false "Filter by class"
// @Param from query string false "Range start (RFC 3339)"
// @Param to query string false "Range end (RFC 3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /calendar/sessions [get]
func (h *CalendarHandler) ListSessions(c *gin.Context) {
	var filter models.SessionFilter
	filter.ClassID = c.Query("classId")

	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from date"))
			return
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to date"))
			return
		}
		filter.To = &to
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	page, err := h.calendar.ListSessions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	pagination := &models.Pagination{
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalCount: page.Total,
	}
	response.JSON(c, http.StatusOK, page.Sessions, pagination)
}

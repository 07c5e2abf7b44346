package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/service"
	appErrors "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/errors"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/response"
)

// ExportHandler exposes admin report exports.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Enrollments godoc
// @Summary Export the enrollment report
// @Tags Exports
// @Produce json
// @Param format query string false "csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /exports/enrollments [post]
func (h *ExportHandler) Enrollments(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.ExportEnrollments(c.Request.Context(), format, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Payments godoc
// @Summary Export the payment report
// @Tags Exports
// @Produce json
// @Param from query string true "Range start (RFC 3339)"
// @Param to query string true "Range end (RFC 3339)"
// @Param format query string false "csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /exports/payments [post]
func (h *ExportHandler) Payments(c *gin.Context) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from date"))
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to date"))
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.ExportPayments(c.Request.Context(), from, to, format, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a rendered export
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	path, err := h.exports.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.File(path)
}

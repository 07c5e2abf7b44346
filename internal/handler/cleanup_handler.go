package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/service"
)

// CleanupHandler exposes the cancellation expiry sweep over HTTP so an
// external scheduler can trigger it in addition to the in-process cron.
type CleanupHandler struct {
	cleanup *service.CleanupService
}

// NewCleanupHandler constructs CleanupHandler.
func NewCleanupHandler(cleanup *service.CleanupService) *CleanupHandler {
	return &CleanupHandler{cleanup: cleanup}
}

// Run godoc
// @Summary Run the cancellation expiry sweep
// @Description Logs a CLEANUP event for every cancelled enrollment past its visibility window and purges audit events past retention. Safe to call repeatedly.
// @Tags Cleanup
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /cleanup/run [post]
func (h *CleanupHandler) Run(c *gin.Context) {
	result, err := h.cleanup.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":   false,
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"cleaned_enrollments": result.CleanedEnrollments,
		"timestamp":           result.Timestamp.Format(time.RFC3339),
	})
}

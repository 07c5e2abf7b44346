package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/service"
	appErrors "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/errors"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/response"
)

// PaymentHandler exposes checkout and verification endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreateCheckout godoc
// @Summary Open a checkout session
// @Description Creates a processor checkout session for a class and records a pending payment.
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.CreateCheckoutRequest true "Checkout payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /payments/checkout [post]
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	var req service.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid checkout payload"))
		return
	}

	result, err := h.payments.CreateCheckout(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Verify godoc
// @Summary Verify a checkout session
// @Description Confirms the session with the payment processor. A paid session marks the payment and creates the enrollment in one transaction; anything else is rejected without touching internal state.
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.VerifyPaymentRequest true "Verification payload"
// @Success 200 {object} service.VerifyPaymentResult
// @Failure 400 {object} service.VerifyPaymentResult
// @Router /payments/verify [post]
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req service.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "sessionId is required",
		})
		return
	}

	result, err := h.payments.Verify(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrPaymentIncomplete.Code {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Payment not completed",
			})
			return
		}
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"message":            result.Message,
		"enrollment_created": result.EnrollmentCreated,
	})
}

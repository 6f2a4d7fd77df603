package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"course-service/internal/auth"
	"course-service/internal/gateway"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	signatureHeader    = "Stripe-Signature"
	signatureTolerance = 5 * time.Minute
	maxWebhookBytes    = 1 << 20
)

// createPaymentLink handles checkout link creation for a paid course
func (h *Handler) createPaymentLink(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	payment, err := h.payments.CreatePaymentLink(c.Request.Context(), auth.UserID(c), req.CourseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paymentLink": payment.PaymentLinkURL,
		"paymentId":   payment.ID,
	})
}

// paymentWebhook applies a gateway event. Anything but a malformed or
// unsigned payload is acknowledged so the gateway stops retrying.
func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if h.webhookSecret != "" {
		if err := gateway.VerifySignature(payload, c.GetHeader(signatureHeader), h.webhookSecret, signatureTolerance, time.Now()); err != nil {
			h.logger.Warn("Webhook signature rejected", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
	}

	event, err := gateway.ParseEvent(payload)
	if err != nil {
		h.logger.Warn("Webhook payload rejected", zap.Error(err))
		msg := "Malformed webhook event"
		if errors.Is(err, gateway.ErrMissingMetadata) {
			msg = "Invalid payment metadata"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	outcome, err := h.payments.HandleWebhook(c.Request.Context(), event)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}

// verifyEnrollment confirms the caller's paid enrollment after checkout
func (h *Handler) verifyEnrollment(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	enrollment, err := h.payments.VerifyEnrollment(c.Request.Context(), auth.UserID(c), req.CourseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"enrollmentId": enrollment.ID})
}

func (h *Handler) listUserPayments(c *gin.Context) {
	payments, err := h.payments.ListUserPayments(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func (h *Handler) listUserInvoices(c *gin.Context) {
	invoices, err := h.payments.ListUserInvoices(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

func (h *Handler) getPayment(c *gin.Context) {
	payment, err := h.payments.GetPayment(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

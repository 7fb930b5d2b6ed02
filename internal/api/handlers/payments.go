package handlers

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/payment"
)

const maxNotificationBytes = 1 << 20

type PaymentResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id,omitempty"`
}

// PaymentConfirmer is the part of the job manager the payment callback
// uses. Get lets redeliveries be recognised before a transition is tried.
type PaymentConfirmer interface {
	payment.Confirmer
	Get(ctx context.Context, id string) (*core.PrintJob, error)
}

type PaymentHandler struct {
	confirmer       PaymentConfirmer
	verifier        *payment.Verifier
	signatureHeader string
}

func NewPaymentHandler(confirmer PaymentConfirmer, verifier *payment.Verifier, signatureHeader string) *PaymentHandler {
	return &PaymentHandler{
		confirmer:       confirmer,
		verifier:        verifier,
		signatureHeader: signatureHeader,
	}
}

// Webhook receives provider callbacks. Anything the provider should not
// retry (ignored events, duplicates, captures for cancelled jobs) is
// acknowledged with 200.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes))
	if err != nil {
		badRequest(c, "failed to read body")
		return
	}

	if err := h.verifier.Verify(body, c.GetHeader(h.signatureHeader)); err != nil {
		log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("rejected payment notification")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
		return
	}

	n, err := payment.ParseNotification(body)
	switch {
	case errors.Is(err, payment.ErrIgnoredEvent):
		log.Debug().Str("event", n.Event).Str("payment_id", n.PaymentID).Msg("payment notification ignored")
		c.JSON(http.StatusOK, PaymentResponse{Status: "ignored"})
		return
	case err != nil:
		badRequest(c, err.Error())
		return
	}

	current, err := h.confirmer.Get(c.Request.Context(), n.JobID)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.settled(c, current, n) {
		return
	}

	job, err := h.confirmer.ConfirmPayment(c.Request.Context(), n.JobID, n.PaymentID)
	if err != nil {
		if errors.Is(err, core.ErrAlreadyInStatus) {
			log.Info().Str("job_id", n.JobID).Str("payment_id", n.PaymentID).Msg("duplicate payment notification")
			c.JSON(http.StatusOK, PaymentResponse{Status: "duplicate", JobID: n.JobID})
			return
		}
		respondError(c, err)
		return
	}

	if job.PaymentAmount != nil && n.AmountMinor > 0 {
		expected := int64(math.Round(*job.PaymentAmount * 100))
		if expected != n.AmountMinor {
			log.Warn().
				Str("job_id", job.ID).
				Str("payment_id", n.PaymentID).
				Int64("paid_minor", n.AmountMinor).
				Int64("expected_minor", expected).
				Str("currency", n.Currency).
				Msg("payment amount does not match job price")
		}
	}

	c.JSON(http.StatusOK, PaymentResponse{Status: "confirmed", JobID: job.ID})
}

// settled answers notifications for jobs that can no longer be confirmed.
// It reports whether a response was written.
func (h *PaymentHandler) settled(c *gin.Context, job *core.PrintJob, n payment.Notification) bool {
	switch {
	case job.Status.Charged() && (job.PaymentReference == "" || job.PaymentReference == n.PaymentID):
		log.Info().
			Str("job_id", job.ID).
			Str("payment_id", n.PaymentID).
			Str("status", string(job.Status)).
			Msg("duplicate payment notification")
		c.JSON(http.StatusOK, PaymentResponse{Status: "duplicate", JobID: job.ID})
	case job.Status.Charged():
		log.Error().
			Str("job_id", job.ID).
			Str("payment_id", n.PaymentID).
			Str("recorded_payment_id", job.PaymentReference).
			Int64("amount_minor", n.AmountMinor).
			Msg("second payment captured for an already paid job")
		c.JSON(http.StatusOK, PaymentResponse{Status: "already_paid", JobID: job.ID})
	case job.Status == core.JobStatusCancelled:
		log.Error().
			Str("job_id", job.ID).
			Str("payment_id", n.PaymentID).
			Int64("amount_minor", n.AmountMinor).
			Str("currency", n.Currency).
			Msg("payment captured for a cancelled job, refund required")
		c.JSON(http.StatusOK, PaymentResponse{Status: "cancelled", JobID: job.ID})
	default:
		return false
	}
	return true
}

func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/webhook", h.Webhook)
}

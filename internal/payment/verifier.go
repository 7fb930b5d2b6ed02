// Package payment turns payment-provider callbacks into confirmations.
// Callbacks are authenticated with an HMAC-SHA256 signature over the raw
// body, as Razorpay-style providers send them.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrMalformed        = errors.New("malformed payment notification")
	// ErrIgnoredEvent marks well-formed notifications that do not confirm a
	// payment, e.g. payment.failed.
	ErrIgnoredEvent = errors.New("payment event ignored")
)

// confirmingEvents are the provider events that mean money was captured.
var confirmingEvents = map[string]bool{
	"payment.captured": true,
	"order.paid":       true,
}

type Notification struct {
	Event       string
	PaymentID   string
	JobID       string
	AmountMinor int64
	Currency    string
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks signature, the hex HMAC-SHA256 of body.
func (v *Verifier) Verify(body []byte, signature string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string            `json:"id"`
				Amount   int64             `json:"amount"`
				Currency string            `json:"currency"`
				Notes    map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseNotification extracts the job a confirming notification refers to.
// The job id travels in the payment's notes under "job_id".
func ParseNotification(body []byte) (Notification, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wb.Event == "" {
		return Notification{}, fmt.Errorf("%w: missing event", ErrMalformed)
	}

	entity := wb.Payload.Payment.Entity
	n := Notification{
		Event:       wb.Event,
		PaymentID:   entity.ID,
		JobID:       entity.Notes["job_id"],
		AmountMinor: entity.Amount,
		Currency:    entity.Currency,
	}
	if !confirmingEvents[wb.Event] {
		return n, fmt.Errorf("%w: %s", ErrIgnoredEvent, wb.Event)
	}
	if n.JobID == "" {
		return n, fmt.Errorf("%w: payment %s carries no job_id note", ErrMalformed, n.PaymentID)
	}
	return n, nil
}

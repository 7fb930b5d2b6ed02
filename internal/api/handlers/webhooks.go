package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/webhook"
)

// WebhookPinger is the part of the webhook sender the admin API uses.
type WebhookPinger interface {
	Endpoints() []webhook.Endpoint
	Ping(ctx context.Context, name string) error
}

type WebhookResponse struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Signed bool     `json:"signed"`
}

type TestWebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type WebhookHandler struct {
	sender WebhookPinger
}

func NewWebhookHandler(sender WebhookPinger) *WebhookHandler {
	return &WebhookHandler{sender: sender}
}

// ListWebhooks shows the configured endpoints. Secrets are never returned.
func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	endpoints := h.sender.Endpoints()
	out := make([]WebhookResponse, 0, len(endpoints))
	for _, ep := range endpoints {
		events := ep.Events
		if len(events) == 0 {
			events = []string{"*"}
		}
		out = append(out, WebhookResponse{
			Name:   ep.Name,
			URL:    ep.URL,
			Events: events,
			Signed: ep.Secret != "",
		})
	}
	c.JSON(http.StatusOK, out)
}

// TestWebhook sends a ping to one endpoint. Delivery failures are reported
// in the body with 200; only an unknown endpoint is an HTTP error.
func (h *WebhookHandler) TestWebhook(c *gin.Context) {
	name := c.Param("name")
	err := h.sender.Ping(c.Request.Context(), name)
	switch {
	case errors.Is(err, webhook.ErrUnknownEndpoint):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Webhook not found"})
	case err != nil:
		c.JSON(http.StatusOK, TestWebhookResponse{Success: false, Message: fmt.Sprintf("Failed to send webhook: %v", err)})
	default:
		c.JSON(http.StatusOK, TestWebhookResponse{Success: true, Message: "Webhook test successful"})
	}
}

func RegisterWebhookRoutes(r *gin.RouterGroup, h *WebhookHandler) {
	r.GET("/webhooks", h.ListWebhooks)
	r.POST("/webhooks/:name/test", h.TestWebhook)
}

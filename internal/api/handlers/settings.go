package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/core"
)

type StorefrontSettings struct {
	Currency         string
	CheckoutButtonID string
	Limits           UploadLimits
}

type StorefrontResponse struct {
	Currency         string          `json:"currency"`
	CheckoutButtonID string          `json:"checkout_button_id,omitempty"`
	AcceptedTypes    []string        `json:"accepted_types"`
	MaxUploadBytes   int64           `json:"max_upload_bytes"`
	Prices           core.PriceTable `json:"prices"`
}

type SettingsHandler struct {
	storefront StorefrontSettings
}

func NewSettingsHandler(storefront StorefrontSettings) *SettingsHandler {
	return &SettingsHandler{storefront: storefront}
}

// GetStorefront returns what the upload page needs before a job exists.
func (h *SettingsHandler) GetStorefront(c *gin.Context) {
	accepted := h.storefront.Limits.AcceptedTypes
	if accepted == nil {
		accepted = []string{}
	}
	c.JSON(http.StatusOK, StorefrontResponse{
		Currency:         h.storefront.Currency,
		CheckoutButtonID: h.storefront.CheckoutButtonID,
		AcceptedTypes:    accepted,
		MaxUploadBytes:   h.storefront.Limits.MaxBytes,
		Prices:           core.Prices(),
	})
}

func RegisterSettingsRoutes(r *gin.RouterGroup, h *SettingsHandler) {
	r.GET("/storefront", h.GetStorefront)
}

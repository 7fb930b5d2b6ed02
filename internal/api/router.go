// Package api assembles the HTTP surface: public job submission and
// tracking, the payment callback, operator auth and the admin dashboard API.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/api/handlers"
	"github.com/orrn/printdesk/internal/api/middleware"
)

type Router struct {
	Jobs     *handlers.JobHandler
	Payments *handlers.PaymentHandler
	Settings *handlers.SettingsHandler
	Webhooks *handlers.WebhookHandler
	Auth     *middleware.AuthMiddleware
}

func (rt Router) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	rt.Jobs.RegisterRoutes(v1)
	rt.Payments.RegisterRoutes(v1)
	handlers.RegisterSettingsRoutes(v1, rt.Settings)
	rt.Auth.RegisterRoutes(v1)

	admin := v1.Group("/admin", rt.Auth.RequireAuth())
	rt.Jobs.RegisterAdminRoutes(admin)
	if rt.Webhooks != nil {
		handlers.RegisterWebhookRoutes(admin, rt.Webhooks)
	}

	return r
}

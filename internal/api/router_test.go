package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/api"
	"github.com/orrn/printdesk/internal/api/handlers"
	"github.com/orrn/printdesk/internal/api/middleware"
	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/db/memory"
	"github.com/orrn/printdesk/internal/payment"
	"github.com/orrn/printdesk/internal/storage"
)

func newRouter(t *testing.T) (http.Handler, *middleware.AuthMiddleware) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	local, err := storage.NewLocalStore(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	manager := core.NewJobManager(store, local)
	auth, err := middleware.NewAuthMiddleware(context.Background(), store, middleware.AuthConfig{})
	if err != nil {
		t.Fatal(err)
	}
	limits := handlers.UploadLimits{MaxBytes: 1 << 20, AcceptedTypes: []string{".pdf"}}

	rt := api.Router{
		Jobs:     handlers.NewJobHandler(manager, local, limits, "INR"),
		Payments: handlers.NewPaymentHandler(manager, payment.NewVerifier("secret"), "X-Razorpay-Signature"),
		Settings: handlers.NewSettingsHandler(handlers.StorefrontSettings{Currency: "INR", Limits: limits}),
		Auth:     auth,
	}
	return rt.Handler(), auth
}

func TestRoutes(t *testing.T) {
	r, auth := newRouter(t)
	token, err := auth.GenerateToken()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		method string
		path   string
		token  string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/storefront", "", http.StatusOK},
		{http.MethodGet, "/api/v1/auth/status", "", http.StatusOK},
		{http.MethodGet, "/api/v1/jobs/unknown", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/admin/jobs", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/admin/jobs/stats", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/admin/jobs", token, http.StatusOK},
		{http.MethodGet, "/api/v1/admin/jobs/stats", token, http.StatusOK},
		{http.MethodGet, "/api/v1/admin/jobs/unknown/history", token, http.StatusNotFound},
		{http.MethodPost, "/api/v1/payments/webhook", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body)
			}
			if w.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("missing request id")
			}
		})
	}
}

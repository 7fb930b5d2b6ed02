package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/orrn/printdesk/internal/api"
	"github.com/orrn/printdesk/internal/api/handlers"
	"github.com/orrn/printdesk/internal/api/middleware"
	"github.com/orrn/printdesk/internal/config"
	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/event"
	"github.com/orrn/printdesk/internal/payment"
	"github.com/orrn/printdesk/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	be, err := openBackend(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer be.close()

	artifacts, documents, err := openArtifacts(cfg.Storage, cfg.Server.MaxUploadBytes)
	if err != nil {
		return err
	}

	bus := event.NewBus()
	manager := core.NewJobManager(be.jobs, artifacts, core.WithEvents(bus))

	if cfg.Events.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.Events.RedisAddr, err)
		}
		bus.Subscribe(event.AllEvents, event.NewRedisPublisher(rdb, cfg.Events.Channel).Handler())
		log.Info().Str("channel", cfg.Events.Channel).Msg("publishing job events to redis")
	}

	sender := webhook.NewWebhookSender(webhookEndpoints(cfg.Webhooks), webhook.WebhookConfig{
		RetryCount:  cfg.Webhooks.RetryCount,
		RetryDelay:  cfg.Webhooks.RetryDelay,
		Timeout:     cfg.Webhooks.Timeout,
		WorkerCount: cfg.Webhooks.WorkerCount,
		QueueSize:   cfg.Webhooks.QueueSize,
	})
	if len(cfg.Webhooks.Endpoints) > 0 {
		sender.Start()
		defer sender.Stop()
		bus.Subscribe(event.AllEvents, sender.Handle)
	}

	if cfg.Payment.StubDelay > 0 {
		stub := payment.NewStubConfirmer(manager, cfg.Payment.StubDelay)
		defer stub.Stop()
		bus.Subscribe("job."+string(core.JobStatusAwaitingPayment), stub.Handle)
		log.Warn().Dur("delay", cfg.Payment.StubDelay).Msg("stub payments enabled, every job is confirmed without a provider")
	}

	auth, err := middleware.NewAuthMiddleware(ctx, be.settings, middleware.AuthConfig{
		TokenDuration: cfg.Auth.TokenDuration,
		CookieName:    cfg.Auth.CookieName,
		SecureCookies: cfg.Auth.SecureCookies,
	})
	if err != nil {
		return err
	}

	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	limits := handlers.UploadLimits{
		MaxBytes:      cfg.Server.MaxUploadBytes,
		AcceptedTypes: cfg.Storage.AcceptedTypes,
	}
	router := api.Router{
		Jobs:     handlers.NewJobHandler(manager, documents, limits, cfg.Payment.Currency),
		Payments: handlers.NewPaymentHandler(manager, payment.NewVerifier(cfg.Payment.WebhookSecret), cfg.Payment.SignatureHeader),
		Settings: handlers.NewSettingsHandler(handlers.StorefrontSettings{
			Currency:         cfg.Payment.Currency,
			CheckoutButtonID: cfg.Payment.CheckoutButtonID,
			Limits:           limits,
		}),
		Webhooks: handlers.NewWebhookHandler(sender),
		Auth:     auth,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("database", cfg.Database.Driver).
			Str("storage", cfg.Storage.Driver).
			Msg("printdesk listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}

func webhookEndpoints(wc config.WebhooksConfig) []webhook.Endpoint {
	out := make([]webhook.Endpoint, 0, len(wc.Endpoints))
	for _, ep := range wc.Endpoints {
		out = append(out, webhook.Endpoint{
			Name:   ep.Name,
			URL:    ep.URL,
			Secret: ep.Secret,
			Events: ep.Events,
		})
	}
	return out
}

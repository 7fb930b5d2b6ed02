// Package webhook delivers job events to the HTTP endpoints listed in the
// configuration, signing each body with the endpoint's secret.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orrn/printdesk/internal/core"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
)

// PingEvent is sent by Ping to check an endpoint is reachable.
const PingEvent = "ping"

var (
	errShutdown        = errors.New("shutdown requested")
	ErrUnknownEndpoint = errors.New("unknown webhook endpoint")
)

type Endpoint struct {
	Name   string
	URL    string
	Secret string
	// Events lists event names such as "job.paid". Empty or "*" matches
	// every event.
	Events []string
}

func (e Endpoint) Wants(name string) bool {
	return len(e.Events) == 0 || slices.Contains(e.Events, "*") || slices.Contains(e.Events, name)
}

type WebhookPayload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      *core.JobEvent `json:"data,omitempty"`
}

type WebhookConfig struct {
	RetryCount  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
}

type webhookTask struct {
	endpoint Endpoint
	payload  *WebhookPayload
	attempt  int
}

// StatusError is returned when an endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http error: %d", e.StatusCode)
}

type WebhookSender struct {
	endpoints   []Endpoint
	httpClient  *http.Client
	retryCount  int
	retryDelay  time.Duration
	workerCount int
	queue       chan *webhookTask
	ctx         context.Context
	cancel      context.CancelFunc
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewWebhookSender(endpoints []Endpoint, config WebhookConfig) *WebhookSender {
	if config.RetryCount <= 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 3
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WebhookSender{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retryCount:  config.RetryCount,
		retryDelay:  config.RetryDelay,
		workerCount: config.WorkerCount,
		queue:       make(chan *webhookTask, config.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
		stopCh:      make(chan struct{}),
	}
}

func (s *WebhookSender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *WebhookSender) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.cancel()
	})
	s.wg.Wait()
}

// Handle queues ev for every endpoint subscribed to it. It never blocks;
// when the queue is full the delivery is dropped and logged.
func (s *WebhookSender) Handle(ctx context.Context, ev core.JobEvent) error {
	name := ev.Name()
	for _, ep := range s.endpoints {
		if !ep.Wants(name) {
			continue
		}

		task := &webhookTask{
			endpoint: ep,
			payload: &WebhookPayload{
				Event:     name,
				Timestamp: time.Now().UTC(),
				Data:      &ev,
			},
		}

		select {
		case s.queue <- task:
		default:
			log.Warn().Str("webhook", ep.Name).Str("event", name).Str("job_id", ev.JobID).Msg("webhook queue full, dropping delivery")
		}
	}
	return nil
}

func (s *WebhookSender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case task := <-s.queue:
			if err := s.sendWithRetry(task); err != nil {
				log.Error().Err(err).
					Int("worker", id).
					Str("webhook", task.endpoint.Name).
					Str("event", task.payload.Event).
					Int("attempts", task.attempt).
					Msg("webhook delivery failed")
			}
		}
	}
}

func (s *WebhookSender) sendWithRetry(task *webhookTask) error {
	var lastErr error
	for task.attempt < s.retryCount {
		task.attempt++

		err := s.sendRequest(s.ctx, task.endpoint, task.payload)
		if err == nil {
			log.Debug().Str("webhook", task.endpoint.Name).Str("event", task.payload.Event).Msg("webhook delivered")
			return nil
		}

		lastErr = err

		if isClientError(err) {
			return fmt.Errorf("client error, not retrying: %w", err)
		}

		if task.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(task.attempt-1))
			log.Warn().Err(err).
				Str("webhook", task.endpoint.Name).
				Int("attempt", task.attempt).
				Int("max_attempts", s.retryCount).
				Dur("backoff", backoff).
				Msg("retrying webhook")

			select {
			case <-s.stopCh:
				return errShutdown
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Endpoints returns the configured endpoints.
func (s *WebhookSender) Endpoints() []Endpoint {
	return slices.Clone(s.endpoints)
}

// Ping synchronously delivers a single signed ping to the named endpoint,
// without retries.
func (s *WebhookSender) Ping(ctx context.Context, name string) error {
	for _, ep := range s.endpoints {
		if ep.Name == name {
			return s.sendRequest(ctx, ep, &WebhookPayload{Event: PingEvent, Timestamp: time.Now().UTC()})
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
}

func (s *WebhookSender) sendRequest(ctx context.Context, ep Endpoint, payload *WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, payload.Event)
	if ep.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, ep.Secret))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
	}
	return false
}

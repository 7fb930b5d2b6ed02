package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/webhook"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEndpoint_Wants(t *testing.T) {
	tests := []struct {
		events []string
		name   string
		want   bool
	}{
		{nil, "job.paid", true},
		{[]string{"*"}, "job.completed", true},
		{[]string{"job.paid"}, "job.paid", true},
		{[]string{"job.paid"}, "job.printing", false},
	}
	for _, tt := range tests {
		ep := webhook.Endpoint{Events: tt.events}
		if got := ep.Wants(tt.name); got != tt.want {
			t.Errorf("Wants(%v, %s) = %v, want %v", tt.events, tt.name, got, tt.want)
		}
	}
}

func TestWebhookSender_DeliversSignedPayload(t *testing.T) {
	type received struct {
		body      []byte
		signature string
		event     string
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- received{body: b, signature: r.Header.Get(webhook.SignatureHeader), event: r.Header.Get(webhook.EventHeader)}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := webhook.NewWebhookSender([]webhook.Endpoint{
		{Name: "paid-only", URL: srv.URL, Secret: "s3cret", Events: []string{"job.paid"}},
	}, webhook.WebhookConfig{RetryDelay: time.Millisecond})
	s.Start()
	defer s.Stop()

	ctx := context.Background()
	s.Handle(ctx, core.JobEvent{JobID: "skip", To: core.JobStatusPrinting})
	s.Handle(ctx, core.JobEvent{Type: core.EventJobStatusChanged, JobID: "j1", From: core.JobStatusAwaitingPayment, To: core.JobStatusPaid})

	select {
	case r := <-got:
		if r.event != "job.paid" {
			t.Fatalf("event header = %q", r.event)
		}
		if r.signature != webhook.Sign(r.body, "s3cret") {
			t.Fatal("signature mismatch")
		}
		var payload webhook.WebhookPayload
		if err := json.Unmarshal(r.body, &payload); err != nil {
			t.Fatal(err)
		}
		if payload.Data.JobID != "j1" || payload.Event != "job.paid" {
			t.Fatalf("payload = %+v", payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("webhook not delivered")
	}

	select {
	case r := <-got:
		t.Fatalf("unexpected delivery %s", r.event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebhookSender_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := webhook.NewWebhookSender([]webhook.Endpoint{{Name: "flaky", URL: srv.URL}},
		webhook.WebhookConfig{RetryCount: 3, RetryDelay: time.Millisecond, WorkerCount: 1})
	s.Start()
	defer s.Stop()

	s.Handle(context.Background(), core.JobEvent{JobID: "j1", To: core.JobStatusCompleted})
	waitFor(t, func() bool { return calls.Load() == 3 })
}

func TestWebhookSender_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	s := webhook.NewWebhookSender([]webhook.Endpoint{{Name: "gone", URL: srv.URL}},
		webhook.WebhookConfig{RetryCount: 3, RetryDelay: time.Millisecond, WorkerCount: 1})
	s.Start()

	s.Handle(context.Background(), core.JobEvent{JobID: "j1", To: core.JobStatusCompleted})
	waitFor(t, func() bool { return calls.Load() >= 1 })
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestWebhookSender_Ping(t *testing.T) {
	type received struct {
		body  []byte
		event string
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- received{body: b, event: r.Header.Get(webhook.EventHeader)}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := webhook.NewWebhookSender([]webhook.Endpoint{{Name: "ops", URL: srv.URL}}, webhook.WebhookConfig{})
	if err := s.Ping(context.Background(), "ops"); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	r := <-got
	event, body := r.event, r.body
	if event != webhook.PingEvent {
		t.Errorf("event header = %q", event)
	}
	var payload webhook.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Data != nil {
		t.Errorf("ping carries data %+v", payload.Data)
	}

	if err := s.Ping(context.Background(), "nobody"); !errors.Is(err, webhook.ErrUnknownEndpoint) {
		t.Errorf("unknown endpoint err = %v", err)
	}
	if got := s.Endpoints(); len(got) != 1 || got[0].Name != "ops" {
		t.Errorf("Endpoints() = %+v", got)
	}
}

func TestWebhookSender_PingReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := webhook.NewWebhookSender([]webhook.Endpoint{{Name: "down", URL: srv.URL}}, webhook.WebhookConfig{})
	err := s.Ping(context.Background(), "down")
	var se *webhook.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want StatusError 503", err)
	}
}

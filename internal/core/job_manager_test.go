package core_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/db/memory"
)

// ---- fakes ----

type fakeArtifacts struct {
	stored [][]byte
	err    error
}

func (a *fakeArtifacts) Store(ctx context.Context, name, contentType string, r io.Reader) (core.Artifact, error) {
	if a.err != nil {
		return core.Artifact{}, a.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Artifact{}, err
	}
	a.stored = append(a.stored, b)
	return core.Artifact{Ref: "mem://" + name, Size: int64(len(b)), ContentType: contentType}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.JobEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev core.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

// barrierStore holds every Get until n callers have arrived, so concurrent
// transitions all read the same status before any of them writes.
type barrierStore struct {
	*memory.Store
	wg *sync.WaitGroup
}

func (s *barrierStore) Get(ctx context.Context, id string) (*core.PrintJob, error) {
	job, err := s.Store.Get(ctx, id)
	s.wg.Done()
	s.wg.Wait()
	return job, err
}

// ---- helpers ----

var fixedNow = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T, opts ...core.Option) (*core.JobManager, *memory.Store, *fakeArtifacts) {
	t.Helper()
	store := memory.New()
	artifacts := &fakeArtifacts{}
	opts = append([]core.Option{core.WithClock(func() time.Time { return fixedNow })}, opts...)
	return core.NewJobManager(store, artifacts, opts...), store, artifacts
}

func submit(t *testing.T, m *core.JobManager, cfg core.PrintConfig) *core.PrintJob {
	t.Helper()
	job, err := m.Submit(context.Background(), core.SubmitRequest{
		FileName:    "flyer.pdf",
		ContentType: "application/pdf",
		Config:      cfg,
		Body:        strings.NewReader("%PDF-1.7"),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return job
}

// ---- tests ----

func TestJobManager_SubmitAwaitsPayment(t *testing.T) {
	pub := &recordingPublisher{}
	m, store, artifacts := newManager(t, core.WithEvents(pub))

	job := submit(t, m, core.DefaultPrintConfig())

	if job.ID == "" {
		t.Fatal("expected id")
	}
	if job.Status != core.JobStatusAwaitingPayment {
		t.Fatalf("status = %s", job.Status)
	}
	if job.DocumentRef != "mem://flyer.pdf" || job.FileSize != 8 || job.FileType != "application/pdf" {
		t.Fatalf("artifact fields = %q %d %q", job.DocumentRef, job.FileSize, job.FileType)
	}
	if job.PaymentAmount != nil || job.PaymentTimestamp != nil {
		t.Fatal("payment fields set before payment")
	}
	if len(artifacts.stored) != 1 || !bytes.Equal(artifacts.stored[0], []byte("%PDF-1.7")) {
		t.Fatalf("artifact not stored: %q", artifacts.stored)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != core.JobStatusAwaitingPayment {
		t.Fatalf("stored status = %s", stored.Status)
	}

	if len(pub.events) != 2 {
		t.Fatalf("events = %d, want 2", len(pub.events))
	}
	if pub.events[0].Type != core.EventJobCreated || pub.events[1].Name() != "job.awaiting_payment" {
		t.Fatalf("unexpected events %+v", pub.events)
	}

	history, err := m.History(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Trigger != core.TriggerArtifactStored {
		t.Fatalf("history = %+v", history)
	}
}

func TestJobManager_SubmitRejectsInvalidConfig(t *testing.T) {
	m, store, artifacts := newManager(t)

	cfg := core.DefaultPrintConfig()
	cfg.Copies = 0
	_, err := m.Submit(context.Background(), core.SubmitRequest{FileName: "x.pdf", Config: cfg, Body: strings.NewReader("x")})
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("err = %v", err)
	}
	if len(artifacts.stored) != 0 {
		t.Fatal("artifact stored for invalid config")
	}
	jobs, _ := store.ListAll(context.Background())
	if len(jobs) != 0 {
		t.Fatal("job created for invalid config")
	}
}

func TestJobManager_SubmitStorageFailure(t *testing.T) {
	m, store, artifacts := newManager(t)
	artifacts.err = errors.New("disk full")

	_, err := m.Submit(context.Background(), core.SubmitRequest{FileName: "x.pdf", Config: core.DefaultPrintConfig(), Body: strings.NewReader("x")})
	if !errors.Is(err, core.ErrStorage) {
		t.Fatalf("err = %v", err)
	}
	jobs, _ := store.ListAll(context.Background())
	if len(jobs) != 0 {
		t.Fatal("job created without a stored document")
	}
}

func TestJobManager_FullLifecycle(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	cfg := core.PrintConfig{Copies: 3, ColorMode: core.ColorModeColor, PaperSize: core.PaperSizeLegal, Orientation: core.OrientationPortrait, DoubleSided: true}
	job := submit(t, m, cfg)

	paid, err := m.ConfirmPayment(ctx, job.ID, "pay_123")
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if *paid.PaymentAmount != 54 || !paid.PaymentTimestamp.Equal(fixedNow) || paid.PaymentReference != "pay_123" {
		t.Fatalf("payment fields = %v %v %q", *paid.PaymentAmount, paid.PaymentTimestamp, paid.PaymentReference)
	}

	if _, err := m.Advance(ctx, job.ID, core.JobStatusPrinting); err != nil {
		t.Fatalf("printing: %v", err)
	}
	done, err := m.Advance(ctx, job.ID, core.JobStatusCompleted)
	if err != nil {
		t.Fatalf("completed: %v", err)
	}
	if done.Status != core.JobStatusCompleted || *done.PaymentAmount != 54 {
		t.Fatalf("completed job = %+v", done)
	}

	_, err = m.Advance(ctx, job.ID, core.JobStatusPrinting)
	if !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("completed->printing: %v", err)
	}

	history, err := m.History(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []core.JobStatus{core.JobStatusAwaitingPayment, core.JobStatusPaid, core.JobStatusPrinting, core.JobStatusCompleted}
	if len(history) != len(want) {
		t.Fatalf("history length = %d", len(history))
	}
	for i, h := range history {
		if h.To != want[i] {
			t.Fatalf("history[%d].To = %s, want %s", i, h.To, want[i])
		}
	}
}

func TestJobManager_TriggerOwnership(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	job := submit(t, m, core.DefaultPrintConfig())

	_, err := m.Advance(ctx, job.ID, core.JobStatusPaid)
	if !errors.Is(err, core.ErrTriggerNotPermitted) {
		t.Fatalf("operator marking paid: %v", err)
	}

	got, _ := m.Get(ctx, job.ID)
	if got.Status != core.JobStatusAwaitingPayment || got.PaymentAmount != nil {
		t.Fatalf("job changed after rejected transition: %+v", got)
	}
}

func TestJobManager_IllegalAdvanceLeavesStoredJob(t *testing.T) {
	pub := &recordingPublisher{}
	m, store, _ := newManager(t, core.WithEvents(pub))
	ctx := context.Background()

	id, err := store.Create(ctx, &core.PrintJob{
		FileName:    "flyer.pdf",
		PrintConfig: core.DefaultPrintConfig(),
		Timestamp:   fixedNow,
		DocumentRef: "mem://flyer.pdf",
	})
	if err != nil {
		t.Fatal(err)
	}
	before, _ := m.Get(ctx, id)

	_, err = m.Advance(ctx, id, core.JobStatusPrinting)
	if !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("pending -> printing: %v", err)
	}

	got, err := m.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.JobStatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if !reflect.DeepEqual(got, before) {
		t.Fatalf("stored job changed:\n got  %+v\n want %+v", got, before)
	}
	history, err := m.History(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("history = %+v, want empty", history)
	}
	if len(pub.events) != 0 {
		t.Fatalf("published %d events for a rejected transition", len(pub.events))
	}
}

func TestJobManager_DefaultClockMatchesStoredPrecision(t *testing.T) {
	m := core.NewJobManager(memory.New(), &fakeArtifacts{})
	job, err := m.Submit(context.Background(), core.SubmitRequest{
		FileName: "flyer.pdf",
		Config:   core.DefaultPrintConfig(),
		Body:     strings.NewReader("%PDF"),
	})
	if err != nil {
		t.Fatal(err)
	}
	for name, ts := range map[string]time.Time{"timestamp": job.Timestamp, "last_updated": job.LastUpdated} {
		if ts.Nanosecond()%int(time.Microsecond) != 0 {
			t.Errorf("%s %v carries sub-microsecond precision", name, ts)
		}
		if ts.Location() != time.UTC {
			t.Errorf("%s not in UTC", name)
		}
	}
}

func TestJobManager_DuplicatePaymentIsIdempotent(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	job := submit(t, m, core.DefaultPrintConfig())

	if _, err := m.ConfirmPayment(ctx, job.ID, "pay_1"); err != nil {
		t.Fatal(err)
	}
	_, err := m.ConfirmPayment(ctx, job.ID, "pay_1")
	if !errors.Is(err, core.ErrAlreadyInStatus) {
		t.Fatalf("second confirmation: %v", err)
	}
}

func TestJobManager_CancelOnlyBeforePayment(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	open := submit(t, m, core.DefaultPrintConfig())
	cancelled, err := m.Cancel(ctx, open.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != core.JobStatusCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}

	paid := submit(t, m, core.DefaultPrintConfig())
	if _, err := m.ConfirmPayment(ctx, paid.ID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Cancel(ctx, paid.ID); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("cancel paid job: %v", err)
	}
}

func TestJobManager_NotFound(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Get: %v", err)
	}
	if _, err := m.Advance(ctx, "missing", core.JobStatusPrinting); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := m.History(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("History: %v", err)
	}
}

func TestJobManager_PublishFailureDoesNotFailTransition(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	m, _, _ := newManager(t, core.WithEvents(pub))

	job := submit(t, m, core.DefaultPrintConfig())
	if job.Status != core.JobStatusAwaitingPayment {
		t.Fatalf("status = %s", job.Status)
	}
}

func TestJobManager_ConcurrentTransitionsConflict(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	seed := core.NewJobManager(mem, &fakeArtifacts{})
	job, err := seed.Submit(ctx, core.SubmitRequest{FileName: "a.pdf", Config: core.DefaultPrintConfig(), Body: strings.NewReader("a")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := seed.ConfirmPayment(ctx, job.ID, ""); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	m := core.NewJobManager(&barrierStore{Store: mem, wg: &wg}, &fakeArtifacts{})

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := m.Advance(ctx, job.ID, core.JobStatusPrinting)
			errs <- err
		}()
	}

	var ok, conflicts int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case errors.Is(err, core.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Fatalf("ok=%d conflicts=%d", ok, conflicts)
	}

	history, _ := mem.History(ctx, job.ID)
	if n := len(history); n != 3 {
		t.Fatalf("history entries = %d, want 3", n)
	}
}

func TestJobManager_ListAndStats(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clock := fixedNow
	m := core.NewJobManager(store, &fakeArtifacts{}, core.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	first := submit(t, m, core.DefaultPrintConfig())
	second := submit(t, m, core.DefaultPrintConfig())
	if _, err := m.ConfirmPayment(ctx, second.ID, ""); err != nil {
		t.Fatal(err)
	}

	jobs, err := m.List(ctx, "all", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 || jobs[0].ID != second.ID || jobs[1].ID != first.ID {
		t.Fatalf("list order = %v", ids(jobs))
	}

	paid, _ := m.List(ctx, "paid", "")
	if len(paid) != 1 || paid[0].ID != second.ID {
		t.Fatalf("paid filter = %v", ids(paid))
	}

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Revenue != 10 || stats.ByStatus[core.JobStatusAwaitingPayment] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestJobManager_Quote(t *testing.T) {
	m, _, _ := newManager(t)
	amount, err := m.Quote(core.PrintConfig{Copies: 2, ColorMode: core.ColorModeBlackAndWhite, PaperSize: core.PaperSizeA4, Orientation: core.OrientationPortrait})
	if err != nil || amount != 10 {
		t.Fatalf("Quote = %v, %v", amount, err)
	}
	if _, err := m.Quote(core.PrintConfig{}); !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("empty config: %v", err)
	}
}

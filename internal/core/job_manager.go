package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// JobStore is the persistence contract the manager relies on. Update must
// write every patch field atomically and only if the stored status still
// equals expect; otherwise it returns ErrConflict (or ErrNotFound).
type JobStore interface {
	Create(ctx context.Context, job *PrintJob) (string, error)
	Get(ctx context.Context, id string) (*PrintJob, error)
	ListAll(ctx context.Context) ([]PrintJob, error)
	Update(ctx context.Context, id string, expect JobStatus, patch JobPatch) error
	History(ctx context.Context, id string) ([]StatusChange, error)
}

type Artifact struct {
	Ref         string
	Size        int64
	ContentType string
}

// ArtifactStore durably keeps uploaded documents and returns an immutable
// reference to them.
type ArtifactStore interface {
	Store(ctx context.Context, name, contentType string, r io.Reader) (Artifact, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event JobEvent) error
}

type JobManager struct {
	store     JobStore
	artifacts ArtifactStore
	events    EventPublisher
	now       func() time.Time
}

type Option func(*JobManager)

// defaultClock stops at microseconds, the finest resolution every backend
// stores, so a job read back compares equal to the one returned.
func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func WithEvents(p EventPublisher) Option {
	return func(m *JobManager) { m.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(m *JobManager) { m.now = now }
}

func NewJobManager(store JobStore, artifacts ArtifactStore, opts ...Option) *JobManager {
	m := &JobManager{
		store:     store,
		artifacts: artifacts,
		now:       defaultClock,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type SubmitRequest struct {
	FileName    string
	ContentType string
	Config      PrintConfig
	Body        io.Reader
}

// Submit stores the document, records the job as pending and then moves it
// to awaiting_payment. If the last step fails the job stays pending and the
// error is returned; an operator can cancel it.
func (m *JobManager) Submit(ctx context.Context, req SubmitRequest) (*PrintJob, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrInvalidConfig)
	}
	if req.Body == nil {
		return nil, fmt.Errorf("%w: document is required", ErrInvalidConfig)
	}

	artifact, err := m.artifacts.Store(ctx, name, req.ContentType, req.Body)
	if err != nil {
		if !errors.Is(err, ErrStorage) {
			err = fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return nil, err
	}

	contentType := artifact.ContentType
	if contentType == "" {
		contentType = req.ContentType
	}

	now := m.now()
	job := &PrintJob{
		FileName:    name,
		PrintConfig: req.Config,
		Status:      JobStatusPending,
		Timestamp:   now,
		DocumentRef: artifact.Ref,
		FileSize:    artifact.Size,
		FileType:    contentType,
		LastUpdated: now,
	}

	id, err := m.store.Create(ctx, job)
	if err != nil {
		return nil, err
	}
	job.ID = id

	log.Info().Str("job_id", id).Str("file", name).Str("document", artifact.Ref).Msg("job submitted")
	m.publish(ctx, JobEvent{
		Type:      EventJobCreated,
		JobID:     id,
		To:        JobStatusPending,
		Job:       *job,
		Timestamp: now,
	})

	return m.advance(ctx, id, JobStatusAwaitingPayment, TriggerArtifactStored, "")
}

// ConfirmPayment records a confirmed payment, pricing the job.
func (m *JobManager) ConfirmPayment(ctx context.Context, id, reference string) (*PrintJob, error) {
	return m.advance(ctx, id, JobStatusPaid, TriggerPaymentConfirmed, reference)
}

// Advance applies an operator-driven transition.
func (m *JobManager) Advance(ctx context.Context, id string, target JobStatus) (*PrintJob, error) {
	return m.advance(ctx, id, target, TriggerOperator, "")
}

func (m *JobManager) Cancel(ctx context.Context, id string) (*PrintJob, error) {
	return m.Advance(ctx, id, JobStatusCancelled)
}

func (m *JobManager) advance(ctx context.Context, id string, target JobStatus, trigger Trigger, reference string) (*PrintJob, error) {
	current, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := Authorize(current.Status, target, trigger); err != nil {
		return nil, err
	}

	updated, patch, err := Transition(*current, target, m.now())
	if err != nil {
		return nil, err
	}
	if reference != "" {
		patch.PaymentReference = reference
		updated.PaymentReference = reference
	}

	if err := m.store.Update(ctx, id, current.Status, patch); err != nil {
		return nil, err
	}

	ev := log.Info().Str("job_id", id).Str("from", string(current.Status)).Str("to", string(target)).Str("trigger", string(trigger))
	if updated.PaymentAmount != nil && target == JobStatusPaid {
		ev = ev.Float64("amount", *updated.PaymentAmount)
	}
	ev.Msg("job status changed")

	m.publish(ctx, JobEvent{
		Type:      EventJobStatusChanged,
		JobID:     id,
		From:      current.Status,
		To:        target,
		Trigger:   trigger,
		Job:       updated,
		Timestamp: patch.UpdatedAt,
	})

	return &updated, nil
}

// publish notifies subscribers. The transition is already durable at this
// point, so a failed notification is logged rather than returned.
func (m *JobManager) publish(ctx context.Context, event JobEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("job_id", event.JobID).Str("event", event.Name()).Msg("failed to publish job event")
	}
}

func (m *JobManager) Get(ctx context.Context, id string) (*PrintJob, error) {
	return m.store.Get(ctx, id)
}

// List returns the dashboard view of all jobs.
func (m *JobManager) List(ctx context.Context, statusFilter, searchText string) ([]PrintJob, error) {
	jobs, err := m.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return FilterAndSort(jobs, statusFilter, searchText), nil
}

func (m *JobManager) Stats(ctx context.Context) (JobStats, error) {
	jobs, err := m.store.ListAll(ctx)
	if err != nil {
		return JobStats{}, err
	}
	return CountByStatus(jobs), nil
}

func (m *JobManager) History(ctx context.Context, id string) ([]StatusChange, error) {
	if _, err := m.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.store.History(ctx, id)
}

// Quote prices a configuration without creating a job.
func (m *JobManager) Quote(cfg PrintConfig) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	return ComputeAmount(cfg), nil
}

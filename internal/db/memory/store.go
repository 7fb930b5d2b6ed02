// Package memory keeps jobs and settings in process memory. It backs the
// "memory" database driver for local development and serves as the
// reference JobStore in tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orrn/printdesk/internal/core"
)

type Store struct {
	mu       sync.RWMutex
	jobs     map[string]core.PrintJob
	order    []string
	history  map[string][]core.StatusChange
	settings map[string]string
}

func New() *Store {
	return &Store{
		jobs:     make(map[string]core.PrintJob),
		history:  make(map[string][]core.StatusChange),
		settings: make(map[string]string),
	}
}

func (s *Store) Create(ctx context.Context, job *core.PrintJob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	if err := job.ValidateNew(); err != nil {
		return "", err
	}

	rec := job.Clone()
	rec.ID = uuid.NewString()
	rec.Status = core.JobStatusPending
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.LastUpdated.IsZero() {
		rec.LastUpdated = rec.Timestamp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return rec.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (*core.PrintJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	out := job.Clone()
	return &out, nil
}

func (s *Store) ListAll(ctx context.Context) ([]core.PrintJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.PrintJob, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].Clone())
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, expect core.JobStatus, patch core.JobPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if job.Status != expect {
		return fmt.Errorf("%w: job %s is %s, expected %s", core.ErrConflict, id, job.Status, expect)
	}

	s.jobs[id] = patch.Apply(job)
	s.history[id] = append(s.history[id], core.StatusChange{
		JobID:   id,
		From:    expect,
		To:      patch.Status,
		Trigger: patch.Trigger,
		At:      patch.UpdatedAt,
	})
	return nil
}

func (s *Store) History(ctx context.Context, id string) ([]core.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.jobs[id]; !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	out := make([]core.StatusChange, len(s.history[id]))
	copy(out, s.history[id])
	return out, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *Store) Close() error { return nil }

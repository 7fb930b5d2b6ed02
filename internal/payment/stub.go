package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orrn/printdesk/internal/core"
)

type Confirmer interface {
	ConfirmPayment(ctx context.Context, id, reference string) (*core.PrintJob, error)
}

// StubConfirmer confirms every job a fixed delay after it starts awaiting
// payment. It exists for local development without a provider.
type StubConfirmer struct {
	confirmer Confirmer
	delay     time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewStubConfirmer(confirmer Confirmer, delay time.Duration) *StubConfirmer {
	return &StubConfirmer{
		confirmer: confirmer,
		delay:     delay,
		timers:    make(map[string]*time.Timer),
	}
}

// Handle is subscribed to job.awaiting_payment events.
func (s *StubConfirmer) Handle(ctx context.Context, ev core.JobEvent) error {
	if ev.To != core.JobStatusAwaitingPayment {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if _, ok := s.timers[ev.JobID]; ok {
		return nil
	}

	jobID := ev.JobID
	s.timers[jobID] = time.AfterFunc(s.delay, func() { s.fire(jobID) })
	log.Debug().Str("job_id", jobID).Dur("delay", s.delay).Msg("stub payment scheduled")
	return nil
}

func (s *StubConfirmer) fire(jobID string) {
	s.mu.Lock()
	delete(s.timers, jobID)
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	_, err := s.confirmer.ConfirmPayment(context.Background(), jobID, "")
	switch {
	case err == nil:
	case errors.Is(err, core.ErrInvalidTransition):
		log.Info().Str("job_id", jobID).Err(err).Msg("stub payment skipped")
	default:
		log.Error().Str("job_id", jobID).Err(err).Msg("stub payment failed")
	}
}

// Pending returns the number of scheduled confirmations.
func (s *StubConfirmer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every scheduled confirmation.
func (s *StubConfirmer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

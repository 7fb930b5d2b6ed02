package core

import (
	"fmt"
	"time"
)

// Trigger identifies who is allowed to drive a transition.
type Trigger string

const (
	TriggerArtifactStored   Trigger = "artifact_stored"
	TriggerPaymentConfirmed Trigger = "payment_confirmed"
	TriggerOperator         Trigger = "operator"
)

// lifecycle is the complete set of permitted edges. Anything absent is
// rejected.
var lifecycle = map[JobStatus]map[JobStatus]Trigger{
	JobStatusPending: {
		JobStatusAwaitingPayment: TriggerArtifactStored,
		JobStatusCancelled:       TriggerOperator,
	},
	JobStatusAwaitingPayment: {
		JobStatusPaid:      TriggerPaymentConfirmed,
		JobStatusCancelled: TriggerOperator,
	},
	JobStatusPaid: {
		JobStatusPrinting: TriggerOperator,
	},
	JobStatusPrinting: {
		JobStatusCompleted: TriggerOperator,
	},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to JobStatus) bool {
	_, ok := lifecycle[from][to]
	return ok
}

// TriggerFor returns the trigger that owns the edge from -> to.
func TriggerFor(from, to JobStatus) (Trigger, bool) {
	t, ok := lifecycle[from][to]
	return t, ok
}

// NextStatuses lists the statuses reachable from s in one step, in
// lifecycle order.
func NextStatuses(s JobStatus) []JobStatus {
	var out []JobStatus
	for _, candidate := range AllStatuses {
		if CanTransition(s, candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

// OperatorActions lists what an operator may do with a job in status s.
func OperatorActions(s JobStatus) []JobStatus {
	var out []JobStatus
	for _, candidate := range NextStatuses(s) {
		if lifecycle[s][candidate] == TriggerOperator {
			out = append(out, candidate)
		}
	}
	return out
}

// Authorize checks that trigger owns the edge from -> to.
func Authorize(from, to JobStatus, trigger Trigger) error {
	owner, ok := TriggerFor(from, to)
	if !ok {
		return &TransitionError{From: from, To: to}
	}
	if owner != trigger {
		return fmt.Errorf("%w: %s -> %s requires %s, got %s", ErrTriggerNotPermitted, from, to, owner, trigger)
	}
	return nil
}

// Transition computes the result of moving job to target at now. The input
// is never modified; on error the caller still holds the original record.
// Moving to paid stamps the payment time and prices the job.
func Transition(job PrintJob, target JobStatus, now time.Time) (PrintJob, JobPatch, error) {
	if !target.Valid() {
		return job, JobPatch{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	trigger, ok := TriggerFor(job.Status, target)
	if !ok {
		return job, JobPatch{}, &TransitionError{From: job.Status, To: target}
	}

	patch := JobPatch{
		Status:    target,
		UpdatedAt: now,
		Trigger:   trigger,
	}
	if target == JobStatusPaid {
		paidAt := now
		amount := ComputeAmount(job.PrintConfig)
		patch.PaymentTimestamp = &paidAt
		patch.PaymentAmount = &amount
	}

	return patch.Apply(job), patch, nil
}

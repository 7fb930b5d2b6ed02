package core

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobStatusPending         JobStatus = "pending"
	JobStatusAwaitingPayment JobStatus = "awaiting_payment"
	JobStatusPaid            JobStatus = "paid"
	JobStatusPrinting        JobStatus = "printing"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusCancelled       JobStatus = "cancelled"
)

// AllStatuses lists every job status in lifecycle order.
var AllStatuses = []JobStatus{
	JobStatusPending,
	JobStatusAwaitingPayment,
	JobStatusPaid,
	JobStatusPrinting,
	JobStatusCompleted,
	JobStatusCancelled,
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusAwaitingPayment, JobStatusPaid,
		JobStatusPrinting, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// Charged reports whether a job in this status carries payment fields.
func (s JobStatus) Charged() bool {
	return s == JobStatusPaid || s == JobStatusPrinting || s == JobStatusCompleted
}

func ParseJobStatus(v string) (JobStatus, error) {
	s := JobStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown job status %q", v)
	}
	return s, nil
}

type ColorMode string

const (
	ColorModeColor         ColorMode = "color"
	ColorModeBlackAndWhite ColorMode = "blackAndWhite"
)

func (m ColorMode) Valid() bool {
	return m == ColorModeColor || m == ColorModeBlackAndWhite
}

type PaperSize string

const (
	PaperSizeA4     PaperSize = "a4"
	PaperSizeLetter PaperSize = "letter"
	PaperSizeLegal  PaperSize = "legal"
)

func (p PaperSize) Valid() bool {
	return p == PaperSizeA4 || p == PaperSizeLetter || p == PaperSizeLegal
}

type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

func (o Orientation) Valid() bool {
	return o == OrientationPortrait || o == OrientationLandscape
}

// PrintConfig is the set of options a customer picks before paying.
type PrintConfig struct {
	Copies      int         `json:"copies"`
	ColorMode   ColorMode   `json:"color_mode"`
	PaperSize   PaperSize   `json:"paper_size"`
	Orientation Orientation `json:"orientation"`
	DoubleSided bool        `json:"double_sided"`
}

// DefaultPrintConfig mirrors the options preselected on the upload form.
func DefaultPrintConfig() PrintConfig {
	return PrintConfig{
		Copies:      1,
		ColorMode:   ColorModeColor,
		PaperSize:   PaperSizeA4,
		Orientation: OrientationPortrait,
	}
}

func (c PrintConfig) Validate() error {
	if c.Copies < 1 {
		return fmt.Errorf("%w: copies must be at least 1, got %d", ErrInvalidConfig, c.Copies)
	}
	if !c.ColorMode.Valid() {
		return fmt.Errorf("%w: unknown color mode %q", ErrInvalidConfig, c.ColorMode)
	}
	if !c.PaperSize.Valid() {
		return fmt.Errorf("%w: unknown paper size %q", ErrInvalidConfig, c.PaperSize)
	}
	if !c.Orientation.Valid() {
		return fmt.Errorf("%w: unknown orientation %q", ErrInvalidConfig, c.Orientation)
	}
	return nil
}

type PrintJob struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	PrintConfig
	Status           JobStatus  `json:"status"`
	Timestamp        time.Time  `json:"timestamp"`
	PaymentTimestamp *time.Time `json:"payment_timestamp,omitempty"`
	PaymentAmount    *float64   `json:"payment_amount,omitempty"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	DocumentRef      string     `json:"document_ref"`
	FileSize         int64      `json:"file_size"`
	FileType         string     `json:"file_type"`
	LastUpdated      time.Time  `json:"last_updated"`
}

// ValidateNew checks that j may be created. New jobs are pending (an empty
// status means pending) and carry no payment fields.
func (j PrintJob) ValidateNew() error {
	if j.Status != "" && j.Status != JobStatusPending {
		return fmt.Errorf("%w: new job must be pending, got %s", ErrInvalidConfig, j.Status)
	}
	if j.PaymentTimestamp != nil || j.PaymentAmount != nil || j.PaymentReference != "" {
		return fmt.Errorf("%w: new job must not carry payment fields", ErrInvalidConfig)
	}
	return nil
}

// Clone returns a copy that shares no pointers with j.
func (j PrintJob) Clone() PrintJob {
	out := j
	if j.PaymentTimestamp != nil {
		ts := *j.PaymentTimestamp
		out.PaymentTimestamp = &ts
	}
	if j.PaymentAmount != nil {
		amt := *j.PaymentAmount
		out.PaymentAmount = &amt
	}
	return out
}

// JobPatch holds the fields a single transition writes. Nil pointers leave
// the stored value untouched.
type JobPatch struct {
	Status           JobStatus
	PaymentTimestamp *time.Time
	PaymentAmount    *float64
	PaymentReference string
	UpdatedAt        time.Time
	Trigger          Trigger
}

// Apply returns a copy of j with the patch written over it.
func (p JobPatch) Apply(j PrintJob) PrintJob {
	out := j.Clone()
	out.Status = p.Status
	out.LastUpdated = p.UpdatedAt
	if p.PaymentTimestamp != nil {
		ts := *p.PaymentTimestamp
		out.PaymentTimestamp = &ts
	}
	if p.PaymentAmount != nil {
		amt := *p.PaymentAmount
		out.PaymentAmount = &amt
	}
	if p.PaymentReference != "" {
		out.PaymentReference = p.PaymentReference
	}
	return out
}

type StatusChange struct {
	JobID   string    `json:"job_id"`
	From    JobStatus `json:"from"`
	To      JobStatus `json:"to"`
	Trigger Trigger   `json:"trigger"`
	At      time.Time `json:"at"`
}

type EventType string

const (
	EventJobCreated       EventType = "job_created"
	EventJobStatusChanged EventType = "job_status_changed"
)

// JobEvent is published after a job is created or changes status.
type JobEvent struct {
	Type      EventType `json:"event"`
	JobID     string    `json:"job_id"`
	From      JobStatus `json:"from,omitempty"`
	To        JobStatus `json:"to"`
	Trigger   Trigger   `json:"trigger,omitempty"`
	Job       PrintJob  `json:"job"`
	Timestamp time.Time `json:"timestamp"`
}

// Name is the routing key used by webhooks and channel subscribers,
// e.g. "job.paid".
func (e JobEvent) Name() string {
	return "job." + string(e.To)
}

package db

import (
	"time"

	"github.com/orrn/printdesk/internal/core"
)

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*core.PrintJob, error) {
	j := &core.PrintJob{}
	err := row.Scan(
		&j.ID, &j.FileName,
		&j.Copies, &j.ColorMode, &j.PaperSize, &j.Orientation, &j.DoubleSided,
		&j.Status, &j.Timestamp,
		&j.PaymentTimestamp, &j.PaymentAmount, &j.PaymentReference,
		&j.DocumentRef, &j.FileSize, &j.FileType, &j.LastUpdated)
	if err != nil {
		return nil, err
	}
	return j, nil
}

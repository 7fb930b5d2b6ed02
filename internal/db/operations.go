package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orrn/printdesk/internal/core"
)

var _ core.JobStore = (*JobOperations)(nil)

type JobOperations struct {
	db *sql.DB
}

func NewJobOperations(conn *sql.DB) *JobOperations {
	return &JobOperations{db: conn}
}

// Create inserts job under a freshly generated id. The job must be new
// (see core.PrintJob.ValidateNew); missing timestamps default to now.
func (o *JobOperations) Create(ctx context.Context, j *core.PrintJob) (string, error) {
	id := uuid.NewString()
	if err := j.ValidateNew(); err != nil {
		return "", err
	}
	status := core.JobStatusPending
	created := j.Timestamp
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := j.LastUpdated
	if updated.IsZero() {
		updated = created
	}

	_, err := o.db.ExecContext(ctx, InsertJob,
		id, j.FileName,
		j.Copies, j.ColorMode, j.PaperSize, j.Orientation, j.DoubleSided,
		status, created,
		j.PaymentTimestamp, j.PaymentAmount, j.PaymentReference,
		j.DocumentRef, j.FileSize, j.FileType, updated)
	if err != nil {
		return "", persistenceError("create job", err)
	}
	return id, nil
}

func (o *JobOperations) Get(ctx context.Context, id string) (*core.PrintJob, error) {
	j, err := scanJob(o.db.QueryRowContext(ctx, GetJobByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
		}
		return nil, persistenceError("get job", err)
	}
	return j, nil
}

func (o *JobOperations) ListAll(ctx context.Context) ([]core.PrintJob, error) {
	rows, err := o.db.QueryContext(ctx, ListJobs)
	if err != nil {
		return nil, persistenceError("list jobs", err)
	}
	defer rows.Close()

	var jobs []core.PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, persistenceError("scan job", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list jobs", err)
	}
	return jobs, nil
}

// Update writes patch and its history row in one transaction, provided the
// job is still in status expect.
func (o *JobOperations) Update(ctx context.Context, id string, expect core.JobStatus, patch core.JobPatch) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("begin update", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, UpdateJobStatus,
		patch.Status, patch.PaymentTimestamp, patch.PaymentAmount, patch.PaymentReference,
		patch.UpdatedAt, id, expect)
	if err != nil {
		return persistenceError("update job status", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return persistenceError("update job status", err)
	}
	if n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, JobExists, id).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("%w: %s", core.ErrNotFound, id)
		case err != nil:
			return persistenceError("check job", err)
		}
		return fmt.Errorf("%w: job %s is no longer %s", core.ErrConflict, id, expect)
	}

	if _, err := tx.ExecContext(ctx, InsertStatusChange,
		id, expect, patch.Status, patch.Trigger, patch.UpdatedAt); err != nil {
		return persistenceError("record status change", err)
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("commit status change", err)
	}
	return nil
}

func (o *JobOperations) History(ctx context.Context, id string) ([]core.StatusChange, error) {
	rows, err := o.db.QueryContext(ctx, ListStatusChanges, id)
	if err != nil {
		return nil, persistenceError("list status history", err)
	}
	defer rows.Close()

	changes := []core.StatusChange{}
	for rows.Next() {
		var c core.StatusChange
		if err := rows.Scan(&c.JobID, &c.From, &c.To, &c.Trigger, &c.At); err != nil {
			return nil, persistenceError("scan status change", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list status history", err)
	}
	return changes, nil
}

type SettingsOperations struct {
	db *sql.DB
}

func NewSettingsOperations(conn *sql.DB) *SettingsOperations {
	return &SettingsOperations{db: conn}
}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s := &Setting{Key: key}
	err := o.db.QueryRowContext(ctx, GetSetting, key).Scan(&s.Value, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get setting: %w", err)
	}
	return s.Value, true, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string) error {
	if _, err := o.db.ExecContext(ctx, SetSetting, key, value); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (o *SettingsOperations) DeleteSetting(ctx context.Context, key string) error {
	if _, err := o.db.ExecContext(ctx, DeleteSetting, key); err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

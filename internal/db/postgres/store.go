// Package postgres is the PostgreSQL job store, selected with
// database.driver: postgres.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orrn/printdesk/internal/core"
)

//go:embed schema.sql
var schema string

var _ core.JobStore = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return pool, nil
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func persistenceError(action string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", action, core.ErrPersistence, err)
}

func (s *Store) Create(ctx context.Context, j *core.PrintJob) (string, error) {
	const q = `
INSERT INTO print_jobs (id, file_name, copies, color_mode, paper_size, orientation, double_sided,
	status, created_at, payment_timestamp, payment_amount, payment_reference,
	document_ref, file_size, file_type, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
`
	id := uuid.New()
	if err := j.ValidateNew(); err != nil {
		return "", err
	}
	status := core.JobStatusPending
	created := j.Timestamp
	if created.IsZero() {
		created = time.Now().UTC().Truncate(time.Microsecond)
	}
	updated := j.LastUpdated
	if updated.IsZero() {
		updated = created
	}

	_, err := s.pool.Exec(ctx, q,
		id, j.FileName,
		j.Copies, string(j.ColorMode), string(j.PaperSize), string(j.Orientation), j.DoubleSided,
		string(status), created,
		j.PaymentTimestamp, j.PaymentAmount, j.PaymentReference,
		j.DocumentRef, j.FileSize, j.FileType, updated)
	if err != nil {
		return "", persistenceError("create job", err)
	}
	return id.String(), nil
}

const selectJob = `
SELECT id, file_name, copies, color_mode, paper_size, orientation, double_sided,
	status, created_at, payment_timestamp, payment_amount, payment_reference,
	document_ref, file_size, file_type, last_updated
FROM print_jobs
`

func scanJob(row pgx.Row) (*core.PrintJob, error) {
	var (
		job         core.PrintJob
		id          uuid.UUID
		colorMode   string
		paperSize   string
		orientation string
		statusText  string
	)
	if err := row.Scan(
		&id, &job.FileName,
		&job.Copies, &colorMode, &paperSize, &orientation, &job.DoubleSided,
		&statusText, &job.Timestamp,
		&job.PaymentTimestamp, // NULL => nil
		&job.PaymentAmount,    // NULL => nil
		&job.PaymentReference,
		&job.DocumentRef, &job.FileSize, &job.FileType, &job.LastUpdated,
	); err != nil {
		return nil, err
	}

	job.ID = id.String()
	job.ColorMode = core.ColorMode(colorMode)
	job.PaperSize = core.PaperSize(paperSize)
	job.Orientation = core.Orientation(orientation)
	job.Status = core.JobStatus(statusText)
	job.Timestamp = job.Timestamp.UTC()
	job.LastUpdated = job.LastUpdated.UTC()
	if job.PaymentTimestamp != nil {
		ts := job.PaymentTimestamp.UTC()
		job.PaymentTimestamp = &ts
	}
	return &job, nil
}

func (s *Store) Get(ctx context.Context, id string) (*core.PrintJob, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}

	job, err := scanJob(s.pool.QueryRow(ctx, selectJob+`WHERE id = $1;`, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
		}
		return nil, persistenceError("get job", err)
	}
	return job, nil
}

func (s *Store) ListAll(ctx context.Context) ([]core.PrintJob, error) {
	rows, err := s.pool.Query(ctx, selectJob+`ORDER BY seq ASC;`)
	if err != nil {
		return nil, persistenceError("list jobs", err)
	}
	defer rows.Close()

	var jobs []core.PrintJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, persistenceError("scan job", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list jobs", err)
	}
	return jobs, nil
}

func (s *Store) Update(ctx context.Context, id string, expect core.JobStatus, patch core.JobPatch) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return persistenceError("begin update", err)
	}
	defer tx.Rollback(ctx)

	const q = `
UPDATE print_jobs SET
	status = $3,
	payment_timestamp = COALESCE($4, payment_timestamp),
	payment_amount = COALESCE($5, payment_amount),
	payment_reference = COALESCE(NULLIF($6, ''), payment_reference),
	last_updated = $7
WHERE id = $1 AND status = $2;
`
	tag, err := tx.Exec(ctx, q, uid, string(expect), string(patch.Status),
		patch.PaymentTimestamp, patch.PaymentAmount, patch.PaymentReference, patch.UpdatedAt)
	if err != nil {
		return persistenceError("update job status", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM print_jobs WHERE id = $1);`, uid).Scan(&exists); err != nil {
			return persistenceError("check job", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", core.ErrNotFound, id)
		}
		return fmt.Errorf("%w: job %s is no longer %s", core.ErrConflict, id, expect)
	}

	const h = `
INSERT INTO status_history (job_id, from_status, to_status, triggered_by, changed_at)
VALUES ($1, $2, $3, $4, $5);
`
	if _, err := tx.Exec(ctx, h, uid, string(expect), string(patch.Status), string(patch.Trigger), patch.UpdatedAt); err != nil {
		return persistenceError("record status change", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return persistenceError("commit status change", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, id string) ([]core.StatusChange, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}

	const q = `
SELECT from_status, to_status, triggered_by, changed_at
FROM status_history
WHERE job_id = $1
ORDER BY id ASC;
`
	rows, err := s.pool.Query(ctx, q, uid)
	if err != nil {
		return nil, persistenceError("list status history", err)
	}
	defer rows.Close()

	changes := []core.StatusChange{}
	for rows.Next() {
		var from, to, trigger string
		c := core.StatusChange{JobID: id}
		if err := rows.Scan(&from, &to, &trigger, &c.At); err != nil {
			return nil, persistenceError("scan status change", err)
		}
		c.From = core.JobStatus(from)
		c.To = core.JobStatus(to)
		c.Trigger = core.Trigger(trigger)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list status history", err)
	}
	return changes, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1;`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get setting: %w", err)
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO settings (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();
`
	if _, err := s.pool.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

package db

const jobColumns = `
	id, file_name, copies, color_mode, paper_size, orientation, double_sided,
	status, created_at, payment_timestamp, payment_amount, payment_reference,
	document_ref, file_size, file_type, last_updated`

const (
	InsertJob = `
		INSERT INTO print_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetJobByID = `SELECT ` + jobColumns + ` FROM print_jobs WHERE id = ?`

	ListJobs = `SELECT ` + jobColumns + ` FROM print_jobs ORDER BY rowid ASC`

	// UpdateJobStatus only matches while the row still has the expected
	// status. Payment columns are written when a value is supplied.
	UpdateJobStatus = `
		UPDATE print_jobs SET
			status = ?,
			payment_timestamp = COALESCE(?, payment_timestamp),
			payment_amount = COALESCE(?, payment_amount),
			payment_reference = COALESCE(NULLIF(?, ''), payment_reference),
			last_updated = ?
		WHERE id = ? AND status = ?
	`

	JobExists = `SELECT 1 FROM print_jobs WHERE id = ?`
)

const (
	InsertStatusChange = `
		INSERT INTO status_history (job_id, from_status, to_status, triggered_by, changed_at)
		VALUES (?, ?, ?, ?, ?)
	`

	ListStatusChanges = `
		SELECT job_id, from_status, to_status, triggered_by, changed_at
		FROM status_history WHERE job_id = ? ORDER BY id ASC
	`
)

const (
	GetSetting = `SELECT value, updated_at FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`
)

const (
	CreateMigrationsTable = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	InsertMigration = `INSERT INTO schema_migrations (version) VALUES (?)`

	GetAppliedMigrations = `SELECT version FROM schema_migrations`
)

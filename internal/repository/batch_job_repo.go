package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

// SQLiteBatchJobRepository implements BatchJobRepository for libsql.
type SQLiteBatchJobRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteBatchJobRepository creates a new SQLite batch job repository.
func NewSQLiteBatchJobRepository(db *sql.DB) *SQLiteBatchJobRepository {
	return &SQLiteBatchJobRepository{db: db, now: time.Now}
}

const batchJobColumns = `id, user_id, status, item_count, items_json, result_json, error_message,
	started_at, completed_at, created_at, updated_at`

func (r *SQLiteBatchJobRepository) Create(ctx context.Context, job *models.BatchJob) error {
	now := r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.BatchJobPending
	}

	query := `INSERT INTO batch_jobs (id, user_id, status, item_count, items_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.Status, job.ItemCount, job.ItemsJSON,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create batch job: %w", err)
	}
	return nil
}

func (r *SQLiteBatchJobRepository) GetByID(ctx context.Context, id string) (*models.BatchJob, error) {
	job, err := scanBatchJob(r.db.QueryRowContext(ctx, `SELECT `+batchJobColumns+` FROM batch_jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (r *SQLiteBatchJobRepository) ClaimPending(ctx context.Context) (*models.BatchJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	now := formatTime(r.now())
	query := `
		UPDATE batch_jobs
		SET status = ?, started_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM batch_jobs
			WHERE status = ?
			ORDER BY created_at ASC
			LIMIT 1
		)
		RETURNING ` + batchJobColumns

	job, err := scanBatchJob(tx.QueryRowContext(ctx, query, models.BatchJobRunning, now, now, models.BatchJobPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return job, nil
}

func (r *SQLiteBatchJobRepository) Complete(ctx context.Context, id string, resultJSON string) error {
	return r.finish(ctx, id, models.BatchJobCompleted, resultJSON, "")
}

func (r *SQLiteBatchJobRepository) Fail(ctx context.Context, id string, message string) error {
	return r.finish(ctx, id, models.BatchJobFailed, "", message)
}

func (r *SQLiteBatchJobRepository) finish(ctx context.Context, id string, status models.BatchJobStatus, resultJSON, message string) error {
	now := formatTime(r.now())
	result, err := r.db.ExecContext(ctx, `
		UPDATE batch_jobs
		SET status = ?, result_json = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		status, resultJSON, message, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteBatchJobRepository) MarkStaleRunningJobsFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	now := r.now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE batch_jobs
		SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE status = ? AND started_at < ?`,
		models.BatchJobFailed,
		"batch terminated: server restart or timeout",
		formatTime(now),
		formatTime(now),
		models.BatchJobRunning,
		formatTime(now.Add(-maxAge)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale batch jobs as failed: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

func scanBatchJob(s scanner) (*models.BatchJob, error) {
	var (
		job                    models.BatchJob
		status                 string
		startedAt, completedAt sql.NullString
		createdAt, updatedAt   string
	)
	err := s.Scan(&job.ID, &job.UserID, &status, &job.ItemCount, &job.ItemsJSON, &job.ResultJSON, &job.ErrorMessage,
		&startedAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = models.BatchJobStatus(status)
	if startedAt.Valid {
		t := parseTime(startedAt.String)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		job.CompletedAt = &t
	}
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

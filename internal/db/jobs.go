package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snapreel/clipstitch/internal/models"
)

// ErrJobNotFound is returned when a job id has no row, either because it
// never existed or because the record was deleted after retrieval.
var ErrJobNotFound = errors.New("job not found")

func (db *DB) CreateJob(ctx context.Context, record *models.JobRecord) error {
	query := `
		INSERT INTO clip_jobs (
			id, session_id, status, item_count
		) VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		record.ID, record.SessionID, record.Status, record.ItemCount,
	).Scan(&record.CreatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.JobRecord, error) {
	query := `
		SELECT
			id, session_id, status, output_path, file_size, duration_sec,
			item_count, progress, error_message, started_at, finished_at, created_at
		FROM clip_jobs
		WHERE id = $1
	`

	record := &models.JobRecord{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.SessionID, &record.Status, &record.OutputPath,
		&record.FileSize, &record.DurationSec, &record.ItemCount,
		&record.Progress, &record.ErrorMessage, &record.StartedAt,
		&record.FinishedAt, &record.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return record, nil
}

func (db *DB) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	now := time.Now()
	query := `UPDATE clip_jobs SET status = $1, started_at = $2 WHERE id = $3`

	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query = `UPDATE clip_jobs SET status = $1, finished_at = $2 WHERE id = $3`
	}

	_, err := db.ExecContext(ctx, query, status, now, id)
	return err
}

// UpdateJobProgress records the render's latest completion percentage.
// Best-effort observability for the poll endpoint, never load-bearing.
func (db *DB) UpdateJobProgress(ctx context.Context, id uuid.UUID, percent float64) error {
	_, err := db.ExecContext(ctx, `UPDATE clip_jobs SET progress = $1 WHERE id = $2`, percent, id)
	return err
}

func (db *DB) UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE clip_jobs
		SET status = $1, error_message = $2, finished_at = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusFailed, errorMessage, time.Now(), id)
	return err
}

// SetJobCompleted records the rendered artifact's location and metadata and
// moves the job to its terminal completed state in one write.
func (db *DB) SetJobCompleted(ctx context.Context, id uuid.UUID, outputPath string, fileSize int64, durationSec float64) error {
	query := `
		UPDATE clip_jobs
		SET status = $1, output_path = $2, file_size = $3, duration_sec = $4, finished_at = $5
		WHERE id = $6
	`
	_, err := db.ExecContext(
		ctx, query,
		models.JobStatusCompleted, outputPath, fileSize, durationSec, time.Now(), id,
	)
	return err
}

// DeleteJob removes a job record. Deleting an already-deleted job is a no-op,
// so retrieval and retention cleanup can race safely.
func (db *DB) DeleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM clip_jobs WHERE id = $1`, id)
	return err
}

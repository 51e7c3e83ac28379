package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"curator/internal/domain"
)

const uniqueViolation = "23505"

// JobRepositoryPG implements domain.JobRepository using PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts the job record and its ordered work list in one transaction.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.CaptionJob) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
INSERT INTO caption_jobs (
    id, caption_set_id, vision_model, vision_backend, style, max_length,
    trigger_phrase, custom_prompt, overwrite_existing, min_quality_to_regenerate,
    status, total_files
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	cfg := job.Config
	if _, err := tx.Exec(ctx, query,
		job.ID,
		cfg.CaptionSetID,
		cfg.VisionModel,
		cfg.VisionBackend,
		cfg.Style,
		cfg.MaxLength,
		cfg.TriggerPhrase,
		cfg.CustomPrompt,
		cfg.OverwriteExisting,
		cfg.MinQualityToRegenerate,
		job.Status,
		job.TotalFiles,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateJob
		}
		return err
	}

	for i, fileID := range job.WorkList {
		if _, err := tx.Exec(ctx, `
INSERT INTO caption_job_files (job_id, file_id, position)
VALUES ($1, $2, $3);
`, job.ID, fileID, i); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetByID fetches a job with its work list.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.CaptionJob, error) {
	row := r.pool.QueryRow(ctx, selectJob+`WHERE id = $1;`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if job.WorkList, err = r.workList(ctx, jobID); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs newest-first, optionally filtered by status. Work lists
// are omitted; callers needing one fetch the job by id.
func (r *JobRepositoryPG) List(ctx context.Context, status domain.JobStatus) ([]*domain.CaptionJob, error) {
	rows, err := r.pool.Query(ctx, selectJob+`
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC;
`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// LoadActive returns jobs whose last recorded status is pending, running or
// paused.
func (r *JobRepositoryPG) LoadActive(ctx context.Context) ([]*domain.CaptionJob, error) {
	rows, err := r.pool.Query(ctx, selectJob+`
WHERE status IN ('pending', 'running', 'paused')
ORDER BY created_at ASC;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ApplyProgress records one item outcome and bumps the matching counter in a
// single transaction. A file id that already has an outcome is a no-op, and
// the guard on the counter update keeps settled counts at or below the job
// total even under racing workers.
func (r *JobRepositoryPG) ApplyProgress(ctx context.Context, jobID string, outcome domain.ItemOutcome) error {
	var counter string
	switch outcome.Kind {
	case domain.OutcomeCompleted:
		counter = "completed_files"
	case domain.OutcomeFailed:
		counter = "failed_files"
	case domain.OutcomeSkipped:
		counter = "skipped_files"
	default:
		return fmt.Errorf("unknown outcome kind %q", outcome.Kind)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
INSERT INTO caption_job_items (
    job_id, file_id, kind, caption, quality_score, quality_flags,
    vision_model, error_message, attempts
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (job_id, file_id) DO NOTHING;
`,
		jobID,
		outcome.FileID,
		outcome.Kind,
		outcome.Caption,
		outcome.QualityScore,
		outcome.QualityFlags,
		outcome.VisionModel,
		outcome.ErrorMessage,
		outcome.Attempts,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Already recorded, e.g. a resume racing a drained worker.
		return nil
	}

	// counter is one of three fixed column names, never caller input.
	update := fmt.Sprintf(`
UPDATE caption_jobs
SET %s = %s + 1,
    updated_at = now(),
    last_error = CASE WHEN $2 <> '' THEN $2 ELSE last_error END
WHERE id = $1
  AND completed_files + failed_files + skipped_files < total_files;
`, counter, counter)
	lastError := ""
	if outcome.Kind == domain.OutcomeFailed {
		lastError = outcome.ErrorMessage
	}
	if _, err := tx.Exec(ctx, update, jobID, lastError); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SetStatus transitions the job and stamps the timestamp column matching the
// new status. started_at is set once and kept across pause/resume cycles.
func (r *JobRepositoryPG) SetStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE caption_jobs
SET status = $2,
    updated_at = now(),
    last_error = CASE WHEN $3 <> '' THEN $3 ELSE last_error END,
    started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, now()) ELSE started_at END,
    paused_at = CASE WHEN $2 = 'paused' THEN now() ELSE paused_at END,
    completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN now() ELSE completed_at END
WHERE id = $1;
`, jobID, string(status), errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetCurrentFile updates the display-only current file marker.
func (r *JobRepositoryPG) SetCurrentFile(ctx context.Context, jobID, fileID string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE caption_jobs SET current_file_id = $2 WHERE id = $1;
`, jobID, fileID)
	return err
}

// Outcomes returns the recorded item outcomes of a job in settlement order.
func (r *JobRepositoryPG) Outcomes(ctx context.Context, jobID string, kind domain.OutcomeKind) ([]domain.ItemOutcome, error) {
	rows, err := r.pool.Query(ctx, `
SELECT file_id, kind, caption, quality_score, quality_flags, vision_model, error_message, attempts
FROM caption_job_items
WHERE job_id = $1
  AND ($2 = '' OR kind = $2)
ORDER BY created_at ASC;
`, jobID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []domain.ItemOutcome
	for rows.Next() {
		var o domain.ItemOutcome
		if err := rows.Scan(
			&o.FileID,
			&o.Kind,
			&o.Caption,
			&o.QualityScore,
			&o.QualityFlags,
			&o.VisionModel,
			&o.ErrorMessage,
			&o.Attempts,
		); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (r *JobRepositoryPG) workList(ctx context.Context, jobID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
SELECT file_id FROM caption_job_files WHERE job_id = $1 ORDER BY position ASC;
`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var fileID string
		if err := rows.Scan(&fileID); err != nil {
			return nil, err
		}
		files = append(files, fileID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

const selectJob = `
SELECT id, caption_set_id, vision_model, vision_backend, style, max_length,
       trigger_phrase, custom_prompt, overwrite_existing, min_quality_to_regenerate,
       status, total_files, completed_files, failed_files, skipped_files,
       current_file_id, last_error, created_at, updated_at, started_at, paused_at, completed_at
FROM caption_jobs
`

func scanJob(row pgx.Row) (*domain.CaptionJob, error) {
	var job domain.CaptionJob
	if err := row.Scan(
		&job.ID,
		&job.Config.CaptionSetID,
		&job.Config.VisionModel,
		&job.Config.VisionBackend,
		&job.Config.Style,
		&job.Config.MaxLength,
		&job.Config.TriggerPhrase,
		&job.Config.CustomPrompt,
		&job.Config.OverwriteExisting,
		&job.Config.MinQualityToRegenerate,
		&job.Status,
		&job.TotalFiles,
		&job.CompletedFiles,
		&job.FailedFiles,
		&job.SkippedFiles,
		&job.CurrentFileID,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.PausedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

func scanJobs(rows pgx.Rows) ([]*domain.CaptionJob, error) {
	var jobs []*domain.CaptionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

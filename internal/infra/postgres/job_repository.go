package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"code-exam-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// JobRepository stores generation jobs in Postgres. Status transitions are
// enforced in the UPDATE's WHERE clause so concurrent workers cannot move a
// job backwards.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, language, track_id, topic_id, topic_name, difficulty_config,
	status, created_by, COALESCE(error_message, ''), created_at, completed_at`

// pendingBatchSize caps one worker pass.
const pendingBatchSize = 10

func (r *JobRepository) Create(ctx context.Context, job domain.GenerationJob) (domain.GenerationJob, error) {
	cfg, err := json.Marshal(job.DifficultyConfig)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("marshal difficulty config: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO question_generation_jobs
			(id, language, track_id, topic_id, topic_name, difficulty_config, status, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())`,
		job.ID, job.Language, job.TrackID, job.TopicID, job.TopicName, cfg, job.Status, job.CreatedBy)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("insert job: %w", err)
	}
	return r.FindByID(ctx, job.ID)
}

func (r *JobRepository) FindByID(ctx context.Context, id string) (domain.GenerationJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM question_generation_jobs WHERE id=$1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GenerationJob{}, domain.ErrJobNotFound
	}
	return job, err
}

func (r *JobRepository) FindPending(ctx context.Context) ([]domain.GenerationJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM question_generation_jobs
		WHERE status='pending' ORDER BY created_at LIMIT $1`, pendingBatchSize)
	if err != nil {
		return nil, fmt.Errorf("query pending jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *JobRepository) FindByUser(ctx context.Context, userID string) ([]domain.GenerationJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM question_generation_jobs
		WHERE created_by=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string) (domain.GenerationJob, error) {
	var allowedFrom string
	switch status {
	case domain.JobInProgress:
		allowedFrom = string(domain.JobPending)
	case domain.JobCompleted, domain.JobFailed:
		allowedFrom = string(domain.JobInProgress)
	default:
		return domain.GenerationJob{}, domain.ErrInvalidTransition
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE question_generation_jobs
		SET status=$2, error_message=NULLIF($3, ''),
			completed_at=CASE WHEN $2 IN ('completed','failed') THEN now() ELSE completed_at END
		WHERE id=$1 AND status=$4`,
		id, status, errorMessage, allowedFrom)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return domain.GenerationJob{}, err
		}
		return domain.GenerationJob{}, domain.ErrInvalidTransition
	}
	return r.FindByID(ctx, id)
}

func scanJob(row pgx.Row) (domain.GenerationJob, error) {
	var job domain.GenerationJob
	var cfg []byte
	err := row.Scan(&job.ID, &job.Language, &job.TrackID, &job.TopicID, &job.TopicName,
		&cfg, &job.Status, &job.CreatedBy, &job.ErrorMessage, &job.CreatedAt, &job.CompletedAt)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	if err := json.Unmarshal(cfg, &job.DifficultyConfig); err != nil {
		return domain.GenerationJob{}, fmt.Errorf("unmarshal difficulty config: %w", err)
	}
	return job, nil
}

func scanJobs(rows pgx.Rows) ([]domain.GenerationJob, error) {
	var out []domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

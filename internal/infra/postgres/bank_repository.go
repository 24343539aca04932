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

// BankRepository stores bank questions in Postgres. Test cases and
// requirements are JSONB columns; sampling uses ORDER BY RANDOM(), which is
// fine at bank scale (hundreds of rows per topic).
type BankRepository struct {
	pool *pgxpool.Pool
}

func NewBankRepository(pool *pgxpool.Pool) *BankRepository {
	return &BankRepository{pool: pool}
}

const questionColumns = `id, language, track_id, topic_id, difficulty, points, title, description,
	requirements, test_cases, sample_answer, status, created_by, COALESCE(approved_by, ''), created_at, updated_at`

func (r *BankRepository) Create(ctx context.Context, q domain.Question) (domain.Question, error) {
	requirements, testCases, err := encodeQuestion(q)
	if err != nil {
		return domain.Question{}, err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO question_bank
			(id, language, track_id, topic_id, difficulty, points, title, description,
			 requirements, test_cases, sample_answer, status, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())`,
		q.ID, q.Language, q.TrackID, q.TopicID, q.Difficulty, q.Points, q.Title, q.Description,
		requirements, testCases, q.SampleAnswer, q.Status, q.CreatedBy)
	if err != nil {
		return domain.Question{}, fmt.Errorf("insert question: %w", err)
	}
	return r.FindByID(ctx, q.ID)
}

func (r *BankRepository) CreateMany(ctx context.Context, qs []domain.Question) ([]domain.Question, error) {
	saved := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		created, err := r.Create(ctx, q)
		if err != nil {
			return saved, err
		}
		saved = append(saved, created)
	}
	return saved, nil
}

func (r *BankRepository) FindByID(ctx context.Context, id string) (domain.Question, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM question_bank WHERE id=$1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, err
}

func (r *BankRepository) FindByTopic(ctx context.Context, language, trackID, topicID string) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+questionColumns+` FROM question_bank
		WHERE language=$1 AND track_id=$2 AND topic_id=$3
		ORDER BY created_at`, language, trackID, topicID)
	if err != nil {
		return nil, fmt.Errorf("query topic questions: %w", err)
	}
	defer rows.Close()
	return scanQuestions(rows)
}

func (r *BankRepository) ApprovedCountByTopics(ctx context.Context, language, trackID string, topicIDs []string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM question_bank
		WHERE language=$1 AND track_id=$2 AND topic_id = ANY($3) AND status='approved'`,
		language, trackID, topicIDs).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count approved: %w", err)
	}
	return count, nil
}

func (r *BankRepository) RandomApproved(ctx context.Context, language, trackID, topicID string, limit int) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+questionColumns+` FROM question_bank
		WHERE language=$1 AND track_id=$2 AND topic_id=$3 AND status='approved'
		ORDER BY RANDOM() LIMIT $4`, language, trackID, topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("sample approved: %w", err)
	}
	defer rows.Close()
	return scanQuestions(rows)
}

func (r *BankRepository) RandomApprovedByTier(ctx context.Context, language, trackID, topicID string, cfg domain.DifficultyConfig) ([]domain.Question, error) {
	var out []domain.Question
	for _, tier := range domain.Difficulties {
		count := cfg.CountFor(tier)
		if count <= 0 {
			continue
		}
		rows, err := r.pool.Query(ctx, `
			SELECT `+questionColumns+` FROM question_bank
			WHERE language=$1 AND track_id=$2 AND topic_id=$3 AND difficulty=$4 AND status='approved'
			ORDER BY RANDOM() LIMIT $5`, language, trackID, topicID, tier, count)
		if err != nil {
			return nil, fmt.Errorf("sample %s tier: %w", tier, err)
		}
		batch, err := scanQuestions(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *BankRepository) UpdateStatus(ctx context.Context, id string, status domain.ApprovalStatus, approvedBy string) (domain.Question, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE question_bank SET status=$2, approved_by=$3, updated_at=now() WHERE id=$1`,
		id, status, approvedBy)
	if err != nil {
		return domain.Question{}, fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *BankRepository) StatsByTrack(ctx context.Context, language, trackID string) ([]domain.TopicStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT topic_id,
			COUNT(*) FILTER (WHERE status='approved' AND difficulty='easy'),
			COUNT(*) FILTER (WHERE status='approved' AND difficulty='medium'),
			COUNT(*) FILTER (WHERE status='approved' AND difficulty='hard'),
			COUNT(*),
			COUNT(*) FILTER (WHERE status='pending'),
			COUNT(*) FILTER (WHERE status='approved')
		FROM question_bank
		WHERE language=$1 AND track_id=$2
		GROUP BY topic_id
		ORDER BY topic_id`, language, trackID)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []domain.TopicStats
	for rows.Next() {
		s := domain.TopicStats{Language: language, TrackID: trackID}
		if err := rows.Scan(&s.TopicID, &s.EasyCount, &s.MediumCount, &s.HardCount,
			&s.TotalCount, &s.PendingCount, &s.ApprovedCount); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func encodeQuestion(q domain.Question) ([]byte, []byte, error) {
	requirements, err := json.Marshal(q.Requirements)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal requirements: %w", err)
	}
	testCases, err := json.Marshal(q.TestCases)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal test cases: %w", err)
	}
	return requirements, testCases, nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	var requirements, testCases []byte
	err := row.Scan(&q.ID, &q.Language, &q.TrackID, &q.TopicID, &q.Difficulty, &q.Points,
		&q.Title, &q.Description, &requirements, &testCases, &q.SampleAnswer,
		&q.Status, &q.CreatedBy, &q.ApprovedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return domain.Question{}, err
	}
	if err := json.Unmarshal(requirements, &q.Requirements); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal requirements: %w", err)
	}
	if err := json.Unmarshal(testCases, &q.TestCases); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal test cases: %w", err)
	}
	return q, nil
}

func scanQuestions(rows pgx.Rows) ([]domain.Question, error) {
	var out []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

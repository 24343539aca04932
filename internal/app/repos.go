package app

import (
	"context"

	"code-exam-service/internal/domain"
	"code-exam-service/internal/llm"
)

// BankRepository is the durable question bank (Postgres in production,
// in-memory in tests).
type BankRepository interface {
	Create(ctx context.Context, q domain.Question) (domain.Question, error)
	CreateMany(ctx context.Context, qs []domain.Question) ([]domain.Question, error)
	FindByID(ctx context.Context, id string) (domain.Question, error)
	// FindByTopic returns every question for a topic regardless of status;
	// used to build the dedup hint for generation.
	FindByTopic(ctx context.Context, language, trackID, topicID string) ([]domain.Question, error)
	// ApprovedCountByTopics counts selectable questions across topics.
	ApprovedCountByTopics(ctx context.Context, language, trackID string, topicIDs []string) (int, error)
	// RandomApproved samples up to limit approved questions without replacement.
	RandomApproved(ctx context.Context, language, trackID, topicID string, limit int) ([]domain.Question, error)
	// RandomApprovedByTier samples per difficulty tier.
	RandomApprovedByTier(ctx context.Context, language, trackID, topicID string, cfg domain.DifficultyConfig) ([]domain.Question, error)
	UpdateStatus(ctx context.Context, id string, status domain.ApprovalStatus, approvedBy string) (domain.Question, error)
	StatsByTrack(ctx context.Context, language, trackID string) ([]domain.TopicStats, error)
}

// JobRepository stores generation jobs. UpdateStatus must enforce the
// forward-only transition rule.
type JobRepository interface {
	Create(ctx context.Context, job domain.GenerationJob) (domain.GenerationJob, error)
	FindByID(ctx context.Context, id string) (domain.GenerationJob, error)
	// FindPending returns the oldest pending jobs, capped for one worker pass.
	FindPending(ctx context.Context) ([]domain.GenerationJob, error)
	FindByUser(ctx context.Context, userID string) ([]domain.GenerationJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string) (domain.GenerationJob, error)
}

// SessionRepository stores immutable session snapshots.
type SessionRepository interface {
	Save(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
}

// AttemptRepository stores attempts. Get returns an isolated copy. Save
// replaces the whole record and is reserved for start/finish; answer writes go
// through SaveAnswer, which merges a single question slot so parallel
// submissions for different questions never clobber each other. Concurrent
// submissions for the same question resolve last-write-wins.
type AttemptRepository interface {
	Save(ctx context.Context, attempt *domain.Attempt) error
	SaveAnswer(ctx context.Context, attemptID string, answer domain.AnswerSubmission) error
	Get(ctx context.Context, id string) (*domain.Attempt, error)
	FindInProgress(ctx context.Context, sessionID, userID string) (*domain.Attempt, bool, error)
}

// CodeExecutor is the execution gateway surface the orchestrator needs.
type CodeExecutor interface {
	Execute(ctx context.Context, code, language string) (domain.ExecutionResult, error)
}

// QuestionGenerator synthesizes questions via the LLM.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, req llm.GenerateRequest) ([]llm.GeneratedQuestion, error)
}

// FeedbackGenerator produces tutoring feedback for failed submissions.
type FeedbackGenerator interface {
	GenerateFeedback(ctx context.Context, title, description, code string, failed []llm.FailedTest) (string, error)
}

// ContextProvider supplies curriculum context text for generation prompts.
// Curriculum storage itself lives outside this service.
type ContextProvider interface {
	TopicContext(ctx context.Context, language, trackID, topicID string) (string, error)
}

// NopContextProvider returns no context; the default when no curriculum
// service is wired.
type NopContextProvider struct{}

func (NopContextProvider) TopicContext(context.Context, string, string, string) (string, error) {
	return "", nil
}

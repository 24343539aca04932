package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"code-exam-service/internal/domain"
	"code-exam-service/internal/grading"
	"code-exam-service/internal/llm"
	"code-exam-service/internal/sandbox"
	"github.com/google/uuid"
)

const (
	defaultExamTimeLimit = 60 // minutes

	feedbackPassed  = "Correct!"
	feedbackGeneric = "Not quite right. Compare your output with the failed test cases and try again."
)

var validLevels = map[string]bool{
	"beginner_zero": true,
	"beginner":      true,
	"beginner_plus": true,
}

// SessionService orchestrates graded sessions: creation, start/resume,
// per-question submit+grade, and finalization.
type SessionService struct {
	sessions SessionRepository
	attempts AttemptRepository
	resolver *Resolver
	executor CodeExecutor
	feedback FeedbackGenerator
	logger   *slog.Logger
	now      func() time.Time
}

func NewSessionService(sessions SessionRepository, attempts AttemptRepository, resolver *Resolver, executor CodeExecutor, feedback FeedbackGenerator, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		sessions: sessions,
		attempts: attempts,
		resolver: resolver,
		executor: executor,
		feedback: feedback,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// CreateExamParams describe an exam to generate. Count is 1..10; TimeLimit is
// minutes and defaults to 60.
type CreateExamParams struct {
	Topics    []string
	Language  string
	Level     string
	Count     int
	TimeLimit int
	TrackID   string
	TopicIDs  []string
}

// CreateExam resolves questions (bank, hybrid, or LLM-only) and freezes them
// into an immutable session.
func (s *SessionService) CreateExam(ctx context.Context, params CreateExamParams) (*domain.Session, error) {
	if err := validateCommon(params.Language, params.Level, params.Count); err != nil {
		return nil, err
	}
	if len(params.Topics) == 0 {
		return nil, domain.Validationf("topics", "at least one topic is required")
	}
	if params.TimeLimit <= 0 {
		params.TimeLimit = defaultExamTimeLimit
	}

	topicIDs := params.TopicIDs
	if len(topicIDs) == 0 {
		// Without curriculum ids the bank cannot be consulted; generate directly.
		topicIDs = params.Topics
	}

	questions, err := s.resolver.Resolve(ctx, ResolveRequest{
		Language:        params.Language,
		TrackID:         params.TrackID,
		TopicIDs:        topicIDs,
		Topics:          params.Topics,
		Count:           params.Count,
		AllowGeneration: true,
		Level:           params.Level,
	})
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, domain.ErrGenerationFailed
	}

	session := s.snapshot(domain.SessionExam, params.Topics, params.Language, params.Level, params.TrackID, params.TopicIDs, params.TimeLimit, questions)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("exam created", "sessionId", session.ID, "questions", len(session.Items), "totalPoints", session.TotalPoints)
	return session, nil
}

// CreatePracticeParams describe a practice set drawn from the bank only.
type CreatePracticeParams struct {
	Topic    string
	Language string
	Level    string
	Count    int
	TrackID  string
	TopicID  string
}

// CreatePractice draws approved bank questions; there is no LLM fallback.
// With zero approved questions it fails with ErrNoApprovedQuestions.
func (s *SessionService) CreatePractice(ctx context.Context, params CreatePracticeParams) (*domain.Session, error) {
	if err := validateCommon(params.Language, params.Level, params.Count); err != nil {
		return nil, err
	}
	if params.Topic == "" {
		return nil, domain.Validationf("topic", "topic is required")
	}
	if params.TrackID == "" || params.TopicID == "" {
		return nil, domain.Validationf("trackId", "trackId and topicId are required")
	}

	questions, err := s.resolver.Resolve(ctx, ResolveRequest{
		Language:        params.Language,
		TrackID:         params.TrackID,
		TopicIDs:        []string{params.TopicID},
		Topics:          []string{params.Topic},
		Count:           params.Count,
		AllowGeneration: false,
		Level:           params.Level,
	})
	if err != nil {
		return nil, err
	}

	session := s.snapshot(domain.SessionPractice, []string{params.Topic}, params.Language, params.Level, params.TrackID, []string{params.TopicID}, 0, questions)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("practice set created", "sessionId", session.ID, "questions", len(session.Items))
	return session, nil
}

// snapshot freezes resolved questions into denormalized session items.
func (s *SessionService) snapshot(kind domain.SessionKind, topics []string, language, level, trackID string, topicIDs []string, timeLimit int, questions []domain.Question) *domain.Session {
	sessionID := uuid.NewString()
	items := make([]domain.SessionItem, 0, len(questions))
	totalPoints := 0
	for i, q := range questions {
		totalPoints += q.Points
		items = append(items, domain.SessionItem{
			ID:           uuid.NewString(),
			SessionID:    sessionID,
			Order:        i + 1,
			Difficulty:   q.Difficulty,
			Points:       q.Points,
			Title:        q.Title,
			Description:  q.Description,
			Requirements: q.Requirements,
			TestCases:    q.TestCases,
			SampleAnswer: q.SampleAnswer,
			Language:     language,
		})
	}
	return &domain.Session{
		ID:          sessionID,
		Kind:        kind,
		Topics:      topics,
		Language:    language,
		Level:       level,
		TrackID:     trackID,
		TopicIDs:    topicIDs,
		Items:       items,
		TotalPoints: totalPoints,
		TimeLimit:   timeLimit,
		CreatedAt:   s.now(),
	}
}

// StartResult is the attempt plus derived timing info.
type StartResult struct {
	Attempt       *domain.Attempt
	Session       *domain.Session
	RemainingTime int // minutes; 0 for untimed sessions
}

// Start begins or resumes an attempt. Calling it again for the same
// (session, user) before finishing returns the existing attempt.
func (s *SessionService) Start(ctx context.Context, sessionID, userID string) (*StartResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if existing, ok, err := s.attempts.FindInProgress(ctx, sessionID, userID); err != nil {
		return nil, err
	} else if ok {
		return &StartResult{Attempt: existing, Session: session, RemainingTime: s.remainingMinutes(session, existing)}, nil
	}

	attempt := &domain.Attempt{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		StartedAt: s.now(),
		Answers:   make(map[string]domain.AnswerSubmission),
		Status:    domain.AttemptInProgress,
	}
	if err := s.attempts.Save(ctx, attempt); err != nil {
		return nil, fmt.Errorf("save attempt: %w", err)
	}
	s.logger.Info("attempt started", "sessionId", sessionID, "attemptId", attempt.ID, "userId", userID)
	return &StartResult{Attempt: attempt, Session: session, RemainingTime: session.TimeLimit}, nil
}

func (s *SessionService) remainingMinutes(session *domain.Session, attempt *domain.Attempt) int {
	if session.TimeLimit <= 0 {
		return 0
	}
	elapsed := int(s.now().Sub(attempt.StartedAt).Minutes())
	if remaining := session.TimeLimit - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

// SubmitResult is the graded outcome for one question.
type SubmitResult struct {
	QuestionID     string              `json:"questionId"`
	Passed         bool                `json:"passed"`
	Score          int                 `json:"score"`
	MaxScore       int                 `json:"maxScore"`
	TestResults    []domain.TestResult `json:"testResults"`
	Feedback       string              `json:"feedback,omitempty"`
	ExecutionError string              `json:"executionError,omitempty"`
}

// Submit executes and grades one answer, then merges it into the attempt's
// answer slot for that question. Parallel submissions for different questions
// both land; resubmitting the same question overwrites the previous answer.
// Gateway failures leave the answer slot untouched so the learner can retry.
func (s *SessionService) Submit(ctx context.Context, attemptID, questionID, code string) (*SubmitResult, error) {
	if code == "" {
		return nil, domain.Validationf("code", "code is required")
	}

	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != domain.AttemptInProgress {
		return nil, domain.ErrAttemptNotInProgress
	}

	session, err := s.sessions.Get(ctx, attempt.SessionID)
	if err != nil {
		return nil, err
	}
	if session.TimeLimit > 0 {
		elapsed := int(s.now().Sub(attempt.StartedAt).Minutes())
		if elapsed > session.TimeLimit {
			return nil, domain.ErrTimeLimitExceeded
		}
	}

	item, ok := session.Item(questionID)
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}

	execResult, err := s.executor.Execute(ctx, code, item.Language)
	if err != nil {
		// Transport-level failures surface as-is; nothing is recorded.
		return nil, err
	}

	graded := grading.Grade(execResult, item.TestCases)
	feedback := s.buildFeedback(ctx, item, code, graded)

	submission := domain.AnswerSubmission{
		QuestionID:  questionID,
		Code:        code,
		SubmittedAt: s.now(),
		Score:       graded.EarnedPoints,
		Passed:      graded.Passed,
		Feedback:    feedback,
		TestResults: graded.TestResults,
	}
	if err := s.attempts.SaveAnswer(ctx, attemptID, submission); err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}

	s.logger.Info("question graded",
		"attemptId", attemptID, "questionId", questionID,
		"passed", graded.Passed, "score", graded.EarnedPoints, "maxScore", graded.MaxPoints)

	return &SubmitResult{
		QuestionID:     questionID,
		Passed:         graded.Passed,
		Score:          graded.EarnedPoints,
		MaxScore:       graded.MaxPoints,
		TestResults:    graded.TestResults,
		Feedback:       feedback,
		ExecutionError: executionErrorText(execResult),
	}, nil
}

// buildFeedback asks the LLM to explain a failure; any feedback error degrades
// to a generic message and never fails the grading call.
func (s *SessionService) buildFeedback(ctx context.Context, item domain.SessionItem, code string, graded domain.GradeResult) string {
	if graded.Passed {
		return feedbackPassed
	}
	if s.feedback == nil {
		return feedbackGeneric
	}
	var failed []llm.FailedTest
	for _, r := range graded.TestResults {
		if !r.Passed {
			failed = append(failed, llm.FailedTest{
				Description:    r.Description,
				ExpectedOutput: r.ExpectedOutput,
				ActualOutput:   r.ActualOutput,
			})
		}
	}
	feedback, err := s.feedback.GenerateFeedback(ctx, item.Title, item.Description, code, failed)
	if err != nil {
		s.logger.Warn("feedback generation failed", "error", err)
		return feedbackGeneric
	}
	return feedback
}

// QuestionResult is one line of the final report.
type QuestionResult struct {
	QuestionID string `json:"questionId"`
	Title      string `json:"title"`
	MaxScore   int    `json:"maxScore"`
	Score      int    `json:"score"`
	Passed     bool   `json:"passed"`
}

// FinishResult is the sealed outcome of an attempt.
type FinishResult struct {
	AttemptID       string               `json:"attemptId"`
	SessionID       string               `json:"sessionId"`
	TotalScore      int                  `json:"totalScore"`
	TotalPoints     int                  `json:"totalPoints"`
	Percentage      int                  `json:"percentage"`
	Grade           string               `json:"grade"`
	Status          domain.AttemptStatus `json:"status"`
	SubmittedAt     *time.Time           `json:"submittedAt,omitempty"`
	QuestionResults []QuestionResult     `json:"questionResults"`
}

// Finish seals the attempt and computes the final grade. Idempotent: a second
// call returns the stored result without re-summing.
func (s *SessionService) Finish(ctx context.Context, attemptID string) (*FinishResult, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.Get(ctx, attempt.SessionID)
	if err != nil {
		return nil, err
	}

	if attempt.Status == domain.AttemptGraded {
		return s.report(session, attempt), nil
	}

	totalScore := 0
	for _, item := range session.Items {
		if answer, ok := attempt.Answers[item.ID]; ok {
			totalScore += answer.Score
		}
	}

	now := s.now()
	attempt.Status = domain.AttemptGraded
	attempt.SubmittedAt = &now
	attempt.Score = totalScore
	attempt.Grade = grading.LetterGrade(grading.Percentage(totalScore, session.TotalPoints))
	if err := s.attempts.Save(ctx, attempt); err != nil {
		return nil, fmt.Errorf("save attempt: %w", err)
	}

	result := s.report(session, attempt)
	s.logger.Info("attempt finished",
		"attemptId", attemptID, "score", result.TotalScore,
		"totalPoints", result.TotalPoints, "percentage", result.Percentage, "grade", result.Grade)
	return result, nil
}

func (s *SessionService) report(session *domain.Session, attempt *domain.Attempt) *FinishResult {
	questionResults := make([]QuestionResult, 0, len(session.Items))
	for _, item := range session.Items {
		answer := attempt.Answers[item.ID]
		questionResults = append(questionResults, QuestionResult{
			QuestionID: item.ID,
			Title:      item.Title,
			MaxScore:   item.Points,
			Score:      answer.Score,
			Passed:     answer.Passed,
		})
	}
	return &FinishResult{
		AttemptID:       attempt.ID,
		SessionID:       session.ID,
		TotalScore:      attempt.Score,
		TotalPoints:     session.TotalPoints,
		Percentage:      grading.Percentage(attempt.Score, session.TotalPoints),
		Grade:           attempt.Grade,
		Status:          attempt.Status,
		SubmittedAt:     attempt.SubmittedAt,
		QuestionResults: questionResults,
	}
}

// GetSession returns the frozen session snapshot.
func (s *SessionService) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return s.sessions.Get(ctx, id)
}

// GetAttempt returns an attempt by id.
func (s *SessionService) GetAttempt(ctx context.Context, id string) (*domain.Attempt, error) {
	return s.attempts.Get(ctx, id)
}

func validateCommon(language, level string, count int) error {
	if !sandbox.SupportedLanguage(language) {
		return domain.Validationf("language", "unsupported language: "+language)
	}
	if !validLevels[level] {
		return domain.Validationf("level", "unknown learner level: "+level)
	}
	if count < 1 || count > 10 {
		return domain.Validationf("count", "must be between 1 and 10")
	}
	return nil
}

func executionErrorText(result domain.ExecutionResult) string {
	return result.Stderr
}

// IsNotFound reports whether err is any of the service's not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrSessionNotFound) ||
		errors.Is(err, domain.ErrAttemptNotFound) ||
		errors.Is(err, domain.ErrQuestionNotFound) ||
		errors.Is(err, domain.ErrJobNotFound) ||
		errors.Is(err, domain.ErrNoApprovedQuestions)
}

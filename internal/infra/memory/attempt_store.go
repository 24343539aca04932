package memory

import (
	"context"

	"code-exam-service/internal/domain"
	"github.com/puzpuzpuz/xsync/v3"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
// Reads hand out isolated copies. Save replaces the whole record; SaveAnswer
// merges one answer slot atomically via Compute, so parallel submissions for
// different questions both land and same-question races stay last-write-wins.
type AttemptStore struct {
	attempts *xsync.MapOf[string, domain.Attempt]
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: xsync.NewMapOf[string, domain.Attempt](),
	}
}

func (s *AttemptStore) Save(_ context.Context, attempt *domain.Attempt) error {
	s.attempts.Store(attempt.ID, cloneAttempt(*attempt))
	return nil
}

func (s *AttemptStore) SaveAnswer(_ context.Context, attemptID string, answer domain.AnswerSubmission) error {
	_, ok := s.attempts.Compute(attemptID, func(attempt domain.Attempt, loaded bool) (domain.Attempt, bool) {
		if !loaded {
			return attempt, true
		}
		merged := cloneAttempt(attempt)
		merged.Answers[answer.QuestionID] = answer
		return merged, false
	})
	if !ok {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (s *AttemptStore) Get(_ context.Context, id string) (*domain.Attempt, error) {
	attempt, ok := s.attempts.Load(id)
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	copied := cloneAttempt(attempt)
	return &copied, nil
}

func (s *AttemptStore) FindInProgress(_ context.Context, sessionID, userID string) (*domain.Attempt, bool, error) {
	var found *domain.Attempt
	s.attempts.Range(func(_ string, attempt domain.Attempt) bool {
		if attempt.SessionID == sessionID && attempt.UserID == userID && attempt.Status == domain.AttemptInProgress {
			copied := cloneAttempt(attempt)
			found = &copied
			return false
		}
		return true
	})
	return found, found != nil, nil
}

func cloneAttempt(attempt domain.Attempt) domain.Attempt {
	answers := make(map[string]domain.AnswerSubmission, len(attempt.Answers))
	for k, v := range attempt.Answers {
		answers[k] = v
	}
	attempt.Answers = answers
	return attempt
}

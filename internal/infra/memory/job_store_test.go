package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"code-exam-service/internal/domain"
)

func TestJobStoreForwardOnlyTransitions(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	store.Create(ctx, domain.GenerationJob{ID: "job-1", Status: domain.JobPending, CreatedAt: time.Now()})

	if _, err := store.UpdateStatus(ctx, "job-1", domain.JobCompleted, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("pending -> completed must be rejected, got %v", err)
	}

	if _, err := store.UpdateStatus(ctx, "job-1", domain.JobInProgress, ""); err != nil {
		t.Fatalf("pending -> in_progress: %v", err)
	}
	done, err := store.UpdateStatus(ctx, "job-1", domain.JobCompleted, "")
	if err != nil {
		t.Fatalf("in_progress -> completed: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatalf("expected completion timestamp")
	}

	if _, err := store.UpdateStatus(ctx, "job-1", domain.JobFailed, "late"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("terminal job must not transition, got %v", err)
	}
}

func TestJobStorePendingOrderedOldestFirst(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	base := time.Now()
	store.Create(ctx, domain.GenerationJob{ID: "job-new", Status: domain.JobPending, CreatedAt: base.Add(time.Minute)})
	store.Create(ctx, domain.GenerationJob{ID: "job-old", Status: domain.JobPending, CreatedAt: base})
	store.Create(ctx, domain.GenerationJob{ID: "job-done", Status: domain.JobPending, CreatedAt: base.Add(-time.Minute)})
	store.UpdateStatus(ctx, "job-done", domain.JobInProgress, "")

	pending, err := store.FindPending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "job-old" || pending[1].ID != "job-new" {
		t.Fatalf("unexpected pending order %+v", pending)
	}
}

func TestAttemptStoreIsolatesCopies(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	attempt := &domain.Attempt{
		ID:        "attempt-1",
		SessionID: "session-1",
		UserID:    "user-1",
		Status:    domain.AttemptInProgress,
		Answers:   map[string]domain.AnswerSubmission{},
	}
	if err := store.Save(ctx, attempt); err != nil {
		t.Fatalf("save: %v", err)
	}

	first, err := store.Get(ctx, "attempt-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.Answers["q1"] = domain.AnswerSubmission{QuestionID: "q1", Score: 10}

	second, err := store.Get(ctx, "attempt-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(second.Answers) != 0 {
		t.Fatalf("mutation of one copy leaked into the store")
	}

	found, ok, err := store.FindInProgress(ctx, "session-1", "user-1")
	if err != nil || !ok || found.ID != "attempt-1" {
		t.Fatalf("expected in-progress attempt, got %v %v %v", found, ok, err)
	}

	first.Status = domain.AttemptGraded
	store.Save(ctx, first)
	if _, ok, _ := store.FindInProgress(ctx, "session-1", "user-1"); ok {
		t.Fatalf("graded attempt must not be returned as in progress")
	}
}

func TestAttemptStoreSaveAnswerMergesSlots(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	store.Save(ctx, &domain.Attempt{
		ID:        "attempt-1",
		SessionID: "session-1",
		UserID:    "user-1",
		Status:    domain.AttemptInProgress,
		Answers:   map[string]domain.AnswerSubmission{},
	})

	// Concurrent writes to distinct question slots must all land.
	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(n int) {
			questionID := "q" + string(rune('a'+n))
			done <- store.SaveAnswer(ctx, "attempt-1", domain.AnswerSubmission{QuestionID: questionID, Score: n})
		}(i)
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("save answer: %v", err)
		}
	}

	attempt, err := store.Get(ctx, "attempt-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(attempt.Answers) != 8 {
		t.Fatalf("expected 8 answer slots, got %d", len(attempt.Answers))
	}

	// Same-slot write overwrites.
	store.SaveAnswer(ctx, "attempt-1", domain.AnswerSubmission{QuestionID: "qa", Score: 99})
	attempt, _ = store.Get(ctx, "attempt-1")
	if attempt.Answers["qa"].Score != 99 {
		t.Fatalf("expected resubmission to overwrite the slot, got %+v", attempt.Answers["qa"])
	}

	if err := store.SaveAnswer(ctx, "missing", domain.AnswerSubmission{QuestionID: "qa"}); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}

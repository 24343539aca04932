package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"code-exam-service/internal/domain"
	"code-exam-service/internal/infra/memory"
	"code-exam-service/internal/llm"
)

type stubGenerator struct {
	questions []llm.GeneratedQuestion
	err       error
	calls     int
	lastReq   llm.GenerateRequest
}

func (s *stubGenerator) GenerateQuestions(_ context.Context, req llm.GenerateRequest) ([]llm.GeneratedQuestion, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	out := s.questions
	if len(out) > req.Count {
		out = out[:req.Count]
	}
	return out, nil
}

func generatedQuestion(title string) llm.GeneratedQuestion {
	return llm.GeneratedQuestion{
		Title:       title,
		Description: "Print something",
		TestCases:   []domain.TestCase{{Description: "prints it", ExpectedOutput: "ok", Points: 5}},
		Difficulty:  domain.DifficultyEasy,
		Points:      10,
	}
}

func seedApproved(t *testing.T, bank *memory.Bank, n int, topicID string) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := bank.Create(context.Background(), domain.Question{
			ID:         topicID + "-q" + string(rune('a'+i)),
			Language:   "javascript",
			TrackID:    "track-1",
			TopicID:    topicID,
			Difficulty: domain.DifficultyEasy,
			Points:     10,
			Title:      "Bank question " + string(rune('a'+i)),
			TestCases:  []domain.TestCase{{Description: "prints", ExpectedOutput: "ok", Points: 5}},
			Status:     domain.ApprovalApproved,
			CreatedAt:  time.Now(),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestResolveBankOnlySkipsGenerator(t *testing.T) {
	bank := memory.NewBank()
	seedApproved(t, bank, 5, "topic-a")
	gen := &stubGenerator{}
	resolver := NewResolver(bank, gen, nil, nil)

	questions, err := resolver.Resolve(context.Background(), ResolveRequest{
		Language: "javascript", TrackID: "track-1",
		TopicIDs: []string{"topic-a"}, Topics: []string{"Variables"},
		Count: 3, AllowGeneration: true,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
	if gen.calls != 0 {
		t.Fatalf("bank covered the request, generator must not be called")
	}
}

func TestResolveHybridTopsUpFromGenerator(t *testing.T) {
	bank := memory.NewBank()
	seedApproved(t, bank, 2, "topic-a")
	gen := &stubGenerator{questions: []llm.GeneratedQuestion{
		generatedQuestion("Fresh one"), generatedQuestion("Fresh two"), generatedQuestion("Fresh three"),
	}}
	resolver := NewResolver(bank, gen, nil, nil)

	questions, err := resolver.Resolve(context.Background(), ResolveRequest{
		Language: "javascript", TrackID: "track-1",
		TopicIDs: []string{"topic-a"}, Topics: []string{"Variables"},
		Count: 5, AllowGeneration: true,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(questions) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(questions))
	}
	if gen.calls != 1 || gen.lastReq.Count != 3 {
		t.Fatalf("expected one generator call for the shortfall of 3, got calls=%d count=%d", gen.calls, gen.lastReq.Count)
	}
	// Bank titles must reach the generator as a dedup hint.
	if len(gen.lastReq.AvoidTitles) != 2 {
		t.Fatalf("expected 2 avoid-titles, got %v", gen.lastReq.AvoidTitles)
	}
}

func TestResolveHybridDegradesWhenGeneratorFails(t *testing.T) {
	bank := memory.NewBank()
	seedApproved(t, bank, 2, "topic-a")
	gen := &stubGenerator{err: errors.New("model unavailable")}
	resolver := NewResolver(bank, gen, nil, nil)

	questions, err := resolver.Resolve(context.Background(), ResolveRequest{
		Language: "javascript", TrackID: "track-1",
		TopicIDs: []string{"topic-a"}, Topics: []string{"Variables"},
		Count: 5, AllowGeneration: true,
	})
	if err != nil {
		t.Fatalf("bank portion should survive a generation failure, got %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected the 2 bank questions, got %d", len(questions))
	}
}

func TestResolveGenerateOnlyFailsHard(t *testing.T) {
	bank := memory.NewBank()
	gen := &stubGenerator{err: errors.New("model unavailable")}
	resolver := NewResolver(bank, gen, nil, nil)

	_, err := resolver.Resolve(context.Background(), ResolveRequest{
		Language: "javascript", TrackID: "track-1",
		TopicIDs: []string{"topic-a"}, Topics: []string{"Variables"},
		Count: 3, AllowGeneration: true,
	})
	if err == nil {
		t.Fatalf("empty bank and failed generation must be an error")
	}
}

func TestResolveBankOnlyWithEmptyBank(t *testing.T) {
	resolver := NewResolver(memory.NewBank(), &stubGenerator{}, nil, nil)
	_, err := resolver.Resolve(context.Background(), ResolveRequest{
		Language: "javascript", TrackID: "track-1",
		TopicIDs: []string{"topic-a"}, Topics: []string{"Variables"},
		Count: 3, AllowGeneration: false,
	})
	if !errors.Is(err, domain.ErrNoApprovedQuestions) {
		t.Fatalf("expected ErrNoApprovedQuestions, got %v", err)
	}
}

func seedTier(t *testing.T, bank *memory.Bank, topicID string, tier domain.Difficulty, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := bank.Create(context.Background(), domain.Question{
			ID:         topicID + "-" + string(tier) + "-q" + string(rune('a'+i)),
			Language:   "javascript",
			TrackID:    "track-1",
			TopicID:    topicID,
			Difficulty: tier,
			Points:     tier.DefaultPoints(),
			Title:      topicID + " " + string(tier) + " " + string(rune('a'+i)),
			TestCases:  []domain.TestCase{{Description: "prints", ExpectedOutput: "ok", Points: 5}},
			Status:     domain.ApprovalApproved,
			CreatedAt:  time.Now(),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestResolvePerTierSampling(t *testing.T) {
	bank := memory.NewBank()
	seedTier(t, bank, "topic-a", domain.DifficultyEasy, 2)
	seedTier(t, bank, "topic-a", domain.DifficultyMedium, 2)
	seedTier(t, bank, "topic-a", domain.DifficultyHard, 1)
	resolver := NewResolver(bank, &stubGenerator{}, nil, nil)

	cfg := domain.DifficultyConfig{Easy: 1, Medium: 1}
	questions, err := resolver.Resolve(context.Background(), ResolveRequest{
		Language: "javascript", TrackID: "track-1",
		TopicIDs: []string{"topic-a"}, Topics: []string{"Variables"},
		Count: 2, Difficulty: &cfg, AllowGeneration: false,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected one question per configured tier, got %d", len(questions))
	}
	byTier := map[domain.Difficulty]int{}
	for _, q := range questions {
		byTier[q.Difficulty]++
	}
	if byTier[domain.DifficultyEasy] != 1 || byTier[domain.DifficultyMedium] != 1 {
		t.Fatalf("unexpected tier mix %v", byTier)
	}
}

func TestResolvePerTierFallsBackToPooledForMultipleTopics(t *testing.T) {
	bank := memory.NewBank()
	seedTier(t, bank, "topic-a", domain.DifficultyEasy, 2)
	seedTier(t, bank, "topic-b", domain.DifficultyHard, 2)
	resolver := NewResolver(bank, &stubGenerator{}, nil, nil)

	cfg := domain.DifficultyConfig{Easy: 2}
	questions, err := resolver.Resolve(context.Background(), ResolveRequest{
		Language: "javascript", TrackID: "track-1",
		TopicIDs: []string{"topic-a", "topic-b"}, Topics: []string{"Variables", "Loops"},
		Count: 2, Difficulty: &cfg, AllowGeneration: false,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// ceil(2/2)=1 per topic, pooled; the tier config does not apply across topics.
	if len(questions) != 2 {
		t.Fatalf("expected 2 pooled questions, got %d", len(questions))
	}
	hard := 0
	for _, q := range questions {
		if q.Difficulty == domain.DifficultyHard {
			hard++
		}
	}
	if hard != 1 {
		t.Fatalf("expected topic-b's hard question in the pool, got %d", hard)
	}
}

func TestResolveConcurrentRequests(t *testing.T) {
	bank := memory.NewBank()
	seedApproved(t, bank, 6, "topic-a")
	seedApproved(t, bank, 6, "topic-b")
	resolver := NewResolver(bank, &stubGenerator{}, nil, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			questions, err := resolver.Resolve(context.Background(), ResolveRequest{
				Language: "javascript", TrackID: "track-1",
				TopicIDs: []string{"topic-a", "topic-b"}, Topics: []string{"Variables", "Loops"},
				Count: 4, AllowGeneration: false,
			})
			if err == nil && len(questions) != 4 {
				err = fmt.Errorf("expected 4 questions, got %d", len(questions))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent resolve: %v", err)
		}
	}
}

func TestResolveMultiTopicNoBackfill(t *testing.T) {
	bank := memory.NewBank()
	seedApproved(t, bank, 5, "topic-a")
	// topic-b has nothing; its per-topic share cannot be backfilled from topic-a.
	resolver := NewResolver(bank, &stubGenerator{}, nil, nil)

	questions, err := resolver.Resolve(context.Background(), ResolveRequest{
		Language: "javascript", TrackID: "track-1",
		TopicIDs: []string{"topic-a", "topic-b"}, Topics: []string{"Variables", "Loops"},
		Count: 4, AllowGeneration: false,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// ceil(4/2)=2 per topic; topic-b contributes zero.
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions without backfill, got %d", len(questions))
	}
	for _, q := range questions {
		if q.TopicID != "topic-a" {
			t.Fatalf("unexpected topic %s", q.TopicID)
		}
	}
}

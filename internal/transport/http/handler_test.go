package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"code-exam-service/internal/app"
	"code-exam-service/internal/domain"
	"code-exam-service/internal/infra/memory"
	"code-exam-service/internal/llm"
)

type fakeGenerator struct{}

func (fakeGenerator) GenerateQuestions(_ context.Context, req llm.GenerateRequest) ([]llm.GeneratedQuestion, error) {
	out := make([]llm.GeneratedQuestion, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		out = append(out, llm.GeneratedQuestion{
			Title:       "Print a name",
			Description: "Print Kim",
			TestCases:   []domain.TestCase{{Description: "prints Kim", ExpectedOutput: "Kim", Points: 10}},
			Difficulty:  domain.DifficultyEasy,
			Points:      10,
		})
	}
	return out, nil
}

type fakeExecutor struct{ stdout string }

func (e fakeExecutor) Execute(context.Context, string, string) (domain.ExecutionResult, error) {
	return domain.ExecutionResult{Stdout: e.stdout}, nil
}

type fixture struct {
	server *httptest.Server
	bank   *memory.Bank
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bank := memory.NewBank()
	resolver := app.NewResolver(bank, fakeGenerator{}, nil, nil)
	sessions := app.NewSessionService(memory.NewSessionStore(), memory.NewAttemptStore(), resolver, fakeExecutor{stdout: "Kim"}, nil, nil)
	generation := app.NewGenerationService(memory.NewJobStore(), bank, fakeGenerator{}, nil, nil)

	mux := http.NewServeMux()
	NewHandler(sessions, generation, nil).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &fixture{server: server, bank: bank}
}

func (f *fixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestExamLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/exam/generate", map[string]any{
		"topics": []string{"Variables"}, "language": "javascript",
		"level": "beginner", "questionCount": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create exam status %d", resp.StatusCode)
	}
	exam := decodeBody[sessionView](t, resp)
	if len(exam.Questions) != 1 || exam.TimeLimit != 60 {
		t.Fatalf("unexpected exam view %+v", exam)
	}
	// Exams must never reveal expected outputs to the learner.
	if exam.Questions[0].TestCases[0].ExpectedOutput != "" {
		t.Fatalf("exam view leaked expected output")
	}

	resp = f.post(t, "/api/exam/"+exam.ID+"/start", map[string]any{"userId": "user-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status %d", resp.StatusCode)
	}
	started := decodeBody[map[string]any](t, resp)
	attemptID, _ := started["attemptId"].(string)
	if attemptID == "" {
		t.Fatalf("missing attemptId in %v", started)
	}

	resp = f.post(t, "/api/exam/"+exam.ID+"/submit", map[string]any{
		"attemptId": attemptID, "questionId": exam.Questions[0].ID, "code": "console.log('Kim')",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d", resp.StatusCode)
	}
	submitted := decodeBody[app.SubmitResult](t, resp)
	if !submitted.Passed || submitted.Score != 10 {
		t.Fatalf("unexpected submit result %+v", submitted)
	}

	resp = f.post(t, "/api/exam/"+exam.ID+"/finish", map[string]any{"attemptId": attemptID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finish status %d", resp.StatusCode)
	}
	finished := decodeBody[app.FinishResult](t, resp)
	if finished.Percentage != 100 || finished.Grade != "A" {
		t.Fatalf("unexpected final report %+v", finished)
	}
}

func TestPracticeRevealsExpectedOutput(t *testing.T) {
	f := newFixture(t)
	f.bank.Create(context.Background(), domain.Question{
		ID: "q1", Language: "python", TrackID: "track-1", TopicID: "topic-a",
		Difficulty: domain.DifficultyEasy, Points: 10, Title: "Sum",
		TestCases: []domain.TestCase{{Description: "sums", ExpectedOutput: "6", Points: 10}},
		Status:    domain.ApprovalApproved, CreatedAt: time.Now(),
	})

	resp := f.post(t, "/api/practice/generate", map[string]any{
		"topic": "Sums", "language": "python", "level": "beginner",
		"questionCount": 1, "trackId": "track-1", "topicId": "topic-a",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create practice status %d", resp.StatusCode)
	}
	practice := decodeBody[sessionView](t, resp)
	if practice.Questions[0].TestCases[0].ExpectedOutput != "6" {
		t.Fatalf("practice view must expose expected output")
	}
	if practice.TimeLimit != 0 {
		t.Fatalf("practice must be untimed, got %d", practice.TimeLimit)
	}
}

func TestPracticeWithEmptyBankReturns404(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/api/practice/generate", map[string]any{
		"topic": "Sums", "language": "python", "level": "beginner",
		"questionCount": 1, "trackId": "track-1", "topicId": "topic-a",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on empty bank, got %d", resp.StatusCode)
	}
}

func TestValidationErrorsReturn400(t *testing.T) {
	f := newFixture(t)

	// Missing required fields fail request validation.
	resp := f.post(t, "/api/exam/generate", map[string]any{"language": "javascript"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	// Domain validation also maps to 400.
	resp = f.post(t, "/api/exam/generate", map[string]any{
		"topics": []string{"Variables"}, "language": "rust",
		"level": "beginner", "questionCount": 1,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported language, got %d", resp.StatusCode)
	}
}

func TestUnknownExamReturns404(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.server.URL + "/api/exam/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGenerationJobEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/question-bank/generate", map[string]any{
		"language": "python", "trackId": "track-1", "topicId": "topic-a",
		"topicName": "Loops", "difficultyConfig": map[string]int{"easy": 1}, "userId": "teacher-1",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit job status %d", resp.StatusCode)
	}
	job := decodeBody[domain.GenerationJob](t, resp)
	if job.Status != domain.JobPending {
		t.Fatalf("expected pending job, got %s", job.Status)
	}

	getResp, err := http.Get(f.server.URL + "/api/question-bank/jobs/" + job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	fetched := decodeBody[domain.GenerationJob](t, getResp)
	if fetched.ID != job.ID {
		t.Fatalf("expected job %s, got %s", job.ID, fetched.ID)
	}

	listResp, err := http.Get(f.server.URL + "/api/question-bank/jobs?userId=teacher-1")
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	jobs := decodeBody[[]domain.GenerationJob](t, listResp)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
}

package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"code-exam-service/internal/domain"
)

type stubChat struct {
	content string
	err     error
	lastReq CompletionRequest
}

func (s *stubChat) Complete(_ context.Context, req CompletionRequest) (string, error) {
	s.lastReq = req
	return s.content, s.err
}

func TestGenerateQuestionsParsesAndDefaults(t *testing.T) {
	stub := &stubChat{content: `{"questions":[
		{"title":"Print a name","description":"Print Kim","testCases":[{"description":"prints Kim","expectedOutput":"Kim"}],"sampleAnswer":"console.log('Kim')"}
	]}`}
	gen := NewGenerator(stub, nil)

	questions, err := gen.GenerateQuestions(context.Background(), GenerateRequest{
		Topic: "vars", Language: "javascript", Difficulty: domain.DifficultyMedium, Count: 1,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}
	q := questions[0]
	if q.Difficulty != domain.DifficultyMedium {
		t.Fatalf("expected difficulty backfilled from request, got %s", q.Difficulty)
	}
	if q.Points != 15 {
		t.Fatalf("expected medium default 15 points, got %d", q.Points)
	}
	if q.TestCases[0].Points != 5 {
		t.Fatalf("expected default test points 5, got %d", q.TestCases[0].Points)
	}
	if !stub.lastReq.JSONObject {
		t.Fatalf("expected json_object response format")
	}
}

func TestGenerateQuestionsFailsHardOnMalformedJSON(t *testing.T) {
	gen := NewGenerator(&stubChat{content: "sorry, here are the questions:"}, nil)
	_, err := gen.GenerateQuestions(context.Background(), GenerateRequest{Topic: "vars", Language: "python", Count: 1})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestGenerateQuestionsWrapsClientError(t *testing.T) {
	gen := NewGenerator(&stubChat{err: errors.New("boom")}, nil)
	_, err := gen.GenerateQuestions(context.Background(), GenerateRequest{Topic: "vars", Language: "python", Count: 1})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestGeneratePromptCarriesDedupHint(t *testing.T) {
	stub := &stubChat{content: `{"questions":[]}`}
	gen := NewGenerator(stub, nil)
	_, err := gen.GenerateQuestions(context.Background(), GenerateRequest{
		Topic: "loops", Language: "python", Count: 2,
		AvoidTitles: []string{"Sum of a list", "FizzBuzz"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(stub.lastReq.User, "Sum of a list") || !strings.Contains(stub.lastReq.User, "FizzBuzz") {
		t.Fatalf("expected avoid-titles in prompt, got %q", stub.lastReq.User)
	}
}

func TestGenerateFeedback(t *testing.T) {
	stub := &stubChat{content: "Your loop stops one step early."}
	gen := NewGenerator(stub, nil)
	feedback, err := gen.GenerateFeedback(context.Background(), "Count up", "Print 1..5", "for i in range(4)", []FailedTest{
		{Description: "prints five lines", ExpectedOutput: "1\n2\n3\n4\n5", ActualOutput: "1\n2\n3\n4"},
	})
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if feedback == "" {
		t.Fatalf("expected feedback text")
	}
	if stub.lastReq.JSONObject {
		t.Fatalf("feedback must not request json mode")
	}
}

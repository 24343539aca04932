package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"code-exam-service/internal/domain"
)

// GenerateRequest asks for a batch of questions on one topic.
type GenerateRequest struct {
	Topic    string
	Language string
	// Difficulty is optional; when empty the model picks per question.
	Difficulty        domain.Difficulty
	Count             int
	CurriculumContext string
	// AvoidTitles is a textual dedup hint, not a guarantee.
	AvoidTitles []string
}

// GeneratedQuestion is one parsed question from the model.
type GeneratedQuestion struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Requirements []string          `json:"requirements"`
	TestCases    []domain.TestCase `json:"testCases"`
	SampleAnswer string            `json:"sampleAnswer"`
	Difficulty   domain.Difficulty `json:"difficulty"`
	Points       int               `json:"points"`
}

// Generator turns chat completions into structured questions and feedback.
type Generator struct {
	client ChatClient
	logger *slog.Logger
}

func NewGenerator(client ChatClient, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, logger: logger}
}

type questionsEnvelope struct {
	Questions []GeneratedQuestion `json:"questions"`
}

// GenerateQuestions issues one completion and parses its JSON body. A
// malformed response is a hard failure for this call.
func (g *Generator) GenerateQuestions(ctx context.Context, req GenerateRequest) ([]GeneratedQuestion, error) {
	content, err := g.client.Complete(ctx, CompletionRequest{
		System:     questionSystemPrompt,
		User:       buildGeneratePrompt(req.Topic, req.Language, req.Difficulty, req.Count, req.CurriculumContext, req.AvoidTitles),
		JSONObject: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}

	var envelope questionsEnvelope
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		g.logger.Error("unparseable generation response", "error", err)
		return nil, fmt.Errorf("%w: unparseable response", domain.ErrGenerationFailed)
	}

	questions := envelope.Questions
	for i := range questions {
		q := &questions[i]
		if !q.Difficulty.Valid() {
			if req.Difficulty != "" {
				q.Difficulty = req.Difficulty
			} else {
				q.Difficulty = domain.DifficultyEasy
			}
		}
		if q.Points <= 0 {
			q.Points = q.Difficulty.DefaultPoints()
		}
		for j := range q.TestCases {
			if q.TestCases[j].Points <= 0 {
				q.TestCases[j].Points = 5
			}
		}
		if q.Requirements == nil {
			q.Requirements = []string{}
		}
	}
	return questions, nil
}

// GenerateFeedback produces a short natural-language explanation for a failed
// submission. Callers degrade to a generic message on error.
func (g *Generator) GenerateFeedback(ctx context.Context, title, description, code string, failed []FailedTest) (string, error) {
	content, err := g.client.Complete(ctx, CompletionRequest{
		System: feedbackSystemPrompt,
		User:   buildFeedbackPrompt(title, description, code, failed),
	})
	if err != nil {
		return "", fmt.Errorf("generate feedback: %w", err)
	}
	return content, nil
}

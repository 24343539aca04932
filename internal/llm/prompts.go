package llm

import (
	"fmt"
	"strings"

	"code-exam-service/internal/domain"
)

const questionSystemPrompt = `You are an expert at writing programming exercises for learners.
Generate coding questions appropriate to the given topic and difficulty.

Rules:
1. Every question must be solvable by writing and running real code.
2. Test cases must carry concrete expected output.
3. Scale complexity with difficulty:
   - easy: one or two basic concepts
   - medium: two or three combined concepts
   - hard: applied problems needing three or more concepts or an algorithm
4. Descriptions must be clear enough for a beginner to understand.
5. Requirements must be specific and checkable.

Respond with a single JSON object:
{
  "questions": [
    {
      "title": "question title",
      "description": "full problem statement",
      "requirements": ["requirement 1", "requirement 2"],
      "testCases": [
        {"description": "what is checked", "expectedOutput": "expected stdout", "points": 5, "input": "stdin if any"}
      ],
      "sampleAnswer": "// reference solution",
      "difficulty": "easy|medium|hard",
      "points": 10
    }
  ]
}`

const feedbackSystemPrompt = `You are a supportive programming tutor. A learner's submission failed
some test cases. Explain, in plain language and without giving away the full
solution, what the code does wrong and which concept to revisit. Keep it short.`

var difficultyDescriptions = map[domain.Difficulty]string{
	domain.DifficultyEasy:   "easy - a short problem checking basic concepts",
	domain.DifficultyMedium: "medium - a problem combining several concepts",
	domain.DifficultyHard:   "hard - an applied problem requiring real problem-solving",
}

func buildGeneratePrompt(topic, language string, difficulty domain.Difficulty, count int, curriculumContext string, avoidTitles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nLanguage: %s\n", topic, language)
	if difficulty != "" {
		fmt.Fprintf(&b, "Difficulty: %s\n", difficultyDescriptions[difficulty])
	}
	fmt.Fprintf(&b, "Question count: %d\n\nGenerate %d questions. Each question must cover a different aspect of the topic.\n", count, count)

	if language == "python" {
		b.WriteString("\nNote: print() appends a newline; separate multiple prints with \\n in expectedOutput.\n")
	} else {
		b.WriteString("\nNote: console.log() appends a newline; separate multiple logs with \\n in expectedOutput.\n")
	}

	if curriculumContext != "" {
		fmt.Fprintf(&b, "\nCurriculum context:\n%s\n", curriculumContext)
	}

	// Best-effort dedup nudge only; no structural collision check downstream.
	if len(avoidTitles) > 0 {
		fmt.Fprintf(&b, "\nImportant: do NOT repeat any of these %d existing questions:\n", len(avoidTitles))
		for i, title := range avoidTitles {
			fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		}
		b.WriteString("Write questions with a different angle, situation, or shape than the list above.\n")
	}
	return b.String()
}

// FailedTest is the slice of a grading result shown to the feedback model.
type FailedTest struct {
	Description    string
	ExpectedOutput string
	ActualOutput   string
}

func buildFeedbackPrompt(title, description, code string, failed []FailedTest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\nDescription: %s\n\nLearner code:\n```\n%s\n```\n\nFailed test cases:\n", title, description, code)
	for _, f := range failed {
		fmt.Fprintf(&b, "- %s: expected %q, got %q\n", f.Description, f.ExpectedOutput, f.ActualOutput)
	}
	return b.String()
}

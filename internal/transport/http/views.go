package http

import (
	"time"

	"code-exam-service/internal/domain"
)

// Session views shape what learners may see. Exams withhold expected outputs
// and sample answers; practice sets expose expected outputs so learners can
// check themselves, but never the sample answer.

type testCaseView struct {
	Description    string `json:"description"`
	Points         int    `json:"points"`
	Input          string `json:"input,omitempty"`
	ExpectedOutput string `json:"expectedOutput,omitempty"`
}

type sessionItemView struct {
	ID           string            `json:"id"`
	Order        int               `json:"order"`
	Difficulty   domain.Difficulty `json:"difficulty"`
	Points       int               `json:"points"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Requirements []string          `json:"requirements"`
	TestCases    []testCaseView    `json:"testCases"`
	Language     string            `json:"language"`
}

type sessionView struct {
	ID          string             `json:"id"`
	Kind        domain.SessionKind `json:"kind"`
	Topics      []string           `json:"topics"`
	Language    string             `json:"language"`
	Level       string             `json:"level"`
	Questions   []sessionItemView  `json:"questions"`
	TotalPoints int                `json:"totalPoints"`
	TimeLimit   int                `json:"timeLimit,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

func learnerSessionView(session *domain.Session) sessionView {
	return buildSessionView(session, false)
}

func practiceSessionView(session *domain.Session) sessionView {
	return buildSessionView(session, true)
}

func buildSessionView(session *domain.Session, revealExpected bool) sessionView {
	questions := make([]sessionItemView, 0, len(session.Items))
	for _, item := range session.Items {
		testCases := make([]testCaseView, 0, len(item.TestCases))
		for _, tc := range item.TestCases {
			view := testCaseView{Description: tc.Description, Points: tc.Points, Input: tc.Input}
			if revealExpected {
				view.ExpectedOutput = tc.ExpectedOutput
			}
			testCases = append(testCases, view)
		}
		questions = append(questions, sessionItemView{
			ID:           item.ID,
			Order:        item.Order,
			Difficulty:   item.Difficulty,
			Points:       item.Points,
			Title:        item.Title,
			Description:  item.Description,
			Requirements: item.Requirements,
			TestCases:    testCases,
			Language:     item.Language,
		})
	}
	return sessionView{
		ID:          session.ID,
		Kind:        session.Kind,
		Topics:      session.Topics,
		Language:    session.Language,
		Level:       session.Level,
		Questions:   questions,
		TotalPoints: session.TotalPoints,
		TimeLimit:   session.TimeLimit,
		CreatedAt:   session.CreatedAt,
	}
}

package domain

import "time"

// TestCase is one expected-output check for a question. Input is optional and,
// when present, describes stdin the learner's program should handle.
type TestCase struct {
	Description    string `json:"description"`
	ExpectedOutput string `json:"expectedOutput"`
	Points         int    `json:"points"`
	Input          string `json:"input,omitempty"`
}

// Question is a bank item. Only approved questions are selectable for
// learner-facing sessions.
type Question struct {
	ID           string         `json:"id"`
	Language     string         `json:"language"`
	TrackID      string         `json:"trackId"`
	TopicID      string         `json:"topicId"`
	Difficulty   Difficulty     `json:"difficulty"`
	Points       int            `json:"points"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Requirements []string       `json:"requirements"`
	TestCases    []TestCase     `json:"testCases"`
	SampleAnswer string         `json:"sampleAnswer"`
	Status       ApprovalStatus `json:"status"`
	CreatedBy    string         `json:"createdBy"`
	ApprovedBy   string         `json:"approvedBy,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// DifficultyConfig sizes a generation request per tier.
type DifficultyConfig struct {
	Easy   int `json:"easy"`
	Medium int `json:"medium"`
	Hard   int `json:"hard"`
}

// Total returns the number of questions the config asks for.
func (c DifficultyConfig) Total() int {
	return c.Easy + c.Medium + c.Hard
}

// CountFor returns the requested count for a tier.
func (c DifficultyConfig) CountFor(d Difficulty) int {
	switch d {
	case DifficultyEasy:
		return c.Easy
	case DifficultyMedium:
		return c.Medium
	case DifficultyHard:
		return c.Hard
	}
	return 0
}

// GenerationJob tracks a background request to synthesize bank questions.
// Status only moves forward: pending -> in_progress -> completed|failed.
type GenerationJob struct {
	ID               string           `json:"id"`
	Language         string           `json:"language"`
	TrackID          string           `json:"trackId"`
	TopicID          string           `json:"topicId"`
	TopicName        string           `json:"topicName"`
	DifficultyConfig DifficultyConfig `json:"difficultyConfig"`
	Status           JobStatus        `json:"status"`
	CreatedBy        string           `json:"createdBy"`
	ErrorMessage     string           `json:"errorMessage,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
}

// SessionItem is a denormalized copy of a Question frozen into a session at
// generation time. Later bank edits never affect it.
type SessionItem struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	Order        int        `json:"order"`
	Difficulty   Difficulty `json:"difficulty"`
	Points       int        `json:"points"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Requirements []string   `json:"requirements"`
	TestCases    []TestCase `json:"testCases"`
	SampleAnswer string     `json:"sampleAnswer"`
	Language     string     `json:"language"`
}

// SessionKind distinguishes timed exams from untimed practice sets.
type SessionKind string

const (
	SessionExam     SessionKind = "exam"
	SessionPractice SessionKind = "practice"
)

// Session is an immutable, ordered set of items a learner works through.
// TimeLimit is in minutes and only set for exams (zero means untimed).
type Session struct {
	ID          string        `json:"id"`
	Kind        SessionKind   `json:"kind"`
	Topics      []string      `json:"topics"`
	Language    string        `json:"language"`
	Level       string        `json:"level"`
	TrackID     string        `json:"trackId,omitempty"`
	TopicIDs    []string      `json:"topicIds,omitempty"`
	Items       []SessionItem `json:"items"`
	TotalPoints int           `json:"totalPoints"`
	TimeLimit   int           `json:"timeLimit,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Item returns the session item with the given id, if it belongs here.
func (s *Session) Item(id string) (SessionItem, bool) {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return s.Items[i], true
		}
	}
	return SessionItem{}, false
}

// TestResult is the per-test outcome of grading one submission.
type TestResult struct {
	Description    string `json:"description"`
	Passed         bool   `json:"passed"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	Points         int    `json:"points"`
	EarnedPoints   int    `json:"earnedPoints"`
}

// AnswerSubmission is the recorded (and overwritable) answer for one question
// of an attempt. No submission history is kept.
type AnswerSubmission struct {
	QuestionID  string       `json:"questionId"`
	Code        string       `json:"code"`
	SubmittedAt time.Time    `json:"submittedAt"`
	Score       int          `json:"score"`
	Passed      bool         `json:"passed"`
	Feedback    string       `json:"feedback,omitempty"`
	TestResults []TestResult `json:"testResults"`
}

// Attempt is one learner's run through a session. Elapsed time is measured
// from StartedAt, so an idle attempt still expires.
type Attempt struct {
	ID          string                      `json:"id"`
	SessionID   string                      `json:"sessionId"`
	UserID      string                      `json:"userId"`
	StartedAt   time.Time                   `json:"startedAt"`
	SubmittedAt *time.Time                  `json:"submittedAt,omitempty"`
	Answers     map[string]AnswerSubmission `json:"answers"`
	Score       int                         `json:"score"`
	Grade       string                      `json:"grade,omitempty"`
	Status      AttemptStatus               `json:"status"`
}

// ExecutionResult is the gateway's view of one sandbox run.
type ExecutionResult struct {
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exitCode"`
	Signal          string `json:"signal,omitempty"`
	CompileFailed   bool   `json:"compileFailed,omitempty"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	Language        string `json:"language,omitempty"`
	Version         string `json:"version,omitempty"`
}

// GradeResult aggregates per-test results for one submission.
type GradeResult struct {
	TestResults  []TestResult `json:"testResults"`
	EarnedPoints int          `json:"earnedPoints"`
	MaxPoints    int          `json:"maxPoints"`
	Passed       bool         `json:"passed"`
}

// TopicStats summarizes bank coverage for one topic.
type TopicStats struct {
	Language      string `json:"language"`
	TrackID       string `json:"trackId"`
	TopicID       string `json:"topicId"`
	EasyCount     int    `json:"easyCount"`
	MediumCount   int    `json:"mediumCount"`
	HardCount     int    `json:"hardCount"`
	TotalCount    int    `json:"totalCount"`
	PendingCount  int    `json:"pendingCount"`
	ApprovedCount int    `json:"approvedCount"`
}

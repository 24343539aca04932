package domain

import "errors"

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAttemptNotFound is returned for an unknown attempt id.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuestionNotFound indicates a question id that is not part of the session.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrJobNotFound is returned for an unknown generation job id.
	ErrJobNotFound = errors.New("generation job not found")
	// ErrNoApprovedQuestions indicates the bank has zero approved questions for
	// the requested topic (terminal for the practice path).
	ErrNoApprovedQuestions = errors.New("no approved questions in bank")
	// ErrAttemptNotInProgress rejects submissions against a sealed attempt.
	ErrAttemptNotInProgress = errors.New("attempt is not in progress")
	// ErrTimeLimitExceeded rejects submissions past the session's time limit.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")
	// ErrGenerationFailed indicates the LLM produced no usable questions.
	ErrGenerationFailed = errors.New("question generation failed")
	// ErrInvalidTransition rejects a backward job status move.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// ValidationError is a synchronous input rejection; no state was mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// Validationf builds a ValidationError for a field.
func Validationf(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

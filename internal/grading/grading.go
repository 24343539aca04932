// Package grading scores sandbox execution output against a question's test
// cases. Comparison is exact equality after trimming surrounding whitespace on
// both sides; there is no fuzzy matching and no partial credit within a test.
package grading

import (
	"strings"

	"code-exam-service/internal/domain"
)

// Grade compares the execution's stdout against every test case. Each test
// awards its full point value on an exact trimmed match, else zero. Passed
// requires a perfect score and a clean process exit; with zero test cases it
// reduces to the exit code alone (no synthetic percentage fallback).
func Grade(exec domain.ExecutionResult, testCases []domain.TestCase) domain.GradeResult {
	actual := strings.TrimSpace(exec.Stdout)

	results := make([]domain.TestResult, 0, len(testCases))
	earned := 0
	max := 0
	for _, tc := range testCases {
		expected := strings.TrimSpace(tc.ExpectedOutput)
		passed := actual == expected
		awarded := 0
		if passed {
			awarded = tc.Points
		}
		earned += awarded
		max += tc.Points
		results = append(results, domain.TestResult{
			Description:    tc.Description,
			Passed:         passed,
			ExpectedOutput: expected,
			ActualOutput:   actual,
			Points:         tc.Points,
			EarnedPoints:   awarded,
		})
	}

	return domain.GradeResult{
		TestResults:  results,
		EarnedPoints: earned,
		MaxPoints:    max,
		Passed:       earned == max && exec.ExitCode == 0,
	}
}

// LetterGrade maps a percentage to the fixed grade thresholds.
func LetterGrade(percentage int) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}

// Percentage rounds 100*score/total to the nearest integer.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(score)/float64(total)*100 + 0.5)
}

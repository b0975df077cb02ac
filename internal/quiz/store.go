package quiz

import "context"

// Store persists quizzes and the one result per (quiz, student).
// GetQuiz returns the full quiz including answer keys; callers serving
// students use Quiz.StudentView.
type Store interface {
	PutQuiz(ctx context.Context, q Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	// UpsertResult replaces any existing result for the pair and keeps the
	// stored ID.
	UpsertResult(ctx context.Context, r Result) (Result, error)
	GetResult(ctx context.Context, quizID, studentID string) (Result, error)
	ListResults(ctx context.Context, quizID string) ([]Result, error)
}

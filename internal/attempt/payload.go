package attempt

import (
	"github.com/juanlms/quizcore/internal/grading"
	"github.com/juanlms/quizcore/internal/quiz"
)

// buildPayload captures every answer slot, answered or not, keyed by both
// question id and position. timeSpent is the sum of the per-question times.
func buildPayload(studentID string, q quiz.Quiz, answers []grading.Answer, violations int,
	events []quiz.ViolationEvent, times []float64) quiz.SubmitPayload {
	p := quiz.SubmitPayload{
		StudentID:       studentID,
		Answers:         make([]quiz.SubmittedAnswer, len(q.Questions)),
		ViolationCount:  violations,
		ViolationEvents: append([]quiz.ViolationEvent{}, events...),
		QuestionTimes:   append([]float64{}, times...),
	}
	for i, qq := range q.Questions {
		a := quiz.EmptyAnswer(qq.Type)
		if i < len(answers) {
			a = copyAnswer(answers[i])
		}
		p.Answers[i] = quiz.SubmittedAnswer{QuestionID: qq.ID, QuestionIndex: i, Answer: a}
	}
	for _, t := range times {
		p.TimeSpent += t
	}
	return p
}

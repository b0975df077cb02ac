package quiz

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/juanlms/quizcore/internal/grading"
)

type ViolationEvent struct {
	Question int       `json:"question"` // 1-based
	Time     time.Time `json:"time"`
}

type CheckedAnswer struct {
	Correct       bool            `json:"correct"`
	StudentAnswer grading.Answer  `json:"studentAnswer"`
	CorrectAnswer *grading.Answer `json:"correctAnswer,omitempty"`
	Points        float64         `json:"points"`
	MaxPoints     float64         `json:"maxPoints"`
}

type SubmittedAnswer struct {
	QuestionID    string         `json:"questionId,omitempty"`
	QuestionIndex int            `json:"questionIndex"`
	Answer        grading.Answer `json:"answer"`
}

// Result is the single stored outcome for a (quiz, student) pair.
type Result struct {
	ID              string            `json:"id"`
	QuizID          string            `json:"quizId"`
	StudentID       string            `json:"studentId"`
	Score           float64           `json:"score"`
	Total           float64           `json:"total"`
	Percentage      int               `json:"percentage"`
	CheckedAnswers  []CheckedAnswer   `json:"checkedAnswers"`
	Answers         []SubmittedAnswer `json:"answers"`
	SubmittedAt     time.Time         `json:"submittedAt"`
	TimeSpent       float64           `json:"timeSpent"` // seconds
	ViolationCount  int               `json:"violationCount"`
	ViolationEvents []ViolationEvent  `json:"violationEvents"`
	QuestionTimes   []float64         `json:"questionTimes"`
}

// Redacted returns a copy without correct answers.
func (r Result) Redacted() Result {
	out := r.clone()
	for i := range out.CheckedAnswers {
		out.CheckedAnswers[i].CorrectAnswer = nil
	}
	return out
}

func (r Result) clone() Result {
	out := r
	out.CheckedAnswers = append([]CheckedAnswer(nil), r.CheckedAnswers...)
	out.Answers = append([]SubmittedAnswer(nil), r.Answers...)
	out.ViolationEvents = append([]ViolationEvent(nil), r.ViolationEvents...)
	out.QuestionTimes = append([]float64(nil), r.QuestionTimes...)
	return out
}

// SubmissionEntry is one answer as sent by the client. Answer stays raw
// until intake because its JSON shape varies by question type.
type SubmissionEntry struct {
	QuestionID    QuestionRef     `json:"questionId,omitempty"`
	QuestionIndex *int            `json:"questionIndex,omitempty" validate:"omitempty,gte=0"`
	Answer        json.RawMessage `json:"answer"`
}

// QuestionRef is the questionId of a submitted entry. Clients send the
// question's id, or its position as a string or number when the question
// has none. Other JSON values decode to an empty ref.
type QuestionRef string

func (r *QuestionRef) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*r = QuestionRef(t)
	case json.Number:
		*r = QuestionRef(t.String())
	default:
		*r = ""
	}
	return nil
}

// Index reports the ref as a question position.
func (r QuestionRef) Index() (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(string(r)))
	return i, err == nil
}

type Submission struct {
	StudentID       string            `json:"studentId" validate:"required"`
	Answers         []SubmissionEntry `json:"answers" validate:"dive"`
	ViolationCount  int               `json:"violationCount" validate:"gte=0"`
	ViolationEvents []ViolationEvent  `json:"violationEvents"`
	QuestionTimes   []float64         `json:"questionTimes" validate:"dive,gte=0"`
	TimeSpent       *float64          `json:"timeSpent,omitempty" validate:"omitempty,gte=0"`
}

// SubmitPayload is what a client sends; it decodes server-side as a
// Submission.
type SubmitPayload struct {
	StudentID       string            `json:"studentId"`
	Answers         []SubmittedAnswer `json:"answers"`
	ViolationCount  int               `json:"violationCount"`
	ViolationEvents []ViolationEvent  `json:"violationEvents"`
	QuestionTimes   []float64         `json:"questionTimes"`
	TimeSpent       float64           `json:"timeSpent"`
}

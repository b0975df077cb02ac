package quiz

import (
	"fmt"
	"strings"
	"time"

	"github.com/juanlms/quizcore/internal/grading"
)

// Question types.
const (
	TypeMultiple       = grading.TypeMultiple
	TypeTrueFalse      = grading.TypeTrueFalse
	TypeIdentification = grading.TypeIdentification
)

type Timing struct {
	Open  *time.Time `json:"open,omitempty"`
	Close *time.Time `json:"close,omitempty"`
}

type Question struct {
	ID      string   `json:"id,omitempty"`
	Prompt  string   `json:"question,omitempty"`
	Type    string   `json:"type" validate:"required,oneof=multiple truefalse identification"`
	Choices []string `json:"choices,omitempty"`
	// Both key fields are accepted; legacy data stores choice indices in
	// CorrectAnswers.
	CorrectAnswer  AnswerKey `json:"correctAnswer,omitempty"`
	CorrectAnswers AnswerKey `json:"correctAnswers,omitempty"`
	Points         float64   `json:"points,omitempty" validate:"gte=0"`
}

type Quiz struct {
	ID        string     `json:"id" validate:"required"`
	Title     string     `json:"title" validate:"required"`
	ClassID   string     `json:"classId,omitempty"`
	Questions []Question `json:"questions" validate:"required,min=1,dive"`
	Points    float64    `json:"points,omitempty" validate:"gte=0"`
	Timing    *Timing    `json:"timing,omitempty"`
	TimeLimit int        `json:"timeLimit,omitempty" validate:"gte=0"` // minutes
	Duration  int        `json:"duration,omitempty" validate:"gte=0"`  // minutes, legacy alias of TimeLimit
	CreatedBy string     `json:"createdBy,omitempty"`
	CreatedAt int64      `json:"createdAt,omitempty"`
}

// TimeLimitMinutes returns the attempt length bound, 0 when unlimited.
func (q Quiz) TimeLimitMinutes() int {
	if q.TimeLimit > 0 {
		return q.TimeLimit
	}
	if q.Duration > 0 {
		return q.Duration
	}
	return 0
}

func (q Quiz) OpensAt() *time.Time {
	if q.Timing == nil {
		return nil
	}
	return q.Timing.Open
}

func (q Quiz) ClosesAt() *time.Time {
	if q.Timing == nil {
		return nil
	}
	return q.Timing.Close
}

// AvailableAt reports whether now lies within [open, close]; a missing bound
// is unbounded on that side.
func (q Quiz) AvailableAt(now time.Time) bool {
	if open := q.OpensAt(); open != nil && now.Before(*open) {
		return false
	}
	if cl := q.ClosesAt(); cl != nil && now.After(*cl) {
		return false
	}
	return true
}

// HasClosed reports whether the quiz has a close time that lies before now.
func (q Quiz) HasClosed(now time.Time) bool {
	cl := q.ClosesAt()
	return cl != nil && now.After(*cl)
}

// StudentView returns a copy of the quiz with answer keys removed.
func (q Quiz) StudentView() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, qq := range q.Questions {
		qq.CorrectAnswer = nil
		qq.CorrectAnswers = nil
		qq.Choices = append([]string(nil), qq.Choices...)
		out.Questions[i] = qq
	}
	return out
}

// Key returns the accepted answers as text. Index entries of a multiple-choice
// key are resolved against Choices; out-of-range indices are dropped.
// Duplicates (ignoring case) are removed, order is kept.
func (q Question) Key() []string {
	entries := make([]KeyEntry, 0, len(q.CorrectAnswer)+len(q.CorrectAnswers))
	entries = append(entries, q.CorrectAnswer...)
	entries = append(entries, q.CorrectAnswers...)

	out := make([]string, 0, len(entries))
	seen := map[string]struct{}{}
	for _, e := range entries {
		var s string
		switch {
		case q.Type == TypeMultiple && e.IsIndex:
			if e.Index < 0 || e.Index >= len(q.Choices) {
				continue
			}
			s = q.Choices[e.Index]
		case q.Type == TypeTrueFalse:
			s = normalizeTrueFalse(e.Text)
		default:
			s = e.Text
		}
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (q Question) gradingView() grading.Q {
	return grading.Q{Type: q.Type, Points: q.Points, AnswerKey: q.Key()}
}

// CorrectAnswerView renders the key the way a checked answer presents it:
// a choice list for multiple-choice and multi-literal identification, a
// single string otherwise.
func (q Question) CorrectAnswerView() grading.Answer {
	key := q.Key()
	if q.Type == TypeMultiple || len(key) > 1 {
		return grading.Choices(key...)
	}
	if len(key) == 0 {
		return grading.Text("")
	}
	return grading.Text(key[0])
}

// EmptyAnswer is the unanswered slot for a question type.
func EmptyAnswer(qtype string) grading.Answer {
	if qtype == TypeMultiple {
		return grading.Choices()
	}
	return grading.Text("")
}

func normalizeTrueFalse(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t":
		return "True"
	case "false", "f":
		return "False"
	}
	return strings.TrimSpace(s)
}

// Validate checks what struct tags cannot: window ordering, choices for
// multiple-choice questions, and that every question has a usable key.
func (q Quiz) Validate() error {
	if open, cl := q.OpensAt(), q.ClosesAt(); open != nil && cl != nil && open.After(*cl) {
		return fmt.Errorf("%w: timing.open is after timing.close", ErrInvalidQuiz)
	}
	for i, qq := range q.Questions {
		if qq.Type == TypeMultiple && len(qq.Choices) == 0 {
			return fmt.Errorf("%w: question %d has no choices", ErrInvalidQuiz, i+1)
		}
		if len(qq.Key()) == 0 {
			return fmt.Errorf("%w: question %d has no answer key", ErrInvalidQuiz, i+1)
		}
	}
	return nil
}

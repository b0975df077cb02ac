package attempt

import (
	"time"

	"github.com/juanlms/quizcore/internal/grading"
	"github.com/juanlms/quizcore/internal/quiz"
)

type State int

const (
	Idle State = iota
	Loading
	LoadFailed
	Unavailable
	AlreadySubmitted
	TakingQuiz
	ConfirmSubmit
	Submitting
	RevealChoice
	Reviewing
)

var stateNames = [...]string{
	Idle:             "idle",
	Loading:          "loading",
	LoadFailed:       "load_failed",
	Unavailable:      "unavailable",
	AlreadySubmitted: "already_submitted",
	TakingQuiz:       "taking_quiz",
	ConfirmSubmit:    "confirm_submit",
	Submitting:       "submitting",
	RevealChoice:     "reveal_choice",
	Reviewing:        "reviewing",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Snapshot is a copy of the session safe to read without the controller's
// lock.
type Snapshot struct {
	State           State
	Quiz            quiz.Quiz // keys are absent for students
	CurrentQuestion int
	Answers         []grading.Answer // one slot per question
	TimeLeft        *int             // seconds; nil when the quiz has no limit
	ViolationCount  int
	ViolationEvents []quiz.ViolationEvent
	QuestionTimes   []float64 // seconds per question
	ReviewMode      bool
	Result          *quiz.Result
	CheckedAnswers  []quiz.CheckedAnswer
	ShowScore       bool
	ShowAnswers     bool
	Unanswered      []int // 1-based, set in ConfirmSubmit
	Err             error
	OpensAt         *time.Time
	ClosesAt        *time.Time
}

// session is the mutable state guarded by Controller.mu.
type session Snapshot

func (s *session) snapshot() Snapshot {
	out := Snapshot(*s)
	out.Quiz = s.Quiz.StudentView()
	out.Answers = make([]grading.Answer, len(s.Answers))
	for i, a := range s.Answers {
		out.Answers[i] = copyAnswer(a)
	}
	if s.TimeLeft != nil {
		tl := *s.TimeLeft
		out.TimeLeft = &tl
	}
	out.ViolationEvents = append([]quiz.ViolationEvent(nil), s.ViolationEvents...)
	out.QuestionTimes = append([]float64(nil), s.QuestionTimes...)
	out.CheckedAnswers = append([]quiz.CheckedAnswer(nil), s.CheckedAnswers...)
	out.Unanswered = append([]int(nil), s.Unanswered...)
	if s.Result != nil {
		r := *s.Result
		out.Result = &r
	}
	return out
}

func copyAnswer(a grading.Answer) grading.Answer {
	if a.Kind == grading.KindChoices {
		return grading.Choices(a.Choices...)
	}
	return a
}

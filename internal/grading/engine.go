package grading

// Question types understood by the engine.
const (
	TypeMultiple       = "multiple"
	TypeTrueFalse      = "truefalse"
	TypeIdentification = "identification"
)

// Reasons attached to a Verdict.
const (
	ReasonCorrect     = "correct"
	ReasonCloseMatch  = "close_match"
	ReasonWrong       = "wrong"
	ReasonUnanswered  = "unanswered"
	ReasonNoKey       = "no_answer_key"
	ReasonUnsupported = "unsupported_type"
)

// Q is a minimal view of a question needed for grading.
// AnswerKey holds accepted answers as text; choice indices must already be
// resolved against the question's choices.
type Q struct {
	Type      string
	Points    float64
	AnswerKey []string
}

// Verdict is the outcome of grading a single response. Credit is binary.
type Verdict struct {
	Correct bool
	Reason  string
}

// Strategy grades a single question type.
type Strategy interface {
	Grade(q Q, a Answer) Verdict
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(q Q, a Answer) Verdict
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(q Q, a Answer) Verdict {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Verdict{Reason: ReasonUnsupported}
	}
	if len(q.AnswerKey) == 0 {
		return Verdict{Reason: ReasonNoKey}
	}
	if a.Empty() {
		return Verdict{Reason: ReasonUnanswered}
	}
	return s.Grade(q, a)
}

// Engine options

type Option func(*config)

type config struct {
	MaxEditDistance int // identification tolerance, 0 = exact only
}

func WithMaxEditDistance(n int) Option { return func(c *config) { c.MaxEditDistance = n } }

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			TypeMultiple:       choiceSetStrategy{},
			TypeTrueFalse:      trueFalseStrategy{},
			TypeIdentification: identificationStrategy{maxEdit: cfg.MaxEditDistance},
		},
	}
}

// --- Strategies ---

// choiceSetStrategy requires the selected set to equal the key set. A
// single-correct question is the one-element case.
type choiceSetStrategy struct{}

func (choiceSetStrategy) Grade(q Q, a Answer) Verdict {
	if setEqual(toSet(q.AnswerKey), toSet(a.Values())) {
		return Verdict{Correct: true, Reason: ReasonCorrect}
	}
	return Verdict{Reason: ReasonWrong}
}

type trueFalseStrategy struct{}

func (trueFalseStrategy) Grade(q Q, a Answer) Verdict {
	vals := a.Values()
	if len(vals) != 1 {
		return Verdict{Reason: ReasonWrong}
	}
	if fold(vals[0]) == fold(q.AnswerKey[0]) {
		return Verdict{Correct: true, Reason: ReasonCorrect}
	}
	return Verdict{Reason: ReasonWrong}
}

type identificationStrategy struct{ maxEdit int }

func (s identificationStrategy) Grade(q Q, a Answer) Verdict {
	vals := a.Values()
	if len(vals) != 1 {
		return Verdict{Reason: ReasonWrong}
	}
	resp := fold(vals[0])
	near := false
	for _, k := range q.AnswerKey {
		nk := fold(k)
		if nk == resp {
			return Verdict{Correct: true, Reason: ReasonCorrect}
		}
		if s.maxEdit > 0 && levenshtein(nk, resp) <= s.maxEdit {
			near = true
		}
	}
	if near {
		return Verdict{Correct: true, Reason: ReasonCloseMatch}
	}
	return Verdict{Reason: ReasonWrong}
}

// helpers

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		if k := fold(s); k != "" {
			m[k] = struct{}{}
		}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

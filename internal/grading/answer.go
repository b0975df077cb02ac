package grading

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

type AnswerKind uint8

const (
	KindNone AnswerKind = iota
	KindChoices
	KindText
)

// Answer is a learner's response in canonical form. Multiple-choice answers
// carry the selected choice text (never indices); every other type carries a
// single string.
type Answer struct {
	Kind    AnswerKind
	Choices []string
	Text    string
}

// Choices builds a multiple-choice answer. The slice is copied.
func Choices(c ...string) Answer {
	out := make([]string, 0, len(c))
	out = append(out, c...)
	return Answer{Kind: KindChoices, Choices: out}
}

func Text(s string) Answer { return Answer{Kind: KindText, Text: s} }

// Empty reports whether the answer counts as unanswered.
func (a Answer) Empty() bool {
	switch a.Kind {
	case KindChoices:
		return len(a.Choices) == 0
	case KindText:
		return strings.TrimSpace(a.Text) == ""
	default:
		return true
	}
}

// Values returns the answer as a list regardless of kind.
func (a Answer) Values() []string {
	switch a.Kind {
	case KindChoices:
		return append([]string(nil), a.Choices...)
	case KindText:
		if a.Text == "" {
			return nil
		}
		return []string{a.Text}
	default:
		return nil
	}
}

// Has reports whether choice is selected, ignoring case and surrounding space.
func (a Answer) Has(choice string) bool {
	k := fold(choice)
	for _, c := range a.Values() {
		if fold(c) == k {
			return true
		}
	}
	return false
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case KindChoices:
		if a.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Choices)
	case KindText:
		return json.Marshal(a.Text)
	default:
		return []byte("null"), nil
	}
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*a = Answer{}
	case b[0] == '[':
		var arr []string
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		*a = Choices(arr...)
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Text(s)
	default:
		return errors.New("grading: answer must be a string or an array of strings")
	}
	return nil
}

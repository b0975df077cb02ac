package quiz

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/juanlms/quizcore/internal/grading"
)

// MatchEntries assigns submitted entries to questions. An entry is matched by
// questionId first, then by questionIndex, then by a questionId that is a
// question position (quizzes whose questions carry no ids). Entries still
// unmatched and without a questionIndex fall back to their array position.
// Each question takes at most one entry and the first claim wins; entries
// that match nothing are dropped.
func MatchEntries(questions []Question, entries []SubmissionEntry) []json.RawMessage {
	out := make([]json.RawMessage, len(questions))
	filled := make([]bool, len(questions))
	used := make([]bool, len(entries))

	byID := make(map[string]int, len(questions))
	for i, q := range questions {
		if q.ID != "" {
			if _, dup := byID[q.ID]; !dup {
				byID[q.ID] = i
			}
		}
	}
	claim := func(qi, ei int) bool {
		if qi < 0 || qi >= len(questions) || filled[qi] {
			return false
		}
		out[qi] = entries[ei].Answer
		filled[qi] = true
		used[ei] = true
		return true
	}

	for ei, e := range entries {
		if e.QuestionID == "" {
			continue
		}
		if qi, ok := byID[string(e.QuestionID)]; ok {
			claim(qi, ei)
		}
	}
	for ei, e := range entries {
		if !used[ei] && e.QuestionIndex != nil {
			claim(*e.QuestionIndex, ei)
		}
	}
	for ei, e := range entries {
		if used[ei] || e.QuestionID == "" {
			continue
		}
		if _, known := byID[string(e.QuestionID)]; known {
			continue
		}
		if qi, ok := e.QuestionID.Index(); ok {
			claim(qi, ei)
		}
	}
	for ei, e := range entries {
		if used[ei] || e.QuestionIndex != nil {
			continue
		}
		if _, known := byID[string(e.QuestionID)]; known {
			continue
		}
		claim(ei, ei)
	}
	return out
}

// DecodeAnswer converts a raw submitted answer into the canonical form for
// the question's type. A missing or null answer is a valid unanswered slot.
// ok is false when the payload was malformed; the returned answer is then
// the empty slot so grading marks it incorrect.
func DecodeAnswer(q Question, raw json.RawMessage) (grading.Answer, bool) {
	empty := EmptyAnswer(q.Type)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return empty, true
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return empty, false
	}

	switch q.Type {
	case TypeMultiple:
		items, isList := v.([]any)
		if !isList {
			items = []any{v}
		}
		picked := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := choiceText(q, it)
			if !ok {
				return empty, false
			}
			if strings.TrimSpace(s) != "" {
				picked = append(picked, s)
			}
		}
		return grading.Choices(picked...), true

	case TypeTrueFalse:
		s, ok := singleText(v)
		if !ok {
			return empty, false
		}
		return grading.Text(normalizeTrueFalse(s)), true

	case TypeIdentification:
		s, ok := singleText(v)
		if !ok {
			return empty, false
		}
		return grading.Text(s), true
	}
	return empty, false
}

// DecodeAll decodes one matched payload per question and reports how many
// were malformed.
func DecodeAll(questions []Question, raws []json.RawMessage) ([]grading.Answer, int) {
	out := make([]grading.Answer, len(questions))
	bad := 0
	for i, q := range questions {
		var raw json.RawMessage
		if i < len(raws) {
			raw = raws[i]
		}
		a, ok := DecodeAnswer(q, raw)
		if !ok {
			bad++
		}
		out[i] = a
	}
	return out, bad
}

// choiceText accepts choice text or an integer index into the choices.
func choiceText(q Question, v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		i, err := strconv.Atoi(t.String())
		if err != nil || i < 0 || i >= len(q.Choices) {
			return "", false
		}
		return q.Choices[i], true
	}
	return "", false
}

// singleText accepts a string, bool, number, or a one-element array of those.
func singleText(v any) (string, bool) {
	if list, ok := v.([]any); ok {
		switch len(list) {
		case 0:
			return "", true
		case 1:
			v = list[0]
		default:
			return "", false
		}
	}
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		if t {
			return "True", true
		}
		return "False", true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

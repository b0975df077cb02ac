package quiz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// KeyEntry is one accepted answer as stored. JSON numbers are kept as
// indices so they can be resolved against a multiple-choice question's
// choices; strings are always text.
type KeyEntry struct {
	Text    string
	Index   int
	IsIndex bool
}

func TextKey(s string) KeyEntry { return KeyEntry{Text: s} }
func IndexKey(i int) KeyEntry   { return KeyEntry{Text: strconv.Itoa(i), Index: i, IsIndex: true} }

// AnswerKey accepts a string, number, boolean, or an array of those.
type AnswerKey []KeyEntry

func (k AnswerKey) MarshalJSON() ([]byte, error) {
	out := make([]any, len(k))
	for i, e := range k {
		if e.IsIndex {
			out[i] = e.Index
		} else {
			out[i] = e.Text
		}
	}
	return json.Marshal(out)
}

func (k *AnswerKey) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	if v == nil {
		*k = nil
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	out := make(AnswerKey, 0, len(list))
	for _, item := range list {
		e, err := keyEntry(item)
		if err != nil {
			return err
		}
		out = append(out, e)
	}
	*k = out
	return nil
}

func keyEntry(v any) (KeyEntry, error) {
	switch t := v.(type) {
	case string:
		return TextKey(t), nil
	case bool:
		if t {
			return TextKey("True"), nil
		}
		return TextKey("False"), nil
	case json.Number:
		if i, err := strconv.Atoi(t.String()); err == nil {
			return IndexKey(i), nil
		}
		return TextKey(t.String()), nil
	default:
		return KeyEntry{}, fmt.Errorf("quiz: unsupported answer key value %v", v)
	}
}

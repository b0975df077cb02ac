package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	quizzes map[string]Quiz
	results map[string]map[string]Result // quizID -> studentID -> result
}

func NewInMemoryStore() Store {
	return &memoryStore{
		quizzes: map[string]Quiz{},
		results: map[string]map[string]Result{},
	}
}

func (m *memoryStore) PutQuiz(_ context.Context, q Quiz) error {
	c, err := cloneQuiz(q)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = c
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	q, ok := m.quizzes[id]
	m.mu.RUnlock()
	if !ok {
		return Quiz{}, fmt.Errorf("%w: %s", ErrQuizNotFound, id)
	}
	return cloneQuiz(q)
}

func (m *memoryStore) UpsertResult(_ context.Context, r Result) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[r.QuizID]; !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrQuizNotFound, r.QuizID)
	}
	byStudent := m.results[r.QuizID]
	if byStudent == nil {
		byStudent = map[string]Result{}
		m.results[r.QuizID] = byStudent
	}
	if prev, ok := byStudent[r.StudentID]; ok {
		r.ID = prev.ID
	}
	byStudent[r.StudentID] = r.clone()
	return r.clone(), nil
}

func (m *memoryStore) GetResult(_ context.Context, quizID, studentID string) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[quizID][studentID]
	if !ok {
		return Result{}, ErrResultNotFound
	}
	return r.clone(), nil
}

func (m *memoryStore) ListResults(_ context.Context, quizID string) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Result, 0, len(m.results[quizID]))
	for _, r := range m.results[quizID] {
		out = append(out, r.clone())
	}
	sortResults(out)
	return out, nil
}

// cloneQuiz deep-copies through JSON, the same shape the SQL store keeps.
func cloneQuiz(q Quiz) (Quiz, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return Quiz{}, err
	}
	var out Quiz
	if err := json.Unmarshal(b, &out); err != nil {
		return Quiz{}, err
	}
	return out, nil
}

func sortResults(rs []Result) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].SubmittedAt.Equal(rs[j].SubmittedAt) {
			return rs[i].SubmittedAt.After(rs[j].SubmittedAt)
		}
		return rs[i].StudentID < rs[j].StudentID
	})
}

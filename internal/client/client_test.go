package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanlms/quizcore/internal/grading"
	"github.com/juanlms/quizcore/internal/quiz"
)

func TestClient_StatusMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusNotFound:            quiz.ErrQuizNotFound,
		http.StatusUnauthorized:        quiz.ErrAuthExpired,
		http.StatusForbidden:           quiz.ErrAccessDenied,
		http.StatusConflict:            quiz.ErrUnavailable,
		http.StatusBadRequest:          quiz.ErrInvalidSubmission,
		http.StatusInternalServerError: quiz.ErrServer,
		http.StatusBadGateway:          quiz.ErrServer,
		http.StatusGatewayTimeout:      quiz.ErrTimeout,
	}
	for code, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", code)
		}))
		_, err := New(srv.URL).FetchQuiz(context.Background(), "q1")
		assert.ErrorIs(t, err, want, "HTTP %d", code)
		srv.Close()
	}
}

func TestClient_FetchResultMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quizzes/q1/myscore", r.URL.Path)
		assert.Equal(t, "s1", r.URL.Query().Get("studentId"))
		assert.Equal(t, "true", r.URL.Query().Get("revealAnswers"))
		http.NotFound(w, r)
	}))
	defer srv.Close()

	r, err := New(srv.URL).FetchResult(context.Background(), "q1", "s1", true)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestClient_Submit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var sub quiz.Submission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		assert.Equal(t, "s1", sub.StudentID)
		require.Len(t, sub.Answers, 1)
		assert.JSONEq(t, `["Red"]`, string(sub.Answers[0].Answer))
		require.NotNil(t, sub.Answers[0].QuestionIndex)
		assert.Equal(t, 0, *sub.Answers[0].QuestionIndex)
		_ = json.NewEncoder(w).Encode(quiz.Result{ID: "r1", Score: 1, Total: 1, Percentage: 100})
	}))
	defer srv.Close()

	res, err := New(srv.URL, WithToken("tok")).Submit(context.Background(), "q1", quiz.SubmitPayload{
		StudentID: "s1",
		Answers:   []quiz.SubmittedAnswer{{QuestionID: "a", QuestionIndex: 0, Answer: grading.Choices("Red")}},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Percentage)
}

func TestClient_TransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL).FetchQuiz(ctx, "q1")
	assert.ErrorIs(t, err, quiz.ErrTimeout)
	assert.True(t, quiz.Retryable(err))

	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()
	_, err = New(url).FetchQuiz(context.Background(), "q1")
	assert.ErrorIs(t, err, quiz.ErrNetwork)
	assert.True(t, quiz.Retryable(err))
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/juanlms/quizcore/internal/quiz"
	"github.com/juanlms/quizcore/internal/rbac"
)

const maxBodyBytes = 1 << 20

// QuizService is the part of quiz.Service the handlers use.
type QuizService interface {
	GetQuiz(ctx context.Context, v quiz.Viewer, quizID string) (quiz.Quiz, error)
	PutQuiz(ctx context.Context, v quiz.Viewer, q quiz.Quiz) (quiz.Quiz, error)
	Submit(ctx context.Context, v quiz.Viewer, quizID string, sub quiz.Submission) (quiz.Result, error)
	MyScore(ctx context.Context, v quiz.Viewer, quizID, studentID string, reveal bool) (quiz.Result, error)
	ListResults(ctx context.Context, v quiz.Viewer, quizID string) ([]quiz.Result, error)
}

func viewer(r *http.Request) quiz.Viewer {
	return quiz.Viewer{
		Subject: rbac.SubjectFromContext(r.Context()),
		Role:    rbac.RoleFromContext(r.Context()),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /quizzes/{quizID}
func GetQuizHandler(svc QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := svc.GetQuiz(r.Context(), viewer(r), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// POST /quizzes
func CreateQuizHandler(svc QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Quiz
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		out, err := svc.PutQuiz(r.Context(), viewer(r), q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// POST /quizzes/{quizID}/submit
func SubmitQuizHandler(svc QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sub quiz.Submission
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sub); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		res, err := svc.Submit(r.Context(), viewer(r), chi.URLParam(r, "quizID"), sub)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /quizzes/{quizID}/myscore?studentId=...&revealAnswers=true
// studentId defaults to the caller.
func MyScoreHandler(svc QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs := r.URL.Query()
		reveal, _ := strconv.ParseBool(qs.Get("revealAnswers"))
		studentID := strings.TrimSpace(qs.Get("studentId"))

		res, err := svc.MyScore(r.Context(), viewer(r), chi.URLParam(r, "quizID"), studentID, reveal)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /quizzes/{quizID}/responses
func ListResponsesHandler(svc QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListResults(r.Context(), viewer(r), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

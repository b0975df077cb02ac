package http

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/juanlms/quizcore/internal/quiz"
	"github.com/juanlms/quizcore/pkg/logger"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, quiz.ErrQuizNotFound), errors.Is(err, quiz.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, quiz.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, quiz.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, quiz.ErrInvalidSubmission), errors.Is(err, quiz.ErrInvalidQuiz),
		errors.Is(err, quiz.ErrStudentNotFound):
		return http.StatusBadRequest
	case errors.Is(err, quiz.ErrUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "internal error", code)
		return
	}
	http.Error(w, err.Error(), code)
}

package quiz

import "errors"

var (
	ErrQuizNotFound      = errors.New("quiz not found")
	ErrResultNotFound    = errors.New("result not found")
	ErrStudentNotFound   = errors.New("student not found")
	ErrAccessDenied      = errors.New("quiz access denied")
	ErrAuthExpired       = errors.New("authentication expired")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrInvalidQuiz       = errors.New("invalid quiz")
	ErrUnavailable       = errors.New("quiz unavailable")

	// transport failures, seen by clients only
	ErrNetwork = errors.New("network error")
	ErrTimeout = errors.New("request timed out")
	ErrServer  = errors.New("server error")
)

// Retryable reports whether retrying the same request may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrServer)
}

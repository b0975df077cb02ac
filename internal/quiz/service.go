package quiz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/juanlms/quizcore/internal/grading"
	"github.com/juanlms/quizcore/internal/storage"
	syncx "github.com/juanlms/quizcore/internal/sync"
	"github.com/juanlms/quizcore/pkg/logger"
	"github.com/juanlms/quizcore/pkg/monitoring"
	"github.com/juanlms/quizcore/pkg/tracing"
)

const EventViolationsReported = "QuizViolationsReported"

const DefaultSubmitGrace = 5 * time.Minute

// Viewer is the authenticated caller.
type Viewer struct {
	Subject string
	Role    string
}

func (v Viewer) Instructor() bool { return v.Role == RoleTeacher || v.Role == RoleAdmin }

// EventSink receives outbox events for instructor notifications.
type EventSink interface {
	Append(ctx context.Context, e syncx.Event) error
}

type Service struct {
	store         Store
	roster        Roster
	grader        grading.Grader
	events        EventSink
	blobs         storage.BlobStore
	validate      *validator.Validate
	reveal        RevealPolicy
	grace         time.Duration
	enforceRoster bool
	now           func() time.Time
	newID         func() string
}

type Option func(*Service)

// WithRoster enables user and class membership checks on submit.
func WithRoster(r Roster) Option {
	return func(s *Service) { s.roster = r; s.enforceRoster = true }
}
func WithGrader(g grading.Grader) Option       { return func(s *Service) { s.grader = g } }
func WithEvents(e EventSink) Option            { return func(s *Service) { s.events = e } }
func WithBlobStore(b storage.BlobStore) Option { return func(s *Service) { s.blobs = b } }
func WithRevealPolicy(p RevealPolicy) Option   { return func(s *Service) { s.reveal = p } }
func WithSubmitGrace(d time.Duration) Option   { return func(s *Service) { s.grace = d } }
func WithClock(now func() time.Time) Option    { return func(s *Service) { s.now = now } }
func WithIDGenerator(f func() string) Option   { return func(s *Service) { s.newID = f } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		roster:   OpenRoster{},
		grader:   grading.NewDefaultGrader(),
		validate: validator.New(),
		reveal:   RevealAlways,
		grace:    DefaultSubmitGrace,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetQuiz returns the quiz; students get it without answer keys.
func (s *Service) GetQuiz(ctx context.Context, v Viewer, quizID string) (Quiz, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Quiz{}, err
	}
	if v.Instructor() {
		return q, nil
	}
	if err := s.checkEnrollment(ctx, q, v.Subject); err != nil {
		return Quiz{}, err
	}
	return q.StudentView(), nil
}

// PutQuiz validates and stores an instructor-authored quiz.
func (s *Service) PutQuiz(ctx context.Context, v Viewer, q Quiz) (Quiz, error) {
	if !v.Instructor() {
		return Quiz{}, ErrAccessDenied
	}
	if err := s.validate.StructCtx(ctx, q); err != nil {
		return Quiz{}, fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	if err := q.Validate(); err != nil {
		return Quiz{}, err
	}
	if q.CreatedAt == 0 {
		q.CreatedAt = s.now().Unix()
	}
	if q.CreatedBy == "" {
		q.CreatedBy = v.Subject
	}
	if err := s.store.PutQuiz(ctx, q); err != nil {
		return Quiz{}, err
	}
	logger.FromContext(ctx).Info("quiz stored",
		zap.String("quiz_id", q.ID), zap.Int("questions", len(q.Questions)))
	return q, nil
}

// Submit grades a submission and stores it as the student's only result.
func (s *Service) Submit(ctx context.Context, v Viewer, quizID string, sub Submission) (Result, error) {
	ctx, span := tracing.Start(ctx, "quiz.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("quiz.id", quizID), attribute.String("student.id", sub.StudentID))

	log := logger.FromContext(ctx).With(zap.String("quiz_id", quizID), zap.String("student_id", sub.StudentID))

	if err := s.validate.StructCtx(ctx, sub); err != nil {
		monitoring.ObserveRejected("invalid")
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if !v.Instructor() && sub.StudentID != v.Subject {
		monitoring.ObserveRejected("forbidden")
		return Result{}, fmt.Errorf("%w: cannot submit for another student", ErrAccessDenied)
	}

	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Result{}, err
	}
	if s.enforceRoster {
		if _, err := s.roster.User(ctx, sub.StudentID); err != nil {
			return Result{}, err
		}
		if err := s.checkEnrollment(ctx, q, sub.StudentID); err != nil {
			return Result{}, err
		}
	}

	now := s.now()
	if err := s.checkWindow(q, now); err != nil {
		monitoring.ObserveRejected("unavailable")
		return Result{}, err
	}

	answers, malformed := DecodeAll(q.Questions, MatchEntries(q.Questions, sub.Answers))
	if malformed > 0 {
		log.Warn("malformed answers graded as incorrect", zap.Int("count", malformed))
	}

	items := make([]grading.Item, len(q.Questions))
	for i, qq := range q.Questions {
		items[i] = grading.Item{Q: qq.gradingView(), Answer: answers[i]}
	}
	sc := grading.Score(s.grader, items, q.Points)

	r := Result{
		ID:              s.newID(),
		QuizID:          q.ID,
		StudentID:       sub.StudentID,
		Score:           sc.Score,
		Total:           sc.Total,
		Percentage:      sc.Percentage,
		CheckedAnswers:  make([]CheckedAnswer, len(sc.Items)),
		Answers:         make([]SubmittedAnswer, len(q.Questions)),
		SubmittedAt:     now.UTC(),
		ViolationCount:  sub.ViolationCount,
		ViolationEvents: append([]ViolationEvent{}, sub.ViolationEvents...),
		QuestionTimes:   append([]float64{}, sub.QuestionTimes...),
	}
	for i, c := range sc.Items {
		key := q.Questions[i].CorrectAnswerView()
		r.CheckedAnswers[i] = CheckedAnswer{
			Correct:       c.Correct,
			StudentAnswer: c.StudentAnswer,
			CorrectAnswer: &key,
			Points:        c.Points,
			MaxPoints:     c.MaxPoints,
		}
		r.Answers[i] = SubmittedAnswer{QuestionID: q.Questions[i].ID, QuestionIndex: i, Answer: answers[i]}
	}
	if sub.TimeSpent != nil {
		r.TimeSpent = *sub.TimeSpent
	} else {
		for _, t := range sub.QuestionTimes {
			r.TimeSpent += t
		}
	}

	r, err = s.store.UpsertResult(ctx, r)
	if err != nil {
		return Result{}, fmt.Errorf("store result: %w", err)
	}
	monitoring.ObserveSubmission(r.Percentage, r.ViolationCount)
	log.Info("quiz graded",
		zap.String("result_id", r.ID),
		zap.Float64("score", r.Score),
		zap.Float64("total", r.Total),
		zap.Int("violations", r.ViolationCount))

	s.reportViolations(ctx, log, r)
	s.archiveReceipt(ctx, log, r, sub)

	return s.present(v, q, r, true), nil
}

// MyScore returns a stored result. Correct answers are included only when
// requested and allowed for the viewer.
func (s *Service) MyScore(ctx context.Context, v Viewer, quizID, studentID string, reveal bool) (Result, error) {
	if studentID == "" {
		studentID = v.Subject
	}
	if !v.Instructor() && studentID != v.Subject {
		return Result{}, fmt.Errorf("%w: cannot read another student's result", ErrAccessDenied)
	}
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Result{}, err
	}
	r, err := s.store.GetResult(ctx, quizID, studentID)
	if err != nil {
		return Result{}, err
	}
	return s.present(v, q, r, reveal), nil
}

// ListResults returns every result for a quiz with answers revealed.
func (s *Service) ListResults(ctx context.Context, v Viewer, quizID string) ([]Result, error) {
	if !v.Instructor() {
		return nil, ErrAccessDenied
	}
	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return s.store.ListResults(ctx, quizID)
}

func (s *Service) present(v Viewer, q Quiz, r Result, reveal bool) Result {
	if reveal && (v.Instructor() || s.reveal.Allows(q, s.now())) {
		return r
	}
	return r.Redacted()
}

func (s *Service) checkWindow(q Quiz, now time.Time) error {
	if open := q.OpensAt(); open != nil && now.Before(*open) {
		return fmt.Errorf("%w: opens at %s", ErrUnavailable, open.Format(time.RFC3339))
	}
	if cl := q.ClosesAt(); cl != nil && now.After(cl.Add(s.grace)) {
		return fmt.Errorf("%w: closed at %s", ErrUnavailable, cl.Format(time.RFC3339))
	}
	return nil
}

func (s *Service) checkEnrollment(ctx context.Context, q Quiz, userID string) error {
	if !s.enforceRoster || q.ClassID == "" {
		return nil
	}
	ok, err := s.roster.Enrolled(ctx, q.ClassID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not enrolled in class %s", ErrAccessDenied, q.ClassID)
	}
	return nil
}

func (s *Service) reportViolations(ctx context.Context, log *zap.Logger, r Result) {
	if s.events == nil || r.ViolationCount == 0 {
		return
	}
	data, err := json.Marshal(map[string]any{
		"quizId":          r.QuizID,
		"studentId":       r.StudentID,
		"resultId":        r.ID,
		"violationCount":  r.ViolationCount,
		"violationEvents": r.ViolationEvents,
	})
	if err != nil {
		log.Error("encode violation event", zap.Error(err))
		return
	}
	if err := s.events.Append(ctx, syncx.Event{Type: EventViolationsReported, Key: r.ID, DataJSON: string(data)}); err != nil {
		log.Error("append violation event", zap.Error(err))
	}
}

// ReceiptKey is where the raw submission for a result is archived.
func ReceiptKey(r Result) string {
	return fmt.Sprintf("receipts/%s/%s/%s.json", r.QuizID, r.StudentID, r.ID)
}

func (s *Service) archiveReceipt(ctx context.Context, log *zap.Logger, r Result, sub Submission) {
	if s.blobs == nil {
		return
	}
	body, err := json.Marshal(map[string]any{
		"resultId":    r.ID,
		"quizId":      r.QuizID,
		"studentId":   r.StudentID,
		"submittedAt": r.SubmittedAt,
		"submission":  sub,
	})
	if err != nil {
		log.Error("encode receipt", zap.Error(err))
		return
	}
	if _, err := s.blobs.Put(ctx, ReceiptKey(r), bytes.NewReader(body), int64(len(body))); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("archive receipt", zap.Error(err))
	}
}

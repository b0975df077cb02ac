package attempt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/juanlms/quizcore/internal/grading"
	"github.com/juanlms/quizcore/internal/quiz"
)

const (
	DefaultLoadTimeout   = 30 * time.Second
	DefaultSubmitTimeout = 60 * time.Second
)

var ErrClosed = errors.New("attempt: controller closed")

// API is the server surface the controller depends on.
type API interface {
	FetchQuiz(ctx context.Context, quizID string) (quiz.Quiz, error)
	// FetchResult returns nil, nil when the student has no result.
	FetchResult(ctx context.Context, quizID, studentID string, reveal bool) (*quiz.Result, error)
	Submit(ctx context.Context, quizID string, p quiz.SubmitPayload) (quiz.Result, error)
}

type options struct {
	loadTimeout   time.Duration
	submitTimeout time.Duration
	tick          time.Duration
	now           func() time.Time
	log           *zap.Logger
}

type Option func(*options)

func WithLoadTimeout(d time.Duration) Option   { return func(o *options) { o.loadTimeout = d } }
func WithSubmitTimeout(d time.Duration) Option { return func(o *options) { o.submitTimeout = d } }
func WithClock(now func() time.Time) Option    { return func(o *options) { o.now = now } }
func WithLogger(l *zap.Logger) Option          { return func(o *options) { o.log = l } }

// WithTickInterval sets how often the countdown advances. Zero disables the
// timer goroutine; Tick must then be driven by the caller.
func WithTickInterval(d time.Duration) Option { return func(o *options) { o.tick = d } }

// Controller drives one student's attempt at one quiz. All methods are safe
// for concurrent use; user input, the countdown, and focus-loss signals are
// serialized on a single mutex. Network calls run without the lock held.
type Controller struct {
	api  API
	opts options

	base   context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	s             session
	quizID        string
	studentID     string
	epoch         uint64 // bumped by Load; stale network replies are dropped
	questionStart time.Time
	timerCancel   context.CancelFunc
	timerDone     chan struct{}
	closed        bool
}

func New(api API, opts ...Option) *Controller {
	o := options{
		loadTimeout:   DefaultLoadTimeout,
		submitTimeout: DefaultSubmitTimeout,
		tick:          time.Second,
		now:           time.Now,
		log:           zap.NewNop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	base, cancel := context.WithCancel(context.Background())
	return &Controller{api: api, opts: o, base: base, cancel: cancel}
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.snapshot()
}

// Close stops the countdown and aborts in-flight requests.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	done := c.timerDone
	c.stopTimerLocked()
	c.mu.Unlock()

	c.cancel()
	if done != nil {
		<-done
	}
}

// Load fetches the quiz and any prior result concurrently and enters the
// matching state. A failure to fetch the prior result is logged and the
// attempt proceeds as a fresh one. Load may be called again from LoadFailed.
func (c *Controller) Load(ctx context.Context, quizID, studentID string, reviewRequested bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.stopTimerLocked()
	c.epoch++
	epoch := c.epoch
	c.quizID, c.studentID = quizID, studentID
	c.s = session{State: Loading}
	c.mu.Unlock()

	log := c.opts.log.With(zap.String("quiz_id", quizID), zap.String("student_id", studentID))

	lctx, cancel := context.WithTimeout(ctx, c.opts.loadTimeout)
	defer cancel()

	var (
		q     quiz.Quiz
		prior *quiz.Result
	)
	g, gctx := errgroup.WithContext(lctx)
	g.Go(func() error {
		var err error
		q, err = c.api.FetchQuiz(gctx, quizID)
		return err
	})
	g.Go(func() error {
		r, err := c.api.FetchResult(gctx, quizID, studentID, true)
		if err != nil {
			log.Warn("prior result unavailable, starting fresh", zap.Error(err))
			return nil
		}
		prior = r
		return nil
	})
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if epoch != c.epoch {
		return context.Canceled
	}
	if err != nil {
		err = classify(lctx, err)
		log.Warn("quiz load failed", zap.Error(err))
		c.s.State = LoadFailed
		c.s.Err = err
		return err
	}

	now := c.opts.now()
	c.s.Quiz = q
	c.s.OpensAt, c.s.ClosesAt = q.OpensAt(), q.ClosesAt()
	c.s.Answers = initialSlots(q)
	c.s.QuestionTimes = make([]float64, len(q.Questions))

	if prior != nil {
		c.applyPriorLocked(*prior)
		if reviewRequested {
			c.s.State = Reviewing
		} else {
			c.s.State = AlreadySubmitted
		}
		return nil
	}

	if !q.AvailableAt(now) {
		c.s.State = Unavailable
		return nil
	}

	c.s.State = TakingQuiz
	c.s.CurrentQuestion = 0
	c.questionStart = now
	if mins := q.TimeLimitMinutes(); mins > 0 {
		tl := mins * 60
		c.s.TimeLeft = &tl
	}
	c.startTimerLocked()
	return nil
}

// ContinueToReview leaves the already-submitted notice.
func (c *Controller) ContinueToReview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s.State == AlreadySubmitted {
		c.s.State = Reviewing
	}
}

// SelectChoice toggles a choice on a multiple-choice question or sets the
// value of a true/false question. Ignored outside TakingQuiz.
func (c *Controller) SelectChoice(choice string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.currentQuestionLocked()
	if !ok {
		return
	}
	i := c.s.CurrentQuestion
	switch q.Type {
	case quiz.TypeMultiple:
		canonical, found := matchChoice(q.Choices, choice)
		if !found {
			return
		}
		c.s.Answers[i] = toggle(c.s.Answers[i], canonical)
	case quiz.TypeTrueFalse:
		switch strings.ToLower(strings.TrimSpace(choice)) {
		case "true":
			c.s.Answers[i] = grading.Text("True")
		case "false":
			c.s.Answers[i] = grading.Text("False")
		}
	}
}

// SetText records the typed answer of an identification question.
func (c *Controller) SetText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.currentQuestionLocked()
	if !ok || q.Type != quiz.TypeIdentification {
		return
	}
	c.s.Answers[c.s.CurrentQuestion] = grading.Text(text)
}

func (c *Controller) GoNext()     { c.move(func(cur int) int { return cur + 1 }) }
func (c *Controller) GoPrevious() { c.move(func(cur int) int { return cur - 1 }) }

// GoTo moves to question i (0-based), clamped to the quiz. Time on the
// question being left is added to its total.
func (c *Controller) GoTo(i int) { c.move(func(int) int { return i }) }

func (c *Controller) move(target func(cur int) int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := target(c.s.CurrentQuestion)
	n := len(c.s.Quiz.Questions)
	if n == 0 || (c.s.State != TakingQuiz && c.s.State != Reviewing) {
		return
	}
	i = max(0, min(i, n-1))
	if i == c.s.CurrentQuestion {
		return
	}
	if c.s.State == TakingQuiz {
		c.flushQuestionTimeLocked()
	}
	c.s.CurrentQuestion = i
}

// RecordViolation notes that the student left the quiz window. It has no
// effect on grading.
func (c *Controller) RecordViolation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s.State != TakingQuiz && c.s.State != ConfirmSubmit {
		return
	}
	c.s.ViolationCount++
	c.s.ViolationEvents = append(c.s.ViolationEvents, quiz.ViolationEvent{
		Question: c.s.CurrentQuestion + 1,
		Time:     c.opts.now().UTC(),
	})
}

// RequestSubmit starts a user-initiated submission. With unanswered
// questions the controller asks for confirmation first, unless time has
// already run out.
func (c *Controller) RequestSubmit(ctx context.Context) error {
	c.mu.Lock()
	if c.s.State != TakingQuiz {
		c.mu.Unlock()
		return nil
	}
	if un := c.unansweredLocked(); len(un) > 0 && !c.expiredLocked() {
		c.s.State = ConfirmSubmit
		c.s.Unanswered = un
		c.mu.Unlock()
		return nil
	}
	quizID, p, epoch := c.beginSubmitLocked()
	c.mu.Unlock()
	return c.send(ctx, quizID, p, epoch)
}

// ConfirmSubmit submits despite unanswered questions.
func (c *Controller) ConfirmSubmit(ctx context.Context) error {
	c.mu.Lock()
	if c.s.State != ConfirmSubmit {
		c.mu.Unlock()
		return nil
	}
	quizID, p, epoch := c.beginSubmitLocked()
	c.mu.Unlock()
	return c.send(ctx, quizID, p, epoch)
}

// CancelSubmit returns from the confirmation to the quiz.
func (c *Controller) CancelSubmit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s.State == ConfirmSubmit {
		c.s.State = TakingQuiz
		c.s.Unanswered = nil
	}
}

// ChooseReveal applies the student's choice after submitting. Choosing
// neither keeps the local result with nothing revealed; otherwise the result
// is fetched again with answers revealed when asked for.
func (c *Controller) ChooseReveal(ctx context.Context, showScore, showAnswers bool) error {
	c.mu.Lock()
	if c.s.State != RevealChoice && c.s.State != Reviewing {
		c.mu.Unlock()
		return nil
	}
	c.s.ShowScore, c.s.ShowAnswers = showScore, showAnswers
	if !showScore && !showAnswers {
		c.s.CheckedAnswers = redact(c.s.CheckedAnswers)
		c.s.State = Reviewing
		c.mu.Unlock()
		return nil
	}
	quizID, studentID, epoch := c.quizID, c.studentID, c.epoch
	c.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, c.opts.loadTimeout)
	r, err := c.api.FetchResult(fctx, quizID, studentID, showAnswers)
	if err != nil {
		err = classify(fctx, err)
	}
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || epoch != c.epoch {
		return ErrClosed
	}
	c.s.State = Reviewing
	if err != nil {
		c.opts.log.Warn("reveal fetch failed, showing local result", zap.Error(err))
		c.s.Err = err
		return err
	}
	if r != nil {
		c.s.Result = r
		if len(r.CheckedAnswers) == len(c.s.Quiz.Questions) || len(c.s.CheckedAnswers) == 0 {
			c.s.CheckedAnswers = r.CheckedAnswers
		}
	}
	if !showAnswers {
		c.s.CheckedAnswers = redact(c.s.CheckedAnswers)
	}
	return nil
}

// beginSubmitLocked moves the session to Submitting and captures the
// payload. Any later submit attempt sees Submitting and returns.
func (c *Controller) beginSubmitLocked() (string, quiz.SubmitPayload, uint64) {
	c.flushQuestionTimeLocked()
	c.stopTimerLocked()
	c.s.State = Submitting
	c.s.Unanswered = nil
	c.s.Err = nil
	return c.quizID, buildPayload(c.studentID, c.s.Quiz, c.s.Answers, c.s.ViolationCount,
		c.s.ViolationEvents, c.s.QuestionTimes), c.epoch
}

func (c *Controller) send(ctx context.Context, quizID string, p quiz.SubmitPayload, epoch uint64) error {
	sctx, cancel := context.WithTimeout(ctx, c.opts.submitTimeout)
	res, err := c.api.Submit(sctx, quizID, p)
	if err != nil {
		err = classify(sctx, err)
	}
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if epoch != c.epoch {
		return context.Canceled
	}
	if err != nil {
		c.opts.log.Warn("submit failed, attempt kept", zap.String("quiz_id", quizID), zap.Error(err))
		c.s.State = TakingQuiz
		c.s.Err = err
		c.questionStart = c.opts.now()
		c.startTimerLocked()
		return err
	}
	c.s.Result = &res
	c.s.CheckedAnswers = res.CheckedAnswers
	c.s.ReviewMode = true
	c.s.State = RevealChoice
	c.opts.log.Info("quiz submitted",
		zap.String("quiz_id", quizID),
		zap.Float64("score", res.Score),
		zap.Int("percentage", res.Percentage))
	return nil
}

func (c *Controller) applyPriorLocked(r quiz.Result) {
	for _, sa := range r.Answers {
		i := sa.QuestionIndex
		if sa.QuestionID != "" {
			for qi, q := range c.s.Quiz.Questions {
				if q.ID == sa.QuestionID {
					i = qi
					break
				}
			}
		}
		if i < 0 || i >= len(c.s.Answers) {
			continue
		}
		c.s.Answers[i] = coerce(c.s.Quiz.Questions[i].Type, sa.Answer)
	}
	if len(r.QuestionTimes) == len(c.s.QuestionTimes) {
		copy(c.s.QuestionTimes, r.QuestionTimes)
	}
	c.s.ViolationCount = r.ViolationCount
	c.s.ViolationEvents = append([]quiz.ViolationEvent(nil), r.ViolationEvents...)
	c.s.Result = &r
	c.s.CheckedAnswers = r.CheckedAnswers
	c.s.ReviewMode = true
	c.s.ShowScore = true
	for _, ca := range r.CheckedAnswers {
		if ca.CorrectAnswer != nil {
			c.s.ShowAnswers = true
			break
		}
	}
}

func (c *Controller) currentQuestionLocked() (quiz.Question, bool) {
	if c.s.State != TakingQuiz || c.s.ReviewMode {
		return quiz.Question{}, false
	}
	i := c.s.CurrentQuestion
	if i < 0 || i >= len(c.s.Quiz.Questions) {
		return quiz.Question{}, false
	}
	return c.s.Quiz.Questions[i], true
}

func (c *Controller) flushQuestionTimeLocked() {
	now := c.opts.now()
	if i := c.s.CurrentQuestion; i >= 0 && i < len(c.s.QuestionTimes) && !c.questionStart.IsZero() {
		if d := now.Sub(c.questionStart); d > 0 {
			c.s.QuestionTimes[i] += d.Seconds()
		}
	}
	c.questionStart = now
}

func (c *Controller) unansweredLocked() []int {
	var out []int
	for i, a := range c.s.Answers {
		if a.Empty() {
			out = append(out, i+1)
		}
	}
	return out
}

func (c *Controller) expiredLocked() bool {
	return c.s.TimeLeft != nil && *c.s.TimeLeft <= 0
}

func initialSlots(q quiz.Quiz) []grading.Answer {
	out := make([]grading.Answer, len(q.Questions))
	for i, qq := range q.Questions {
		out[i] = quiz.EmptyAnswer(qq.Type)
	}
	return out
}

// coerce fits a stored answer into the slot shape of the question type.
func coerce(qtype string, a grading.Answer) grading.Answer {
	vals := a.Values()
	if qtype == quiz.TypeMultiple {
		return grading.Choices(vals...)
	}
	if len(vals) == 0 {
		return grading.Text("")
	}
	return grading.Text(vals[0])
}

func matchChoice(choices []string, choice string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(choice))
	for _, ch := range choices {
		if strings.ToLower(strings.TrimSpace(ch)) == want {
			return ch, true
		}
	}
	return "", false
}

func toggle(a grading.Answer, choice string) grading.Answer {
	if a.Has(choice) {
		kept := make([]string, 0, len(a.Choices))
		for _, ch := range a.Choices {
			if !strings.EqualFold(strings.TrimSpace(ch), strings.TrimSpace(choice)) {
				kept = append(kept, ch)
			}
		}
		return grading.Choices(kept...)
	}
	return grading.Choices(append(a.Values(), choice)...)
}

func redact(in []quiz.CheckedAnswer) []quiz.CheckedAnswer {
	out := make([]quiz.CheckedAnswer, len(in))
	for i, ca := range in {
		ca.CorrectAnswer = nil
		out[i] = ca
	}
	return out
}

// classify turns context expiry into ErrTimeout; errors that already carry
// a quiz sentinel pass through.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, quiz.ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", quiz.ErrTimeout, err)
	}
	return err
}

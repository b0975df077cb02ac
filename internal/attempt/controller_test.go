package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juanlms/quizcore/internal/grading"
	"github.com/juanlms/quizcore/internal/quiz"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeAPI struct {
	mu        sync.Mutex
	quiz      quiz.Quiz
	quizErrs  []error
	blockQuiz bool
	result    *quiz.Result
	resultErr error
	submitErr error
	gate      chan struct{}
	submits   []quiz.SubmitPayload
	reveals   []bool
}

func (f *fakeAPI) FetchQuiz(ctx context.Context, _ string) (quiz.Quiz, error) {
	f.mu.Lock()
	block := f.blockQuiz
	var err error
	if len(f.quizErrs) > 0 {
		err, f.quizErrs = f.quizErrs[0], f.quizErrs[1:]
	}
	q := f.quiz
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return quiz.Quiz{}, ctx.Err()
	}
	if err != nil {
		return quiz.Quiz{}, err
	}
	return q, nil
}

func (f *fakeAPI) FetchResult(_ context.Context, _, _ string, reveal bool) (*quiz.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reveals = append(f.reveals, reveal)
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	if f.result == nil {
		return nil, nil
	}
	r := *f.result
	if !reveal {
		r = r.Redacted()
	}
	return &r, nil
}

func (f *fakeAPI) Submit(ctx context.Context, quizID string, p quiz.SubmitPayload) (quiz.Result, error) {
	f.mu.Lock()
	f.submits = append(f.submits, p)
	gate, err := f.gate, f.submitErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return quiz.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return quiz.Result{}, err
	}
	r := quiz.Result{ID: "r1", QuizID: quizID, StudentID: p.StudentID, Total: float64(len(p.Answers))}
	for _, a := range p.Answers {
		key := grading.Text("key")
		ok := !a.Answer.Empty()
		if ok {
			r.Score++
		}
		r.CheckedAnswers = append(r.CheckedAnswers, quiz.CheckedAnswer{
			Correct: ok, StudentAnswer: a.Answer, CorrectAnswer: &key, MaxPoints: 1,
		})
	}
	r.Answers = p.Answers
	f.mu.Lock()
	f.result = &r
	f.mu.Unlock()
	return r, nil
}

func (f *fakeAPI) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeAPI) lastSubmit() quiz.SubmitPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits[len(f.submits)-1]
}

func studentQuiz() quiz.Quiz {
	return quiz.Quiz{
		ID:    "quiz-1",
		Title: "Cells",
		Questions: []quiz.Question{
			{ID: "q1", Prompt: "Pick the primaries", Type: quiz.TypeMultiple, Choices: []string{"Red", "Green", "Blue"}},
			{ID: "q2", Prompt: "The sky is blue", Type: quiz.TypeTrueFalse},
			{ID: "q3", Prompt: "Powerhouse of the cell", Type: quiz.TypeIdentification},
		},
	}
}

func newTestController(t *testing.T, api *fakeAPI, opts ...Option) (*Controller, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clk.Now), WithTickInterval(0)}, opts...)
	c := New(api, opts...)
	t.Cleanup(c.Close)
	return c, clk
}

func TestLoadFreshAttemptFillsEverySlot(t *testing.T) {
	api := &fakeAPI{quiz: studentQuiz(), resultErr: quiz.ErrNetwork}
	c, _ := newTestController(t, api)

	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))
	s := c.Snapshot()
	assert.Equal(t, TakingQuiz, s.State)
	require.Len(t, s.Answers, 3)
	assert.Equal(t, grading.KindChoices, s.Answers[0].Kind)
	assert.NotNil(t, s.Answers[0].Choices)
	assert.Equal(t, grading.Text(""), s.Answers[1])
	assert.Equal(t, grading.Text(""), s.Answers[2])
	assert.Len(t, s.QuestionTimes, 3)
	assert.Nil(t, s.TimeLeft)
	assert.NoError(t, s.Err)
}

func TestLoadTimedQuiz(t *testing.T) {
	q := studentQuiz()
	q.Duration = 2
	c, _ := newTestController(t, &fakeAPI{quiz: q})

	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))
	s := c.Snapshot()
	require.NotNil(t, s.TimeLeft)
	assert.Equal(t, 120, *s.TimeLeft)
}

func TestLoadPriorResult(t *testing.T) {
	key := grading.Text("Mitochondria")
	prior := &quiz.Result{
		ID: "r0", QuizID: "quiz-1", StudentID: "s1", Score: 1, Total: 3, Percentage: 33,
		Answers: []quiz.SubmittedAnswer{
			{QuestionID: "q1", QuestionIndex: 0, Answer: grading.Choices("Red")},
			{QuestionIndex: 1, Answer: grading.Text("True")},
		},
		CheckedAnswers: []quiz.CheckedAnswer{{}, {}, {CorrectAnswer: &key}},
	}

	t.Run("notice first", func(t *testing.T) {
		c, _ := newTestController(t, &fakeAPI{quiz: studentQuiz(), result: prior})
		require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))
		s := c.Snapshot()
		assert.Equal(t, AlreadySubmitted, s.State)
		assert.True(t, s.ReviewMode)
		assert.Equal(t, []string{"Red"}, s.Answers[0].Choices)
		assert.Equal(t, grading.Text("True"), s.Answers[1])
		assert.Equal(t, grading.Text(""), s.Answers[2])

		c.ContinueToReview()
		assert.Equal(t, Reviewing, c.Snapshot().State)
	})

	t.Run("review requested", func(t *testing.T) {
		c, _ := newTestController(t, &fakeAPI{quiz: studentQuiz(), result: prior})
		require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", true))
		s := c.Snapshot()
		assert.Equal(t, Reviewing, s.State)
		assert.True(t, s.ShowScore)
		assert.True(t, s.ShowAnswers)
		require.NotNil(t, s.Result)
		assert.Equal(t, 33, s.Result.Percentage)
	})

	t.Run("answers change is ignored in review", func(t *testing.T) {
		c, _ := newTestController(t, &fakeAPI{quiz: studentQuiz(), result: prior})
		require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", true))
		c.SelectChoice("Blue")
		assert.Equal(t, []string{"Red"}, c.Snapshot().Answers[0].Choices)
		c.GoNext()
		assert.Equal(t, 1, c.Snapshot().CurrentQuestion)
	})
}

func TestLoadFailureThenRetry(t *testing.T) {
	api := &fakeAPI{quiz: studentQuiz(), quizErrs: []error{quiz.ErrNetwork}}
	c, _ := newTestController(t, api)

	err := c.Load(context.Background(), "quiz-1", "s1", false)
	require.ErrorIs(t, err, quiz.ErrNetwork)
	s := c.Snapshot()
	assert.Equal(t, LoadFailed, s.State)
	assert.ErrorIs(t, s.Err, quiz.ErrNetwork)

	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))
	assert.Equal(t, TakingQuiz, c.Snapshot().State)
}

func TestLoadTimeout(t *testing.T) {
	api := &fakeAPI{quiz: studentQuiz(), blockQuiz: true}
	c, _ := newTestController(t, api, WithLoadTimeout(20*time.Millisecond))

	err := c.Load(context.Background(), "quiz-1", "s1", false)
	require.ErrorIs(t, err, quiz.ErrTimeout)
	assert.Equal(t, LoadFailed, c.Snapshot().State)
	assert.True(t, quiz.Retryable(err))
}

func TestLoadUnavailable(t *testing.T) {
	open := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	q := studentQuiz()
	q.Timing = &quiz.Timing{Open: &open}
	c, _ := newTestController(t, &fakeAPI{quiz: q})

	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))
	s := c.Snapshot()
	assert.Equal(t, Unavailable, s.State)
	require.NotNil(t, s.OpensAt)
	assert.True(t, s.OpensAt.Equal(open))

	require.NoError(t, c.RequestSubmit(context.Background()))
	assert.Equal(t, Unavailable, c.Snapshot().State)
}

func TestAnswerEditing(t *testing.T) {
	c, _ := newTestController(t, &fakeAPI{quiz: studentQuiz()})
	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))

	c.SelectChoice("red")
	assert.Equal(t, []string{"Red"}, c.Snapshot().Answers[0].Choices)
	c.SelectChoice("Blue")
	assert.Equal(t, []string{"Red", "Blue"}, c.Snapshot().Answers[0].Choices)
	c.SelectChoice(" RED ")
	assert.Equal(t, []string{"Blue"}, c.Snapshot().Answers[0].Choices)
	c.SelectChoice("Purple")
	assert.Equal(t, []string{"Blue"}, c.Snapshot().Answers[0].Choices)
	c.SetText("ignored on a choice question")
	assert.Equal(t, grading.KindChoices, c.Snapshot().Answers[0].Kind)

	c.GoNext()
	c.SelectChoice("false")
	assert.Equal(t, grading.Text("False"), c.Snapshot().Answers[1])
	c.SelectChoice("maybe")
	assert.Equal(t, grading.Text("False"), c.Snapshot().Answers[1])

	c.GoNext()
	c.SetText("Mitochondria")
	assert.Equal(t, grading.Text("Mitochondria"), c.Snapshot().Answers[2])
}

func TestNavigationTracksTime(t *testing.T) {
	c, clk := newTestController(t, &fakeAPI{quiz: studentQuiz()})
	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))

	clk.Advance(10 * time.Second)
	c.GoNext()
	clk.Advance(5 * time.Second)
	c.GoPrevious()
	clk.Advance(2 * time.Second)
	c.GoTo(99)

	s := c.Snapshot()
	assert.Equal(t, 2, s.CurrentQuestion)
	assert.InDelta(t, 12, s.QuestionTimes[0], 1e-9)
	assert.InDelta(t, 5, s.QuestionTimes[1], 1e-9)
	assert.Zero(t, s.QuestionTimes[2])

	c.GoTo(-3)
	assert.Equal(t, 0, c.Snapshot().CurrentQuestion)
}

func TestSubmitWithUnansweredAsksFirst(t *testing.T) {
	api := &fakeAPI{quiz: studentQuiz()}
	c, clk := newTestController(t, api)
	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))
	c.SelectChoice("Green")

	require.NoError(t, c.RequestSubmit(context.Background()))
	s := c.Snapshot()
	assert.Equal(t, ConfirmSubmit, s.State)
	assert.Equal(t, []int{2, 3}, s.Unanswered)
	assert.Zero(t, api.submitCount())

	c.CancelSubmit()
	assert.Equal(t, TakingQuiz, c.Snapshot().State)

	clk.Advance(30 * time.Second)
	require.NoError(t, c.RequestSubmit(context.Background()))
	require.NoError(t, c.ConfirmSubmit(context.Background()))

	s = c.Snapshot()
	assert.Equal(t, RevealChoice, s.State)
	assert.True(t, s.ReviewMode)
	require.NotNil(t, s.Result)
	assert.Len(t, s.CheckedAnswers, 3)

	p := api.lastSubmit()
	assert.Equal(t, "s1", p.StudentID)
	require.Len(t, p.Answers, 3)
	assert.Equal(t, "q2", p.Answers[1].QuestionID)
	assert.Equal(t, 1, p.Answers[1].QuestionIndex)
	assert.Equal(t, []string{"Green"}, p.Answers[0].Answer.Choices)
	assert.InDelta(t, 30, p.TimeSpent, 1e-9)
}

func TestSubmitAllAnsweredSkipsConfirmation(t *testing.T) {
	api := &fakeAPI{quiz: studentQuiz()}
	c, _ := newTestController(t, api)
	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))
	c.SelectChoice("Red")
	c.GoNext()
	c.SelectChoice("True")
	c.GoNext()
	c.SetText("Mitochondria")

	require.NoError(t, c.RequestSubmit(context.Background()))
	assert.Equal(t, RevealChoice, c.Snapshot().State)
	assert.Equal(t, 1, api.submitCount())
}

func TestTimeoutForcesSubmit(t *testing.T) {
	q := studentQuiz()
	q.TimeLimit = 1
	api := &fakeAPI{quiz: q}
	c, _ := newTestController(t, api)
	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))

	for range 59 {
		c.Tick()
	}
	s := c.Snapshot()
	require.NotNil(t, s.TimeLeft)
	assert.Equal(t, 1, *s.TimeLeft)
	assert.Zero(t, api.submitCount())

	c.Tick()
	s = c.Snapshot()
	assert.Equal(t, 0, *s.TimeLeft)
	assert.Equal(t, RevealChoice, s.State)
	require.Equal(t, 1, api.submitCount())
	assert.Len(t, api.lastSubmit().Answers, 3)

	c.Tick()
	assert.Equal(t, 1, api.submitCount())
}

func TestTimeoutDuringConfirmationSubmits(t *testing.T) {
	q := studentQuiz()
	q.TimeLimit = 1
	api := &fakeAPI{quiz: q}
	c, _ := newTestController(t, api)
	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))

	require.NoError(t, c.RequestSubmit(context.Background()))
	require.Equal(t, ConfirmSubmit, c.Snapshot().State)
	for range 60 {
		c.Tick()
	}
	assert.Equal(t, RevealChoice, c.Snapshot().State)
	assert.Equal(t, 1, api.submitCount())
}

func TestSubmitFailureKeepsAttempt(t *testing.T) {
	q := studentQuiz()
	q.TimeLimit = 5
	api := &fakeAPI{quiz: q, submitErr: quiz.ErrNetwork}
	c, _ := newTestController(t, api)
	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))
	c.SelectChoice("Blue")
	c.RecordViolation()

	require.NoError(t, c.RequestSubmit(context.Background()))
	err := c.ConfirmSubmit(context.Background())
	require.ErrorIs(t, err, quiz.ErrNetwork)
	assert.True(t, quiz.Retryable(err))

	s := c.Snapshot()
	assert.Equal(t, TakingQuiz, s.State)
	assert.ErrorIs(t, s.Err, quiz.ErrNetwork)
	assert.Equal(t, []string{"Blue"}, s.Answers[0].Choices)
	assert.Equal(t, 1, s.ViolationCount)
	assert.Equal(t, 300, *s.TimeLeft)

	api.mu.Lock()
	api.submitErr = nil
	api.mu.Unlock()
	require.NoError(t, c.RequestSubmit(context.Background()))
	require.NoError(t, c.ConfirmSubmit(context.Background()))
	s = c.Snapshot()
	assert.Equal(t, RevealChoice, s.State)
	assert.NoError(t, s.Err)
	assert.Equal(t, 1, api.lastSubmit().ViolationCount)
}

func TestSecondSubmitWhileSubmittingIsIgnored(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{quiz: studentQuiz(), gate: gate}
	c, _ := newTestController(t, api)
	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))
	c.SelectChoice("Red")
	c.GoNext()
	c.SelectChoice("True")
	c.GoNext()
	c.SetText("x")

	errc := make(chan error, 1)
	go func() { errc <- c.RequestSubmit(context.Background()) }()
	require.Eventually(t, func() bool { return c.Snapshot().State == Submitting }, time.Second, time.Millisecond)

	require.NoError(t, c.RequestSubmit(context.Background()))
	require.NoError(t, c.ConfirmSubmit(context.Background()))
	c.SelectChoice("Green")
	c.Tick()

	close(gate)
	require.NoError(t, <-errc)
	assert.Equal(t, 1, api.submitCount())
	assert.Equal(t, RevealChoice, c.Snapshot().State)
}

func TestChooseReveal(t *testing.T) {
	setup := func(t *testing.T) (*Controller, *fakeAPI) {
		api := &fakeAPI{quiz: studentQuiz()}
		c, _ := newTestController(t, api)
		require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))
		c.SelectChoice("Red")
		require.NoError(t, c.RequestSubmit(context.Background()))
		require.NoError(t, c.ConfirmSubmit(context.Background()))
		require.Equal(t, RevealChoice, c.Snapshot().State)
		api.mu.Lock()
		api.reveals = nil
		api.mu.Unlock()
		return c, api
	}

	t.Run("nothing", func(t *testing.T) {
		c, api := setup(t)
		require.NoError(t, c.ChooseReveal(context.Background(), false, false))
		s := c.Snapshot()
		assert.Equal(t, Reviewing, s.State)
		assert.False(t, s.ShowScore)
		assert.False(t, s.ShowAnswers)
		for _, ca := range s.CheckedAnswers {
			assert.Nil(t, ca.CorrectAnswer)
		}
		assert.Empty(t, api.reveals)
	})

	t.Run("score only", func(t *testing.T) {
		c, api := setup(t)
		require.NoError(t, c.ChooseReveal(context.Background(), true, false))
		s := c.Snapshot()
		assert.Equal(t, Reviewing, s.State)
		assert.True(t, s.ShowScore)
		assert.Equal(t, []bool{false}, api.reveals)
		require.Len(t, s.CheckedAnswers, 3)
		assert.Nil(t, s.CheckedAnswers[0].CorrectAnswer)
	})

	t.Run("answers", func(t *testing.T) {
		c, api := setup(t)
		require.NoError(t, c.ChooseReveal(context.Background(), true, true))
		s := c.Snapshot()
		assert.Equal(t, []bool{true}, api.reveals)
		require.Len(t, s.CheckedAnswers, 3)
		require.NotNil(t, s.CheckedAnswers[0].CorrectAnswer)
	})

	t.Run("fetch failure keeps local result", func(t *testing.T) {
		c, api := setup(t)
		api.mu.Lock()
		api.resultErr = quiz.ErrServer
		api.mu.Unlock()
		err := c.ChooseReveal(context.Background(), true, true)
		require.ErrorIs(t, err, quiz.ErrServer)
		s := c.Snapshot()
		assert.Equal(t, Reviewing, s.State)
		require.NotNil(t, s.Result)
		assert.Len(t, s.CheckedAnswers, 3)
	})
}

func TestViolations(t *testing.T) {
	api := &fakeAPI{quiz: studentQuiz()}
	c, clk := newTestController(t, api)
	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))

	c.RecordViolation()
	c.GoTo(2)
	clk.Advance(time.Minute)
	c.RecordViolation()

	s := c.Snapshot()
	assert.Equal(t, 2, s.ViolationCount)
	require.Len(t, s.ViolationEvents, 2)
	assert.Equal(t, 1, s.ViolationEvents[0].Question)
	assert.Equal(t, 3, s.ViolationEvents[1].Question)
	assert.True(t, s.ViolationEvents[1].Time.Equal(clk.Now()))

	require.NoError(t, c.RequestSubmit(context.Background()))
	require.NoError(t, c.ConfirmSubmit(context.Background()))
	c.RecordViolation()
	assert.Equal(t, 2, c.Snapshot().ViolationCount)
	assert.Len(t, api.lastSubmit().ViolationEvents, 2)
}

func TestTimerGoroutineAndClose(t *testing.T) {
	q := studentQuiz()
	q.TimeLimit = 1
	c, _ := newTestController(t, &fakeAPI{quiz: q}, WithTickInterval(time.Millisecond))
	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))

	require.Eventually(t, func() bool {
		s := c.Snapshot()
		return s.TimeLeft != nil && *s.TimeLeft < 55
	}, 2*time.Second, time.Millisecond)

	c.Close()
	left := *c.Snapshot().TimeLeft
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, left, *c.Snapshot().TimeLeft)

	err := c.Load(context.Background(), "quiz-1", "s1", false)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestStaleTimerTickIsDropped(t *testing.T) {
	q := studentQuiz()
	q.TimeLimit = 1
	api := &fakeAPI{quiz: q, submitErr: quiz.ErrNetwork}
	c, _ := newTestController(t, api, WithTickInterval(time.Hour))
	require.NoError(t, c.Load(context.Background(), "quiz-1", "s1", false))

	stale, cancelStale := context.WithCancel(context.Background())

	// A failed submit stops the countdown and starts a fresh one.
	require.NoError(t, c.RequestSubmit(context.Background()))
	require.ErrorIs(t, c.ConfirmSubmit(context.Background()), quiz.ErrNetwork)
	require.Equal(t, TakingQuiz, c.Snapshot().State)
	require.Equal(t, 60, *c.Snapshot().TimeLeft)

	cancelStale()
	c.tick(stale)
	assert.Equal(t, 60, *c.Snapshot().TimeLeft)

	c.tick(context.Background())
	assert.Equal(t, 59, *c.Snapshot().TimeLeft)
}

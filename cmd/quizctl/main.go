package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/juanlms/quizcore/internal/attempt"
	"github.com/juanlms/quizcore/internal/client"
	"github.com/juanlms/quizcore/internal/config"
	"github.com/juanlms/quizcore/internal/quiz"
	"github.com/juanlms/quizcore/pkg/logger"
)

const help = `commands:
  n | p | g <n>        next, previous, go to question n
  c <choice>           toggle a choice / answer true or false
  t <text>             type an identification answer
  v                    record leaving the quiz window
  s                    submit (y / no to confirm)
  reveal none|score|answers
  review               continue to review after the already-submitted notice
  r                    retry loading
  q                    quit`

func main() {
	var (
		configPath = flag.String("config", ".", "directory containing config.yaml")
		quizID     = flag.String("quiz", "", "quiz id")
		studentID  = flag.String("student", "", "student id")
		review     = flag.Bool("review", false, "open a submitted quiz in review")
		token      = flag.String("token", "", "bearer token (overrides client.token)")
	)
	flag.Parse()
	if *quizID == "" || *studentID == "" {
		fmt.Fprintln(os.Stderr, "usage: quizctl -quiz ID -student ID [-review]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Mode: cfg.Server.Mode, File: cfg.Log.File})
	defer func() { _ = log.Sync() }()

	tok := cfg.Client.Token
	if *token != "" {
		tok = *token
	}
	api := client.New(cfg.Client.BaseURL, client.WithToken(tok))
	c := attempt.New(api,
		attempt.WithLoadTimeout(cfg.Client.LoadTimeout),
		attempt.WithSubmitTimeout(cfg.Client.SubmitTimeout),
		attempt.WithLogger(log))
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_ = c.Load(ctx, *quizID, *studentID, *review)
	render(os.Stdout, c.Snapshot())

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		if ctx.Err() != nil {
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(in.Text()), " ")
		arg = strings.TrimSpace(arg)
		var err error
		switch cmd {
		case "":
		case "n":
			c.GoNext()
		case "p":
			c.GoPrevious()
		case "g":
			n, convErr := strconv.Atoi(arg)
			if convErr != nil {
				fmt.Println("g needs a question number")
				continue
			}
			c.GoTo(n - 1)
		case "c":
			c.SelectChoice(arg)
		case "t":
			c.SetText(arg)
		case "v":
			c.RecordViolation()
		case "s":
			err = c.RequestSubmit(ctx)
		case "y":
			err = c.ConfirmSubmit(ctx)
		case "no":
			c.CancelSubmit()
		case "reveal":
			err = c.ChooseReveal(ctx, arg == "score" || arg == "answers", arg == "answers")
		case "review":
			c.ContinueToReview()
		case "r":
			err = c.Load(ctx, *quizID, *studentID, *review)
		case "q":
			return
		default:
			fmt.Println(help)
			continue
		}
		if err != nil {
			log.Debug("command failed", zap.String("cmd", cmd), zap.Error(err))
		}
		render(os.Stdout, c.Snapshot())
	}
}

func render(w io.Writer, s attempt.Snapshot) {
	fmt.Fprintf(w, "\n[%s]", s.State)
	if s.TimeLeft != nil {
		fmt.Fprintf(w, " time left %d:%02d", *s.TimeLeft/60, *s.TimeLeft%60)
	}
	if s.ViolationCount > 0 {
		fmt.Fprintf(w, " violations %d", s.ViolationCount)
	}
	fmt.Fprintln(w)

	if s.Err != nil {
		retry := ""
		if quiz.Retryable(s.Err) {
			retry = " (retry)"
		}
		fmt.Fprintf(w, "error: %s%s\n", describe(s.Err), retry)
	}

	switch s.State {
	case attempt.LoadFailed:
		fmt.Fprintln(w, "press r to retry")
		return
	case attempt.Unavailable:
		if s.OpensAt != nil {
			fmt.Fprintf(w, "opens %s\n", s.OpensAt.Local().Format("Jan 2 15:04"))
		}
		if s.ClosesAt != nil {
			fmt.Fprintf(w, "closes %s\n", s.ClosesAt.Local().Format("Jan 2 15:04"))
		}
		return
	case attempt.AlreadySubmitted:
		fmt.Fprintln(w, "you already submitted this quiz; type review to see it")
		return
	case attempt.ConfirmSubmit:
		fmt.Fprintf(w, "unanswered: %v; submit anyway? (y / no)\n", s.Unanswered)
		return
	case attempt.RevealChoice:
		fmt.Fprintln(w, "submitted. reveal none|score|answers")
		return
	}

	if len(s.Quiz.Questions) == 0 {
		return
	}
	i := s.CurrentQuestion
	q := s.Quiz.Questions[i]
	fmt.Fprintf(w, "%s  (%d/%d)\n%s\n", s.Quiz.Title, i+1, len(s.Quiz.Questions), q.Prompt)
	switch q.Type {
	case quiz.TypeMultiple:
		for _, ch := range q.Choices {
			mark := " "
			if s.Answers[i].Has(ch) {
				mark = "x"
			}
			fmt.Fprintf(w, "  [%s] %s\n", mark, ch)
		}
	case quiz.TypeTrueFalse:
		fmt.Fprintf(w, "  True / False: %s\n", s.Answers[i].Text)
	default:
		fmt.Fprintf(w, "  answer: %s\n", s.Answers[i].Text)
	}

	if s.State == attempt.Reviewing {
		if s.ShowScore && s.Result != nil {
			fmt.Fprintf(w, "score %g/%g (%d%%)\n", s.Result.Score, s.Result.Total, s.Result.Percentage)
		}
		if i < len(s.CheckedAnswers) {
			ca := s.CheckedAnswers[i]
			if s.ShowScore {
				fmt.Fprintf(w, "correct: %t\n", ca.Correct)
			}
			if ca.CorrectAnswer != nil {
				fmt.Fprintf(w, "key: %s\n", strings.Join(ca.CorrectAnswer.Values(), ", "))
			}
		}
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, quiz.ErrQuizNotFound):
		return "quiz not found"
	case errors.Is(err, quiz.ErrAccessDenied):
		return "you do not have access to this quiz"
	case errors.Is(err, quiz.ErrAuthExpired):
		return "session expired, sign in again"
	case errors.Is(err, quiz.ErrUnavailable):
		return "quiz is not open"
	case errors.Is(err, quiz.ErrTimeout):
		return "request timed out"
	case errors.Is(err, quiz.ErrNetwork):
		return "network error"
	default:
		return err.Error()
	}
}

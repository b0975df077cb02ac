package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/juanlms/quizcore/internal/quiz"
)

// Client calls the quiz endpoints. Errors wrap the quiz sentinels so callers
// can test them with errors.Is.
type Client struct {
	base  string
	token string
	http  *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithToken(tok string) Option          { return func(c *Client) { c.token = tok } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{base: strings.TrimSuffix(baseURL, "/"), http: http.DefaultClient}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) FetchQuiz(ctx context.Context, quizID string) (quiz.Quiz, error) {
	var q quiz.Quiz
	err := c.do(ctx, http.MethodGet, "/quizzes/"+url.PathEscape(quizID), nil, &q)
	return q, err
}

// FetchResult returns nil, nil when no result exists yet.
func (c *Client) FetchResult(ctx context.Context, quizID, studentID string, reveal bool) (*quiz.Result, error) {
	qs := url.Values{}
	qs.Set("studentId", studentID)
	qs.Set("revealAnswers", strconv.FormatBool(reveal))
	var r quiz.Result
	err := c.do(ctx, http.MethodGet, "/quizzes/"+url.PathEscape(quizID)+"/myscore?"+qs.Encode(), nil, &r)
	if errors.Is(err, quiz.ErrResultNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Submit(ctx context.Context, quizID string, p quiz.SubmitPayload) (quiz.Result, error) {
	var r quiz.Result
	err := c.do(ctx, http.MethodPost, "/quizzes/"+url.PathEscape(quizID)+"/submit", p, &r)
	return r, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, strings.TrimSpace(string(msg)), path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", quiz.ErrServer, err)
	}
	return nil
}

func statusError(code int, msg, path string) error {
	var base error
	switch {
	case code == http.StatusNotFound && strings.Contains(path, "/myscore"):
		base = quiz.ErrResultNotFound
	case code == http.StatusNotFound:
		base = quiz.ErrQuizNotFound
	case code == http.StatusUnauthorized:
		base = quiz.ErrAuthExpired
	case code == http.StatusForbidden:
		base = quiz.ErrAccessDenied
	case code == http.StatusConflict:
		base = quiz.ErrUnavailable
	case code == http.StatusBadRequest:
		base = quiz.ErrInvalidSubmission
	case code == http.StatusGatewayTimeout || code == http.StatusRequestTimeout:
		base = quiz.ErrTimeout
	default:
		base = quiz.ErrServer
	}
	if msg == "" {
		return fmt.Errorf("%w (HTTP %d)", base, code)
	}
	return fmt.Errorf("%w (HTTP %d): %s", base, code, msg)
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", quiz.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", quiz.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", quiz.ErrNetwork, err)
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	auth "github.com/juanlms/quizcore/internal/auth/middleware"
	"github.com/juanlms/quizcore/internal/quiz"
	"github.com/juanlms/quizcore/internal/rbac"
	"github.com/juanlms/quizcore/pkg/logger"
	"github.com/juanlms/quizcore/pkg/monitoring"
	"github.com/juanlms/quizcore/pkg/tracing"
)

type RouterDeps struct {
	Service QuizService
	Events  EventFeed // nil disables GET /notifications
	Auth    *auth.AuthService
	Users   auth.UserLookup // nil disables POST /auth/login
	// Roster, when set, makes stored roles authoritative over token claims.
	Roster             quiz.Roster
	AllowClaimFallback bool

	Logger         *zap.Logger
	CORSOrigins    []string
	RequestTimeout time.Duration
	SubmitLimiter  func(http.Handler) http.Handler
	Ready          func(ctx context.Context) error
	Tracing        bool
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.Middleware(d.Logger), middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestTimeout))
	r.Use(monitoring.Middleware)
	if d.Tracing {
		r.Use(tracing.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(req.Context()); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", monitoring.Handler())

	if d.Users != nil {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Users))
	}

	limit := d.SubmitLimiter
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))
		if d.Roster != nil {
			pr.Use(auth.AttachRoleFromRoster(d.Roster, d.AllowClaimFallback))
		}

		pr.With(rbac.Require(rbac.PermQuizCreate)).Post("/quizzes", CreateQuizHandler(d.Service))
		if d.Events != nil {
			pr.With(rbac.Require(rbac.PermResultViewAll)).Get("/notifications", NotificationsHandler(d.Events))
		}
		pr.Route("/quizzes/{quizID}", func(qr chi.Router) {
			qr.With(rbac.Require(rbac.PermQuizView)).Get("/", GetQuizHandler(d.Service))
			qr.With(rbac.Require(rbac.PermQuizSubmit), limit).Post("/submit", SubmitQuizHandler(d.Service))
			qr.With(rbac.RequireAny(rbac.PermResultViewOwn, rbac.PermResultViewAll)).Get("/myscore", MyScoreHandler(d.Service))
			qr.With(rbac.Require(rbac.PermResultViewAll)).Get("/responses", ListResponsesHandler(d.Service))
		})
	})
	return r
}

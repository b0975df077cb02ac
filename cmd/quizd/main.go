package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	api "github.com/juanlms/quizcore/internal/api/http"
	auth "github.com/juanlms/quizcore/internal/auth/middleware"
	"github.com/juanlms/quizcore/internal/config"
	"github.com/juanlms/quizcore/internal/db"
	"github.com/juanlms/quizcore/internal/grading"
	"github.com/juanlms/quizcore/internal/quiz"
	"github.com/juanlms/quizcore/internal/storage"
	syncx "github.com/juanlms/quizcore/internal/sync"
	"github.com/juanlms/quizcore/pkg/logger"
	"github.com/juanlms/quizcore/pkg/monitoring"
	"github.com/juanlms/quizcore/pkg/security"
	"github.com/juanlms/quizcore/pkg/tracing"
)

// roster is what the server needs from a user directory.
type roster interface {
	quiz.Roster
	auth.UserLookup
	PutUser(ctx context.Context, u quiz.User) error
}

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Options{
		Mode:       cfg.Server.Mode,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitoring.Init()

	// --- Storage ---
	var (
		store  quiz.Store
		users  roster
		events interface {
			quiz.EventSink
			api.EventFeed
		}
		dbh    *sql.DB
	)
	switch cfg.Database.Driver {
	case "memory":
		store, users, events = quiz.NewInMemoryStore(), quiz.NewMemoryRoster(), syncx.NewMemoryLog()
	default:
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err = db.Open(openCtx, db.Driver(cfg.Database.Driver), cfg.Database.DSN)
		cancel()
		if err != nil {
			log.Fatal("db open failed", zap.Error(err))
		}
		defer dbh.Close()
		store, users, events = quiz.NewSQLStore(dbh), quiz.NewSQLRoster(dbh), syncx.NewEventRepo(dbh)
	}

	if cfg.Auth.AdminPassHash != "" {
		admin := quiz.User{ID: cfg.Auth.AdminUser, Username: cfg.Auth.AdminUser, PasswordHash: cfg.Auth.AdminPassHash, Role: quiz.RoleAdmin}
		if err := users.PutUser(ctx, admin); err != nil {
			log.Fatal("seed admin user", zap.Error(err))
		}
	}

	blobs, err := openBlobStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("blob store", zap.Error(err))
	}

	// --- Tracing ---
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			log.Fatal("tracer init", zap.Error(err))
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(sctx)
		}()
	}

	// --- Service ---
	policy, err := quiz.ParseRevealPolicy(cfg.Quiz.RevealPolicy)
	if err != nil {
		log.Fatal("reveal policy", zap.Error(err))
	}
	opts := []quiz.Option{
		quiz.WithGrader(grading.NewDefaultGrader(grading.WithMaxEditDistance(cfg.Quiz.MaxEditDistance))),
		quiz.WithEvents(events),
		quiz.WithRevealPolicy(policy),
		quiz.WithSubmitGrace(cfg.Quiz.SubmitGrace),
	}
	if blobs != nil {
		opts = append(opts, quiz.WithBlobStore(blobs))
	}
	if cfg.Quiz.EnforceRoster {
		opts = append(opts, quiz.WithRoster(users))
	}
	svc := quiz.NewService(store, opts...)

	// --- Router ---
	handler := api.NewRouter(api.RouterDeps{
		Service:            svc,
		Events:             events,
		Auth:               auth.NewAuthService(cfg.Auth.HMACSecret, cfg.Auth.TokenTTL),
		Users:              users,
		Roster:             users,
		AllowClaimFallback: cfg.Auth.AllowClaimFallback,
		Logger:             log,
		CORSOrigins:        cfg.CORS.AllowedOrigins,
		RequestTimeout:     cfg.Server.RequestTimeout,
		SubmitLimiter:      security.RateLimiter(ctx, cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute),
		Tracing:            cfg.Tracing.Enabled,
		Ready: func(ctx context.Context) error {
			if dbh == nil {
				return nil
			}
			return dbh.PingContext(ctx)
		},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("mode", cfg.Server.Mode),
			zap.String("db", cfg.Database.Driver),
			zap.String("reveal", string(policy)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

// openBlobStore returns nil when receipts are disabled.
func openBlobStore(ctx context.Context, c config.StorageConfig) (storage.BlobStore, error) {
	switch c.Type {
	case "", "none":
		return nil, nil
	case "minio":
		return storage.NewMinIOStore(ctx, storage.MinIOOptions{
			Endpoint:  c.MinioEndpoint,
			AccessKey: c.MinioAccessKey,
			SecretKey: c.MinioSecretKey,
			Bucket:    c.MinioBucket,
			UseSSL:    c.MinioUseSSL,
		})
	default:
		return storage.NewFSStore(c.LocalPath)
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	redisinfra "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/telemetry"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := runMigrations(ctx, db); err != nil {
			return err
		}
		store = postgres.NewStore(db)
	} else {
		slog.WarnContext(ctx, "server: no postgres url, using in-memory store")
	}

	var limiter transport.RateLimiter = memory.NewRateLimiter()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		telemetry.MonitorRedis(client)
		if err := client.Ping(ctx).Err(); err != nil {
			slog.WarnContext(ctx, "server: redis unreachable, rate limits fail open", "addr", cfg.Redis.Addr, "err", err)
		}
		limiter = redisinfra.NewRateLimiter(client)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, auth.DefaultTokenTTL))
	feed := memory.NewAttemptFeed()

	router := transport.NewRouter(transport.Config{
		Accounts: app.NewAccountService(app.AccountConfig{Store: store, Tokens: tokens, Hasher: auth.Bcrypt{}}),
		Quizzes:  app.NewQuizService(store, nil),
		Attempts: app.NewAttemptService(app.AttemptConfig{Store: store, Publisher: feed, Recorder: metrics}),
		Grading:  app.NewGradingService(app.GradingConfig{Store: store, Publisher: feed, Recorder: metrics}),
		Feed:     feed,
		Tokens:   tokens,
		Limiter:  limiter,
		Limits: transport.Limits{
			RegisterPerMinute: cfg.RateLimit.RegisterPerMinute,
			LoginPerMinute:    cfg.RateLimit.LoginPerMinute,
		},
		Metrics:  metrics,
		Gatherer: reg,
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout:      config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}
	shutdownTimeout := config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.InfoContext(gctx, "server: listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.InfoContext(context.Background(), "server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// TokenVerifier turns a bearer token into a caller.
type TokenVerifier interface {
	Verify(token string) (domain.Caller, error)
}

// RateLimiter counts hits per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, period time.Duration) (bool, error)
}

// AttemptFeed delivers committed attempt states to live subscribers.
type AttemptFeed interface {
	Subscribe(attemptID int64) (<-chan domain.Attempt, func())
}

// HTTPObserver records request durations.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

type Limits struct {
	RegisterPerMinute int
	LoginPerMinute    int
}

type Config struct {
	Accounts *app.AccountService
	Quizzes  *app.QuizService
	Attempts *app.AttemptService
	Grading  *app.GradingService
	Feed     AttemptFeed
	Tokens   TokenVerifier
	Limiter  RateLimiter
	Limits   Limits
	Metrics  HTTPObserver
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type server struct {
	accounts *app.AccountService
	quizzes  *app.QuizService
	attempts *app.AttemptService
	grading  *app.GradingService
	feed     AttemptFeed
	tokens   TokenVerifier
	limiter  RateLimiter
	metrics  HTTPObserver
	upgrader websocket.Upgrader
}

// NewRouter builds the HTTP API.
func NewRouter(c Config) http.Handler {
	s := &server{
		accounts: c.Accounts,
		quizzes:  c.Quizzes,
		attempts: c.Attempts,
		grading:  c.Grading,
		feed:     c.Feed,
		tokens:   c.Tokens,
		limiter:  c.Limiter,
		metrics:  c.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.observe, middleware.Recoverer)

	if c.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Route("/auth", func(r chi.Router) {
			r.With(s.rateLimit("register", c.Limits.RegisterPerMinute)).Post("/register", s.register)
			r.With(s.rateLimit("login", c.Limits.LoginPerMinute)).Post("/login", s.login)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate(false))
			r.Get("/quizzes", s.listQuizzes)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate(true))

			r.With(requireAdmin).Post("/quizzes", s.createQuiz)
			r.Get("/quizzes/{quizID}", s.getQuiz)

			r.Post("/attempts", s.startAttempt)
			r.Route("/attempts/{attemptID}", func(r chi.Router) {
				r.Get("/", s.getAttempt)
				r.Post("/submit", s.submitAttempt)
				r.Get("/events", s.attemptEvents)
			})

			r.Get("/submissions/mine", s.mySubmissions)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/pending_coding", s.pendingCoding)
				r.Get("/submission/{submissionID}", s.submissionDetail)
				r.Post("/grade/{submissionID}", s.gradeSubmission)
			})
		})
	})
	return r
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

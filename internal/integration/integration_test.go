package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/postgres"
	pgmigrations "quiz-attempt-service/internal/infra/postgres/migrations"
	infraredis "quiz-attempt-service/internal/infra/redis"
)

func TestAttemptLifecycleOnPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openAndMigrate(t, ctx, pgURL)
	defer db.Close()
	store := postgres.NewStore(db)

	student := domain.Caller{UserID: seedUser(t, ctx, store, "alice", domain.RoleUser), Role: domain.RoleUser}
	admin := domain.Caller{UserID: seedUser(t, ctx, store, "root", domain.RoleAdmin), Role: domain.RoleAdmin}

	quizzes := app.NewQuizService(store, nil)
	attempts := app.NewAttemptService(app.AttemptConfig{Store: store})
	grading := app.NewGradingService(app.GradingConfig{Store: store})

	limit := 30
	quizID, err := quizzes.CreateQuiz(ctx, admin, app.CreateQuizInput{
		Title:            "Go basics",
		TimeLimitMinutes: &limit,
		IsPublished:      true,
		Questions: []app.QuestionInput{
			{Text: "Zero value of int?", Type: domain.QuestionSingleChoice, Points: 2, Choices: []app.ChoiceInput{
				{Text: "nil"}, {Text: "0", IsCorrect: true},
			}},
			{Text: "Reference types?", Type: domain.QuestionMultiSelect, Points: 4, Choices: []app.ChoiceInput{
				{Text: "map", IsCorrect: true}, {Text: "slice", IsCorrect: true}, {Text: "int"}, {Text: "array"},
			}},
			{Text: "Reverse a string", Type: domain.QuestionCoding, Points: 5},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	quiz, err := quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if len(quiz.Questions) != 3 || len(quiz.Questions[2].Choices) != 0 {
		t.Fatalf("unexpected quiz shape: %+v", quiz)
	}

	attempt, err := attempts.Start(ctx, student, quizID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if attempt.TimeLimitMinutes == nil || *attempt.TimeLimitMinutes != 30 {
		t.Fatalf("expected time limit snapshot, got %+v", attempt.TimeLimitMinutes)
	}
	var conflict *domain.AttemptConflictError
	if _, err := attempts.Start(ctx, student, quizID); !errors.As(err, &conflict) || conflict.AttemptID != attempt.ID {
		t.Fatalf("expected conflict carrying attempt %d, got %v", attempt.ID, err)
	}

	mcq, msq, coding := quiz.Questions[0], quiz.Questions[1], quiz.Questions[2]
	code := "func reverse(s string) string { return s }"
	answers := []app.Answer{
		{QuestionID: mcq.ID, SelectedChoiceIDs: ids(mcq.Choices[1].ID)},
		{QuestionID: msq.ID, SelectedChoiceIDs: ids(msq.Choices[0].ID, msq.Choices[2].ID)},
		{QuestionID: coding.ID, Code: &code},
	}

	// Concurrent submits race on the attempt row lock; exactly one wins.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []app.SubmitResult
		losers  int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := attempts.SubmitAnswers(ctx, student, attempt.ID, answers)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				results = append(results, res)
			case errors.Is(err, domain.ErrConflict):
				losers++
			default:
				t.Errorf("submit: %v", err)
			}
		}()
	}
	wg.Wait()
	if len(results) != 1 || losers != 3 {
		t.Fatalf("expected one winner and three conflicts, got %d/%d", len(results), losers)
	}
	res := results[0]
	// msq: (1/2 correct - 1/4 wrong) * 4 points = 1.
	if res.Attempt.Status != domain.AttemptSubmitted || res.TotalAutoScore != 3 {
		t.Fatalf("unexpected submit result: status=%s total=%v", res.Attempt.Status, res.TotalAutoScore)
	}

	pending, err := grading.PendingCoding(ctx, admin)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Language != "python" {
		t.Fatalf("expected one pending python submission, got %+v", pending)
	}

	score := 4.5
	graded, err := grading.GradeSubmission(ctx, admin, pending[0].ID, app.GradeInput{Score: &score})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if graded.Attempt == nil || graded.Attempt.Status != domain.AttemptGraded {
		t.Fatalf("expected graded attempt, got %+v", graded.Attempt)
	}
	if graded.Attempt.FinalScore == nil || *graded.Attempt.FinalScore != 7.5 {
		t.Fatalf("expected final score 7.5, got %v", graded.Attempt.FinalScore)
	}

	view, err := attempts.GetAttempt(ctx, student, attempt.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if len(view.Submissions) != 3 || view.RemainingSeconds != nil {
		t.Fatalf("unexpected view: %d submissions, remaining=%v", len(view.Submissions), view.RemainingSeconds)
	}

	mine, err := attempts.ListMySubmissions(ctx, student)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if len(mine) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(mine))
	}
}

func TestRedisRateLimiter(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()
	limiter := infraredis.NewRateLimiter(client)

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "login:203.0.113.7", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("hit %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := limiter.Allow(ctx, "login:203.0.113.7", 3, time.Minute)
	if err != nil || ok {
		t.Fatalf("expected fourth hit rejected, ok=%v err=%v", ok, err)
	}
	if ok, _ := limiter.Allow(ctx, "login:203.0.113.8", 3, time.Minute); !ok {
		t.Fatalf("expected other client allowed")
	}
}

func ids(v ...int64) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

func seedUser(t *testing.T, ctx context.Context, store app.Store, name string, role domain.Role) int64 {
	t.Helper()
	u := domain.User{Username: name, Email: name + "@example.com", PasswordHash: "x", Role: role, CreatedAt: time.Now().UTC()}
	err := store.RunInTx(ctx, func(ctx context.Context, tx app.Tx) error {
		return tx.InsertUser(ctx, &u)
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u.ID
}

func openAndMigrate(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

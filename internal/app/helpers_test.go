package app_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

var (
	student = domain.Caller{UserID: 10, Role: domain.RoleUser}
	other   = domain.Caller{UserID: 11, Role: domain.RoleUser}
	admin   = domain.Caller{UserID: 1, Role: domain.RoleAdmin}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu          sync.Mutex
	started     int
	transitions []domain.AttemptStatus
	graded      map[string]int
}

func (r *recorder) AttemptStarted() {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
}

func (r *recorder) AttemptTransitioned(s domain.AttemptStatus) {
	r.mu.Lock()
	r.transitions = append(r.transitions, s)
	r.mu.Unlock()
}

func (r *recorder) SubmissionGraded(mode string) {
	r.mu.Lock()
	if r.graded == nil {
		r.graded = make(map[string]int)
	}
	r.graded[mode]++
	r.mu.Unlock()
}

type fixture struct {
	clock    *fakeClock
	feed     *memory.AttemptFeed
	rec      *recorder
	quizzes  *app.QuizService
	attempts *app.AttemptService
	grading  *app.GradingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.NewStore())
}

func newFixtureWithStore(t *testing.T, store app.Store) *fixture {
	t.Helper()
	f := &fixture{clock: newClock(), feed: memory.NewAttemptFeed(), rec: &recorder{}}
	f.quizzes = app.NewQuizService(store, f.clock.Now)
	f.attempts = app.NewAttemptService(app.AttemptConfig{
		Store:     store,
		Clock:     f.clock.Now,
		Publisher: f.feed,
		Recorder:  f.rec,
	})
	f.grading = app.NewGradingService(app.GradingConfig{
		Store:     store,
		Clock:     f.clock.Now,
		Publisher: f.feed,
		Recorder:  f.rec,
	})
	return f
}

// sampleQuiz has an mcq worth 2 (correct: 2nd choice), an msq worth 4
// (correct: 1st and 2nd of four) and, when withCoding, a coding question worth 5.
func (f *fixture) sampleQuiz(t *testing.T, limitMinutes *int, withCoding bool) domain.Quiz {
	t.Helper()
	in := app.CreateQuizInput{
		Title:            "Go basics",
		TimeLimitMinutes: limitMinutes,
		IsPublished:      true,
		Questions: []app.QuestionInput{
			{Text: "Zero value of int?", Type: domain.QuestionSingleChoice, Points: 2, Choices: []app.ChoiceInput{
				{Text: "nil"}, {Text: "0", IsCorrect: true}, {Text: "undefined"},
			}},
			{Text: "Reference types?", Type: domain.QuestionMultiSelect, Points: 4, Choices: []app.ChoiceInput{
				{Text: "map", IsCorrect: true}, {Text: "slice", IsCorrect: true}, {Text: "int"}, {Text: "array"},
			}},
		},
	}
	if withCoding {
		in.Questions = append(in.Questions, app.QuestionInput{Text: "Reverse a string", Type: domain.QuestionCoding, Points: 5})
	}

	id, err := f.quizzes.CreateQuiz(context.Background(), admin, in)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	quiz, err := f.quizzes.GetQuiz(context.Background(), id)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	return quiz
}

func choiceAnswer(q domain.Question, idx ...int) app.Answer {
	ids := make([]int64, 0, len(idx))
	for _, i := range idx {
		ids = append(ids, q.Choices[i].ID)
	}
	raw, _ := json.Marshal(ids)
	return app.Answer{QuestionID: q.ID, SelectedChoiceIDs: raw}
}

func codeAnswer(q domain.Question, code string) app.Answer {
	return app.Answer{QuestionID: q.ID, Code: &code}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

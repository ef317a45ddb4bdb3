package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"
)

// QuizService contains the quiz catalogue use cases.
type QuizService struct {
	store Store
	clock func() time.Time
}

func NewQuizService(store Store, clock func() time.Time) *QuizService {
	if clock == nil {
		clock = time.Now
	}
	return &QuizService{store: store, clock: clock}
}

type ChoiceInput struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

type QuestionInput struct {
	Text    string              `json:"text" validate:"required"`
	Type    domain.QuestionType `json:"qtype" validate:"required,oneof=mcq msq coding"`
	Points  int                 `json:"points" validate:"gte=0"`
	Choices []ChoiceInput       `json:"choices" validate:"dive"`
}

type CreateQuizInput struct {
	Title            string          `json:"title" validate:"required"`
	Description      string          `json:"description"`
	TimeLimitMinutes *int            `json:"time_limit_minutes" validate:"omitempty,gte=1"`
	IsPublished      bool            `json:"is_published"`
	Questions        []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

// CreateQuiz stores a new quiz with its questions and returns its id.
func (s *QuizService) CreateQuiz(ctx context.Context, caller domain.Caller, in CreateQuizInput) (int64, error) {
	if err := requireAdmin(caller); err != nil {
		return 0, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return 0, err
	}

	quiz := domain.Quiz{
		Title:            in.Title,
		Description:      in.Description,
		TimeLimitMinutes: in.TimeLimitMinutes,
		IsPublished:      in.IsPublished,
		CreatedAt:        s.clock().UTC(),
	}
	for _, qi := range in.Questions {
		q := domain.Question{Text: qi.Text, Type: qi.Type, Points: qi.Points}
		if q.Points == 0 {
			q.Points = 1
		}
		// Coding questions never carry choices.
		if q.Type.IsChoice() {
			for _, ci := range qi.Choices {
				q.Choices = append(q.Choices, domain.Choice{Text: ci.Text, IsCorrect: ci.IsCorrect})
			}
		}
		quiz.Questions = append(quiz.Questions, q)
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertQuiz(ctx, &quiz)
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "quiz: created", "quiz_id", quiz.ID, "questions", len(quiz.Questions))
	return quiz.ID, nil
}

// ListQuizzes returns quizzes newest first. Only admins see unpublished ones.
func (s *QuizService) ListQuizzes(ctx context.Context, caller *domain.Caller) ([]domain.Quiz, error) {
	publishedOnly := caller == nil || !caller.IsAdmin()

	var quizzes []domain.Quiz
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		quizzes, err = tx.ListQuizzes(ctx, publishedOnly)
		return err
	})
	return quizzes, err
}

// GetQuiz loads a quiz with its questions and choices.
func (s *QuizService) GetQuiz(ctx context.Context, id int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		quiz, err = tx.GetQuiz(ctx, id)
		return err
	})
	return quiz, err
}

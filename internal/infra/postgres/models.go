package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"quiz-attempt-service/internal/domain"
)

type userModel struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Username     string    `bun:"username,notnull"`
	Email        string    `bun:"email,notnull"`
	PasswordHash string    `bun:"password_hash,notnull"`
	Role         string    `bun:"role,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

func (m userModel) toDomain() domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

type quizModel struct {
	bun.BaseModel `bun:"table:quizzes,alias:qz"`

	ID               int64     `bun:"id,pk,autoincrement"`
	Title            string    `bun:"title,notnull"`
	Description      string    `bun:"description,notnull"`
	TimeLimitMinutes *int      `bun:"time_limit_minutes"`
	IsPublished      bool      `bun:"is_published,notnull"`
	CreatedAt        time.Time `bun:"created_at,notnull"`
}

func (m quizModel) toDomain() domain.Quiz {
	return domain.Quiz{
		ID:               m.ID,
		Title:            m.Title,
		Description:      m.Description,
		TimeLimitMinutes: m.TimeLimitMinutes,
		IsPublished:      m.IsPublished,
		CreatedAt:        m.CreatedAt.UTC(),
	}
}

type questionModel struct {
	bun.BaseModel `bun:"table:questions,alias:qn"`

	ID     int64  `bun:"id,pk,autoincrement"`
	QuizID int64  `bun:"quiz_id,notnull"`
	Text   string `bun:"text,notnull"`
	Type   string `bun:"qtype,notnull"`
	Points int    `bun:"points,notnull"`
}

func (m questionModel) toDomain() domain.Question {
	return domain.Question{
		ID:     m.ID,
		QuizID: m.QuizID,
		Text:   m.Text,
		Type:   domain.QuestionType(m.Type),
		Points: m.Points,
	}
}

type choiceModel struct {
	bun.BaseModel `bun:"table:choices,alias:ch"`

	ID         int64  `bun:"id,pk,autoincrement"`
	QuestionID int64  `bun:"question_id,notnull"`
	Text       string `bun:"text,notnull"`
	IsCorrect  bool   `bun:"is_correct,notnull"`
}

func (m choiceModel) toDomain() domain.Choice {
	return domain.Choice{ID: m.ID, QuestionID: m.QuestionID, Text: m.Text, IsCorrect: m.IsCorrect}
}

type attemptModel struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:qa"`

	ID               int64      `bun:"id,pk,autoincrement"`
	UserID           int64      `bun:"user_id,notnull"`
	QuizID           int64      `bun:"quiz_id,notnull"`
	StartTime        time.Time  `bun:"start_time,notnull"`
	EndTime          *time.Time `bun:"end_time"`
	Status           string     `bun:"status,notnull"`
	FinalScore       *float64   `bun:"final_score"`
	TimeLimitMinutes *int       `bun:"time_limit_minutes"`
}

func newAttemptModel(a domain.Attempt) attemptModel {
	return attemptModel{
		ID:               a.ID,
		UserID:           a.UserID,
		QuizID:           a.QuizID,
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
		Status:           string(a.Status),
		FinalScore:       a.FinalScore,
		TimeLimitMinutes: a.TimeLimitMinutes,
	}
}

func (m attemptModel) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:               m.ID,
		UserID:           m.UserID,
		QuizID:           m.QuizID,
		StartTime:        m.StartTime.UTC(),
		EndTime:          utcPtr(m.EndTime),
		Status:           domain.AttemptStatus(m.Status),
		FinalScore:       m.FinalScore,
		TimeLimitMinutes: m.TimeLimitMinutes,
	}
}

type submissionModel struct {
	bun.BaseModel `bun:"table:submissions,alias:sb"`

	ID                int64      `bun:"id,pk,autoincrement"`
	UserID            int64      `bun:"user_id,notnull"`
	QuizID            int64      `bun:"quiz_id,notnull"`
	QuestionID        int64      `bun:"question_id,notnull"`
	AttemptID         *int64     `bun:"attempt_id"`
	SelectedChoiceIDs []int64    `bun:"selected_choice_ids,array"`
	Code              *string    `bun:"code"`
	Language          string     `bun:"language,notnull"`
	Score             *float64   `bun:"score"`
	Graded            bool       `bun:"graded,notnull"`
	Feedback          *string    `bun:"feedback"`
	SubmittedAt       time.Time  `bun:"submitted_at,notnull"`
	GradedAt          *time.Time `bun:"graded_at"`
}

func newSubmissionModel(s domain.Submission) submissionModel {
	return submissionModel{
		ID:                s.ID,
		UserID:            s.UserID,
		QuizID:            s.QuizID,
		QuestionID:        s.QuestionID,
		AttemptID:         s.AttemptID,
		SelectedChoiceIDs: s.SelectedChoiceIDs,
		Code:              s.Code,
		Language:          s.Language,
		Score:             s.Score,
		Graded:            s.Graded,
		Feedback:          s.Feedback,
		SubmittedAt:       s.SubmittedAt,
		GradedAt:          s.GradedAt,
	}
}

func (m submissionModel) toDomain() domain.Submission {
	return domain.Submission{
		ID:                m.ID,
		UserID:            m.UserID,
		QuizID:            m.QuizID,
		QuestionID:        m.QuestionID,
		AttemptID:         m.AttemptID,
		SelectedChoiceIDs: m.SelectedChoiceIDs,
		Code:              m.Code,
		Language:          m.Language,
		Score:             m.Score,
		Graded:            m.Graded,
		Feedback:          m.Feedback,
		SubmittedAt:       m.SubmittedAt.UTC(),
		GradedAt:          utcPtr(m.GradedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

const uniqueViolation = "23505"

// Open connects to Postgres through the pgx driver.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Store implements app.Store on top of bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, btx bun.Tx) error {
		return fn(ctx, &tx{db: btx})
	})
}

type tx struct {
	db bun.IDB
}

func notFound(err error, target error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return target
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (t *tx) InsertUser(ctx context.Context, u *domain.User) error {
	m := userModel{
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
	if _, err := t.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = m.ID
	return nil
}

func (t *tx) GetUser(ctx context.Context, id int64) (domain.User, error) {
	m := userModel{ID: id}
	if err := t.db.NewSelect().Model(&m).WherePK().Scan(ctx); err != nil {
		return domain.User{}, notFound(err, domain.ErrUserNotFound)
	}
	return m.toDomain(), nil
}

func (t *tx) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var m userModel
	err := t.db.NewSelect().Model(&m).Where("username = ?", username).Limit(1).Scan(ctx)
	if err != nil {
		return domain.User{}, notFound(err, domain.ErrUserNotFound)
	}
	return m.toDomain(), nil
}

func (t *tx) UserExists(ctx context.Context, username, email string) (bool, error) {
	exists, err := t.db.NewSelect().Model((*userModel)(nil)).
		Where("username = ? OR email = ?", username, email).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

func (t *tx) InsertQuiz(ctx context.Context, q *domain.Quiz) error {
	qm := quizModel{
		Title:            q.Title,
		Description:      q.Description,
		TimeLimitMinutes: q.TimeLimitMinutes,
		IsPublished:      q.IsPublished,
		CreatedAt:        q.CreatedAt,
	}
	if _, err := t.db.NewInsert().Model(&qm).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	q.ID = qm.ID

	for i := range q.Questions {
		question := &q.Questions[i]
		question.QuizID = q.ID
		m := questionModel{QuizID: q.ID, Text: question.Text, Type: string(question.Type), Points: question.Points}
		if _, err := t.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		question.ID = m.ID

		if len(question.Choices) == 0 {
			continue
		}
		choices := make([]choiceModel, 0, len(question.Choices))
		for _, c := range question.Choices {
			choices = append(choices, choiceModel{QuestionID: m.ID, Text: c.Text, IsCorrect: c.IsCorrect})
		}
		if _, err := t.db.NewInsert().Model(&choices).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert choices: %w", err)
		}
		for j := range choices {
			question.Choices[j].ID = choices[j].ID
			question.Choices[j].QuestionID = m.ID
		}
	}
	return nil
}

func (t *tx) GetQuiz(ctx context.Context, id int64) (domain.Quiz, error) {
	var qm quizModel
	if err := t.db.NewSelect().Model(&qm).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Quiz{}, notFound(err, domain.ErrQuizNotFound)
	}
	quiz := qm.toDomain()

	var questions []questionModel
	if err := t.db.NewSelect().Model(&questions).Where("quiz_id = ?", id).Order("id ASC").Scan(ctx); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return quiz, nil
	}

	ids := make([]int64, 0, len(questions))
	for _, m := range questions {
		ids = append(ids, m.ID)
	}
	byQuestion, err := t.choicesFor(ctx, ids)
	if err != nil {
		return domain.Quiz{}, err
	}

	quiz.Questions = make([]domain.Question, 0, len(questions))
	for _, m := range questions {
		q := m.toDomain()
		q.Choices = byQuestion[q.ID]
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz, nil
}

func (t *tx) choicesFor(ctx context.Context, questionIDs []int64) (map[int64][]domain.Choice, error) {
	var choices []choiceModel
	err := t.db.NewSelect().Model(&choices).
		Where("question_id IN (?)", bun.In(questionIDs)).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load choices: %w", err)
	}
	out := make(map[int64][]domain.Choice, len(questionIDs))
	for _, c := range choices {
		out[c.QuestionID] = append(out[c.QuestionID], c.toDomain())
	}
	return out, nil
}

func (t *tx) ListQuizzes(ctx context.Context, publishedOnly bool) ([]domain.Quiz, error) {
	var models []quizModel
	q := t.db.NewSelect().Model(&models).Order("created_at DESC", "id DESC")
	if publishedOnly {
		q = q.Where("is_published")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	out := make([]domain.Quiz, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (t *tx) GetQuestion(ctx context.Context, id int64) (domain.Question, error) {
	var m questionModel
	if err := t.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Question{}, notFound(err, domain.ErrQuestionNotFound)
	}
	byQuestion, err := t.choicesFor(ctx, []int64{id})
	if err != nil {
		return domain.Question{}, err
	}
	q := m.toDomain()
	q.Choices = byQuestion[id]
	return q, nil
}

func (t *tx) InsertAttempt(ctx context.Context, a *domain.Attempt) error {
	m := newAttemptModel(*a)
	if _, err := t.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateAttempt
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	a.ID = m.ID
	return nil
}

func (t *tx) GetAttempt(ctx context.Context, id int64) (domain.Attempt, error) {
	m := attemptModel{ID: id}
	if err := t.db.NewSelect().Model(&m).WherePK().Scan(ctx); err != nil {
		return domain.Attempt{}, notFound(err, domain.ErrAttemptNotFound)
	}
	return m.toDomain(), nil
}

func (t *tx) LockAttempt(ctx context.Context, id int64) (domain.Attempt, error) {
	m := attemptModel{ID: id}
	if err := t.db.NewSelect().Model(&m).WherePK().For("UPDATE").Scan(ctx); err != nil {
		return domain.Attempt{}, notFound(err, domain.ErrAttemptNotFound)
	}
	return m.toDomain(), nil
}

func (t *tx) FindAttempt(ctx context.Context, userID, quizID int64) (domain.Attempt, bool, error) {
	var m attemptModel
	err := t.db.NewSelect().Model(&m).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("find attempt: %w", err)
	}
	return m.toDomain(), true, nil
}

func (t *tx) UpdateAttempt(ctx context.Context, a domain.Attempt) error {
	m := newAttemptModel(a)
	res, err := t.db.NewUpdate().Model(&m).
		Column("end_time", "status", "final_score").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	return requireRow(res, domain.ErrAttemptNotFound)
}

func (t *tx) InsertSubmissions(ctx context.Context, subs []*domain.Submission) error {
	if len(subs) == 0 {
		return nil
	}
	models := make([]submissionModel, 0, len(subs))
	for _, s := range subs {
		models = append(models, newSubmissionModel(*s))
	}
	if _, err := t.db.NewInsert().Model(&models).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert submissions: %w", err)
	}
	for i := range models {
		subs[i].ID = models[i].ID
	}
	return nil
}

func (t *tx) GetSubmission(ctx context.Context, id int64) (domain.Submission, error) {
	m := submissionModel{ID: id}
	if err := t.db.NewSelect().Model(&m).WherePK().Scan(ctx); err != nil {
		return domain.Submission{}, notFound(err, domain.ErrSubmissionNotFound)
	}
	return m.toDomain(), nil
}

func (t *tx) UpdateSubmission(ctx context.Context, s domain.Submission) error {
	m := newSubmissionModel(s)
	res, err := t.db.NewUpdate().Model(&m).
		Column("score", "feedback", "graded", "graded_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return requireRow(res, domain.ErrSubmissionNotFound)
}

func (t *tx) ListSubmissionsByAttempt(ctx context.Context, attemptID int64) ([]domain.Submission, error) {
	return t.listSubmissions(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("attempt_id = ?", attemptID).Order("submitted_at ASC", "id ASC")
	})
}

func (t *tx) ListSubmissionsByUser(ctx context.Context, userID int64, limit int) ([]domain.Submission, error) {
	return t.listSubmissions(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("user_id = ?", userID).Order("submitted_at DESC", "id DESC").Limit(limit)
	})
}

func (t *tx) ListPendingCoding(ctx context.Context) ([]domain.Submission, error) {
	return t.listSubmissions(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("NOT graded").Where("code IS NOT NULL").Order("submitted_at ASC", "id ASC")
	})
}

func (t *tx) listSubmissions(ctx context.Context, apply func(*bun.SelectQuery) *bun.SelectQuery) ([]domain.Submission, error) {
	var models []submissionModel
	if err := apply(t.db.NewSelect().Model(&models)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]domain.Submission, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

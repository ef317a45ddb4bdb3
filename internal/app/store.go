package app

import (
	"context"

	"quiz-attempt-service/internal/domain"
)

// Store runs units of work against the relational store. fn's writes are
// committed when it returns nil and rolled back otherwise.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of reads and writes available inside one transaction.
// Getters return a domain not-found error when the row is absent.
type Tx interface {
	InsertUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)

	InsertQuiz(ctx context.Context, q *domain.Quiz) error
	// GetQuiz loads the quiz with its questions and their choices.
	GetQuiz(ctx context.Context, id int64) (domain.Quiz, error)
	// ListQuizzes returns quizzes newest first, without their questions.
	ListQuizzes(ctx context.Context, publishedOnly bool) ([]domain.Quiz, error)
	GetQuestion(ctx context.Context, id int64) (domain.Question, error)

	// InsertAttempt returns domain.ErrDuplicateAttempt when (user, quiz) already has one.
	InsertAttempt(ctx context.Context, a *domain.Attempt) error
	GetAttempt(ctx context.Context, id int64) (domain.Attempt, error)
	// LockAttempt reads the attempt and holds a row lock until the transaction ends.
	LockAttempt(ctx context.Context, id int64) (domain.Attempt, error)
	FindAttempt(ctx context.Context, userID, quizID int64) (domain.Attempt, bool, error)
	UpdateAttempt(ctx context.Context, a domain.Attempt) error

	InsertSubmissions(ctx context.Context, subs []*domain.Submission) error
	GetSubmission(ctx context.Context, id int64) (domain.Submission, error)
	UpdateSubmission(ctx context.Context, s domain.Submission) error
	ListSubmissionsByAttempt(ctx context.Context, attemptID int64) ([]domain.Submission, error)
	ListSubmissionsByUser(ctx context.Context, userID int64, limit int) ([]domain.Submission, error)
	ListPendingCoding(ctx context.Context) ([]domain.Submission, error)
}

// AttemptPublisher receives attempt state after each committed transition.
type AttemptPublisher interface {
	Publish(a domain.Attempt)
}

// Recorder collects business counters.
type Recorder interface {
	AttemptStarted()
	AttemptTransitioned(status domain.AttemptStatus)
	SubmissionGraded(mode string)
}

const (
	GradeModeAuto   = "auto"
	GradeModeManual = "manual"
)

type nopPublisher struct{}

func (nopPublisher) Publish(domain.Attempt) {}

type nopRecorder struct{}

func (nopRecorder) AttemptStarted()                           {}
func (nopRecorder) AttemptTransitioned(_ domain.AttemptStatus) {}
func (nopRecorder) SubmissionGraded(_ string)                 {}

// requireAdmin guards admin-only operations.
func requireAdmin(c domain.Caller) error {
	if !c.IsAdmin() {
		return domain.ErrAdminRequired
	}
	return nil
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/grading"
)

const (
	defaultLanguage   = "python"
	mySubmissionLimit = 100
)

type AttemptConfig struct {
	Store     Store
	Clock     func() time.Time
	Publisher AttemptPublisher
	Recorder  Recorder
}

// AttemptService drives an attempt from start to final grade.
type AttemptService struct {
	store     Store
	clock     func() time.Time
	publisher AttemptPublisher
	recorder  Recorder
}

func NewAttemptService(c AttemptConfig) *AttemptService {
	s := &AttemptService{
		store:     c.Store,
		clock:     c.Clock,
		publisher: c.Publisher,
		recorder:  c.Recorder,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	return s
}

func (s *AttemptService) now() time.Time {
	return s.clock().UTC()
}

// Start opens the caller's one and only attempt at a quiz.
func (s *AttemptService) Start(ctx context.Context, caller domain.Caller, quizID int64) (domain.Attempt, error) {
	if quizID <= 0 {
		return domain.Attempt{}, domain.NewValidationError("quiz_id", "is required")
	}

	attempt, err := s.start(ctx, caller, quizID)
	if errors.Is(err, domain.ErrDuplicateAttempt) {
		// Lost a race against a concurrent start; the retry reports the winner.
		attempt, err = s.start(ctx, caller, quizID)
	}
	if err != nil {
		return domain.Attempt{}, err
	}

	s.recorder.AttemptStarted()
	s.publisher.Publish(attempt)
	slog.InfoContext(ctx, "attempt: started", "attempt_id", attempt.ID, "user_id", attempt.UserID, "quiz_id", attempt.QuizID)
	return attempt, nil
}

func (s *AttemptService) start(ctx context.Context, caller domain.Caller, quizID int64) (domain.Attempt, error) {
	var attempt domain.Attempt
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		quiz, err := tx.GetQuiz(ctx, quizID)
		if err != nil {
			return err
		}

		existing, ok, err := tx.FindAttempt(ctx, caller.UserID, quizID)
		if err != nil {
			return err
		}
		if ok {
			return &domain.AttemptConflictError{
				AttemptID: existing.ID,
				Status:    existing.Status,
				Reason:    "attempt already exists",
			}
		}

		attempt = domain.Attempt{
			UserID:           caller.UserID,
			QuizID:           quiz.ID,
			StartTime:        s.now(),
			Status:           domain.AttemptInProgress,
			TimeLimitMinutes: quiz.TimeLimitMinutes,
		}
		return tx.InsertAttempt(ctx, &attempt)
	})
	return attempt, err
}

// Answer is one caller-supplied answer. SelectedChoiceIDs is kept raw because
// malformed selections are graded as empty rather than rejected.
type Answer struct {
	QuestionID        int64           `json:"question_id"`
	SelectedChoiceIDs json.RawMessage `json:"selected_choice_ids,omitempty"`
	Code              *string         `json:"code,omitempty"`
	Language          string          `json:"language,omitempty"`
}

type SubmitResult struct {
	Attempt        domain.Attempt
	TotalAutoScore float64
	Submissions    []domain.Submission
}

// SubmitAnswers records and auto-grades the caller's answers and closes the attempt.
// When the time limit is exceeded the attempt is expired, the answers are
// discarded, and a domain.AttemptExpiredError is returned.
func (s *AttemptService) SubmitAnswers(ctx context.Context, caller domain.Caller, attemptID int64, answers []Answer) (SubmitResult, error) {
	var (
		res     SubmitResult
		expired bool
	)

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		attempt, err := tx.LockAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if attempt.UserID != caller.UserID {
			return domain.ErrNotOwner
		}
		if attempt.Status != domain.AttemptInProgress {
			return &domain.AttemptConflictError{
				AttemptID: attempt.ID,
				Status:    attempt.Status,
				Reason:    "attempt already finalized",
			}
		}

		now := s.now()
		if attempt.Expired(now) {
			zero := 0.0
			attempt.Status = domain.AttemptTimeExpired
			attempt.FinalScore = &zero
			attempt.EndTime = &now
			if err := tx.UpdateAttempt(ctx, attempt); err != nil {
				return err
			}
			// Commit the expiry; the timeout is reported after the transaction.
			res.Attempt = attempt
			expired = true
			return nil
		}

		quiz, err := tx.GetQuiz(ctx, attempt.QuizID)
		if err != nil {
			return err
		}

		subs, total, needsManual := s.gradeAnswers(attempt, quiz, answers, now)
		if err := tx.InsertSubmissions(ctx, subs); err != nil {
			return err
		}

		final := total.InexactFloat64()
		attempt.EndTime = &now
		attempt.FinalScore = &final
		attempt.Status = domain.AttemptGraded
		if needsManual {
			attempt.Status = domain.AttemptSubmitted
		}
		if err := tx.UpdateAttempt(ctx, attempt); err != nil {
			return err
		}

		res.Attempt = attempt
		res.TotalAutoScore = final
		res.Submissions = make([]domain.Submission, 0, len(subs))
		for _, sub := range subs {
			res.Submissions = append(res.Submissions, *sub)
		}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	s.recorder.AttemptTransitioned(res.Attempt.Status)
	s.publisher.Publish(res.Attempt)

	if expired {
		slog.InfoContext(ctx, "attempt: time limit exceeded", "attempt_id", attemptID)
		return SubmitResult{}, &domain.AttemptExpiredError{AttemptID: attemptID}
	}

	for _, sub := range res.Submissions {
		if sub.Graded {
			s.recorder.SubmissionGraded(GradeModeAuto)
		}
	}
	slog.InfoContext(ctx, "attempt: answers submitted",
		"attempt_id", attemptID,
		"status", res.Attempt.Status,
		"submissions", len(res.Submissions),
		"auto_score", res.TotalAutoScore,
	)
	return res, nil
}

// gradeAnswers builds one submission per distinct question of the quiz.
// Answers to unknown questions and repeated answers are skipped.
func (s *AttemptService) gradeAnswers(attempt domain.Attempt, quiz domain.Quiz, answers []Answer, now time.Time) ([]*domain.Submission, decimal.Decimal, bool) {
	var (
		subs        = make([]*domain.Submission, 0, len(answers))
		seen        = make(map[int64]struct{}, len(answers))
		total       = decimal.Zero
		needsManual bool
	)

	attemptID := attempt.ID
	for _, ans := range answers {
		q, ok := quiz.Question(ans.QuestionID)
		if !ok {
			continue
		}
		if _, dup := seen[q.ID]; dup {
			continue
		}
		seen[q.ID] = struct{}{}

		sub := &domain.Submission{
			UserID:      attempt.UserID,
			QuizID:      attempt.QuizID,
			QuestionID:  q.ID,
			AttemptID:   &attemptID,
			SubmittedAt: now,
		}

		if q.Type.IsChoice() {
			selected := grading.ParseSelection(ans.SelectedChoiceIDs)
			score := grading.Score(q, selected)
			gradedAt := now
			sub.SelectedChoiceIDs = selected
			sub.Score = &score
			sub.Graded = true
			sub.GradedAt = &gradedAt
			total = total.Add(decimal.NewFromFloat(score))
		} else {
			sub.Code = ans.Code
			sub.Language = ans.Language
			if sub.Language == "" {
				sub.Language = defaultLanguage
			}
			needsManual = true
		}
		subs = append(subs, sub)
	}
	return subs, total, needsManual
}

type AttemptView struct {
	Attempt          domain.Attempt
	Quiz             domain.Quiz
	Submissions      []domain.Submission
	ElapsedSeconds   float64
	RemainingSeconds *float64
}

// GetAttempt returns the caller's attempt with its quiz and timing.
func (s *AttemptService) GetAttempt(ctx context.Context, caller domain.Caller, attemptID int64) (AttemptView, error) {
	var view AttemptView
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		attempt, err := tx.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if attempt.UserID != caller.UserID {
			return domain.ErrNotOwner
		}

		quiz, err := tx.GetQuiz(ctx, attempt.QuizID)
		if err != nil {
			return err
		}
		subs, err := tx.ListSubmissionsByAttempt(ctx, attempt.ID)
		if err != nil {
			return err
		}

		view = AttemptView{Attempt: attempt, Quiz: quiz, Submissions: subs}
		return nil
	})
	if err != nil {
		return AttemptView{}, err
	}

	elapsed := s.now().Sub(view.Attempt.StartTime.UTC())
	view.ElapsedSeconds = elapsed.Seconds()
	if limit := view.Attempt.TimeLimit(); limit > 0 && view.Attempt.Status == domain.AttemptInProgress {
		remaining := max(0, (limit - elapsed).Seconds())
		view.RemainingSeconds = &remaining
	}
	return view, nil
}

// ListMySubmissions returns the caller's most recent submissions, newest first.
func (s *AttemptService) ListMySubmissions(ctx context.Context, caller domain.Caller) ([]domain.Submission, error) {
	var subs []domain.Submission
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		subs, err = tx.ListSubmissionsByUser(ctx, caller.UserID, mySubmissionLimit)
		return err
	})
	return subs, err
}

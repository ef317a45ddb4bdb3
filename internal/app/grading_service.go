package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"quiz-attempt-service/internal/domain"
)

const codePreviewLen = 400

type GradingConfig struct {
	Store     Store
	Clock     func() time.Time
	Publisher AttemptPublisher
	Recorder  Recorder
}

// GradingService applies manual grades and closes attempts once nothing is left to grade.
type GradingService struct {
	store     Store
	clock     func() time.Time
	publisher AttemptPublisher
	recorder  Recorder
}

func NewGradingService(c GradingConfig) *GradingService {
	s := &GradingService{
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

type GradeInput struct {
	Score    *float64 `json:"score" validate:"required,gte=0"`
	Feedback *string  `json:"feedback"`
}

type GradeResult struct {
	Submission domain.Submission
	// Attempt is nil when the submission has no owning attempt.
	Attempt *domain.Attempt
}

// GradeSubmission records a manual grade. Grading may be repeated; the last grade wins.
func (s *GradingService) GradeSubmission(ctx context.Context, caller domain.Caller, submissionID int64, in GradeInput) (GradeResult, error) {
	if err := requireAdmin(caller); err != nil {
		return GradeResult{}, err
	}
	if err := validateInput(in); err != nil {
		return GradeResult{}, err
	}

	feedback := ""
	if in.Feedback != nil {
		feedback = *in.Feedback
	}

	var (
		res        GradeResult
		transition bool
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		sub, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}

		var attempt *domain.Attempt
		if sub.AttemptID != nil {
			a, err := tx.LockAttempt(ctx, *sub.AttemptID)
			switch {
			case errors.Is(err, domain.ErrAttemptNotFound):
			case err != nil:
				return err
			default:
				attempt = &a
				// Re-read under the attempt lock.
				if sub, err = tx.GetSubmission(ctx, submissionID); err != nil {
					return err
				}
			}
		}

		now := s.clock().UTC()
		score := *in.Score
		sub.Score = &score
		sub.Feedback = &feedback
		sub.Graded = true
		sub.GradedAt = &now
		if err := tx.UpdateSubmission(ctx, sub); err != nil {
			return err
		}
		res.Submission = sub

		if attempt == nil {
			return nil
		}

		subs, err := tx.ListSubmissionsByAttempt(ctx, attempt.ID)
		if err != nil {
			return err
		}
		total, complete := aggregate(subs)
		if complete {
			final := total.InexactFloat64()
			transition = attempt.Status != domain.AttemptGraded
			attempt.FinalScore = &final
			attempt.Status = domain.AttemptGraded
			if err := tx.UpdateAttempt(ctx, *attempt); err != nil {
				return err
			}
		}
		res.Attempt = attempt
		return nil
	})
	if err != nil {
		return GradeResult{}, err
	}

	s.recorder.SubmissionGraded(GradeModeManual)
	if res.Attempt != nil {
		if transition {
			s.recorder.AttemptTransitioned(res.Attempt.Status)
		}
		s.publisher.Publish(*res.Attempt)
	}
	slog.InfoContext(ctx, "grading: submission graded",
		"submission_id", submissionID,
		"grader_id", caller.UserID,
		"score", *in.Score,
	)
	return res, nil
}

// aggregate sums every non-null score and reports whether all submissions are graded.
func aggregate(subs []domain.Submission) (decimal.Decimal, bool) {
	total := decimal.Zero
	complete := true
	for _, sub := range subs {
		if !sub.Graded {
			complete = false
		}
		if sub.Score != nil {
			total = total.Add(decimal.NewFromFloat(*sub.Score))
		}
	}
	return total, complete
}

type PendingSubmission struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	QuizID      int64     `json:"quiz_id"`
	QuestionID  int64     `json:"question_id"`
	AttemptID   *int64    `json:"attempt_id"`
	Language    string    `json:"language"`
	CodePreview string    `json:"code_preview"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// PendingCoding lists ungraded coding submissions, oldest first.
func (s *GradingService) PendingCoding(ctx context.Context, caller domain.Caller) ([]PendingSubmission, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	var subs []domain.Submission
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		subs, err = tx.ListPendingCoding(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]PendingSubmission, 0, len(subs))
	for _, sub := range subs {
		code := ""
		if sub.Code != nil {
			code = *sub.Code
		}
		out = append(out, PendingSubmission{
			ID:          sub.ID,
			UserID:      sub.UserID,
			QuizID:      sub.QuizID,
			QuestionID:  sub.QuestionID,
			AttemptID:   sub.AttemptID,
			Language:    sub.Language,
			CodePreview: preview(code, codePreviewLen),
			SubmittedAt: sub.SubmittedAt,
		})
	}
	return out, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

type SubmissionDetail struct {
	Submission domain.Submission
	Question   domain.Question
}

// SubmissionDetail returns a submission together with the question it answers.
func (s *GradingService) SubmissionDetail(ctx context.Context, caller domain.Caller, submissionID int64) (SubmissionDetail, error) {
	if err := requireAdmin(caller); err != nil {
		return SubmissionDetail{}, err
	}

	var detail SubmissionDetail
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		sub, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		q, err := tx.GetQuestion(ctx, sub.QuestionID)
		if err != nil {
			return err
		}
		detail = SubmissionDetail{Submission: sub, Question: q}
		return nil
	})
	return detail, err
}

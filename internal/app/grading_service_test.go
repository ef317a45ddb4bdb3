package app_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

// submittedAttempt submits a correct mcq answer and one coding answer, leaving
// the attempt in the submitted state.
func submittedAttempt(t *testing.T, f *fixture) (domain.Attempt, []domain.Submission) {
	t.Helper()
	ctx := context.Background()
	quiz := f.sampleQuiz(t, nil, true)

	attempt, err := f.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)
	res, err := f.attempts.SubmitAnswers(ctx, student, attempt.ID, []app.Answer{
		choiceAnswer(quiz.Questions[0], 1),
		codeAnswer(quiz.Questions[2], "print('olleh')"),
	})
	require.NoError(t, err)
	require.Equal(t, domain.AttemptSubmitted, res.Attempt.Status)
	return res.Attempt, res.Submissions
}

func TestGradeLastSubmissionFinalizesAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	attempt, subs := submittedAttempt(t, f)
	coding := subs[1]

	updates, cancel := f.feed.Subscribe(attempt.ID)
	defer cancel()

	res, err := f.grading.GradeSubmission(ctx, admin, coding.ID, app.GradeInput{Score: floatPtr(3.5)})
	require.NoError(t, err)

	assert.True(t, res.Submission.Graded)
	require.NotNil(t, res.Submission.Feedback)
	assert.Equal(t, "", *res.Submission.Feedback)
	require.NotNil(t, res.Attempt)
	assert.Equal(t, domain.AttemptGraded, res.Attempt.Status)
	require.NotNil(t, res.Attempt.FinalScore)
	assert.Equal(t, 5.5, *res.Attempt.FinalScore)

	got := <-updates
	assert.Equal(t, domain.AttemptGraded, got.Status)
	assert.Equal(t, 1, f.rec.graded[app.GradeModeManual])

	view, err := f.attempts.GetAttempt(ctx, student, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptGraded, view.Attempt.Status)
}

func TestGradeNonLastSubmissionKeepsSubmitted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	second, err := f.quizzes.CreateQuiz(ctx, admin, app.CreateQuizInput{
		Title: "Two coding",
		Questions: []app.QuestionInput{
			{Text: "a", Type: domain.QuestionCoding, Points: 5},
			{Text: "b", Type: domain.QuestionCoding, Points: 5},
		},
	})
	require.NoError(t, err)

	twoCoding, err := f.quizzes.GetQuiz(ctx, second)
	require.NoError(t, err)
	attempt, err := f.attempts.Start(ctx, student, twoCoding.ID)
	require.NoError(t, err)
	res, err := f.attempts.SubmitAnswers(ctx, student, attempt.ID, []app.Answer{
		codeAnswer(twoCoding.Questions[0], "one"),
		codeAnswer(twoCoding.Questions[1], "two"),
	})
	require.NoError(t, err)

	graded, err := f.grading.GradeSubmission(ctx, admin, res.Submissions[0].ID, app.GradeInput{Score: floatPtr(4)})
	require.NoError(t, err)
	require.NotNil(t, graded.Attempt)
	assert.Equal(t, domain.AttemptSubmitted, graded.Attempt.Status)
	require.NotNil(t, graded.Attempt.FinalScore)
	assert.Equal(t, 0.0, *graded.Attempt.FinalScore)

	graded, err = f.grading.GradeSubmission(ctx, admin, res.Submissions[1].ID, app.GradeInput{Score: floatPtr(2.25)})
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptGraded, graded.Attempt.Status)
	assert.Equal(t, 6.25, *graded.Attempt.FinalScore)
}

func TestRegradeOverwrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, subs := submittedAttempt(t, f)
	coding := subs[1]

	_, err := f.grading.GradeSubmission(ctx, admin, coding.ID, app.GradeInput{Score: floatPtr(5)})
	require.NoError(t, err)
	feedback := "off by one"
	res, err := f.grading.GradeSubmission(ctx, admin, coding.ID, app.GradeInput{Score: floatPtr(1), Feedback: &feedback})
	require.NoError(t, err)

	assert.Equal(t, 1.0, *res.Submission.Score)
	assert.Equal(t, feedback, *res.Submission.Feedback)
	assert.Equal(t, 3.0, *res.Attempt.FinalScore)
	assert.Equal(t, domain.AttemptGraded, res.Attempt.Status)
	// Only the first grade moved the attempt.
	assert.Equal(t, []domain.AttemptStatus{domain.AttemptSubmitted, domain.AttemptGraded}, f.rec.transitions)
}

func TestGradeGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, subs := submittedAttempt(t, f)
	coding := subs[1]

	tests := map[string]struct {
		caller domain.Caller
		id     int64
		in     app.GradeInput
		want   error
	}{
		"non-admin":      {caller: student, id: coding.ID, in: app.GradeInput{Score: floatPtr(1)}, want: domain.ErrForbidden},
		"missing score":  {caller: admin, id: coding.ID, in: app.GradeInput{}, want: domain.ErrValidation},
		"negative score": {caller: admin, id: coding.ID, in: app.GradeInput{Score: floatPtr(-1)}, want: domain.ErrValidation},
		"unknown":        {caller: admin, id: 777, in: app.GradeInput{Score: floatPtr(1)}, want: domain.ErrSubmissionNotFound},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.grading.GradeSubmission(ctx, tt.caller, tt.id, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	res, err := f.grading.GradeSubmission(ctx, admin, coding.ID, app.GradeInput{Score: floatPtr(0)})
	require.NoError(t, err, "zero is a valid score")
	assert.Equal(t, 0.0, *res.Submission.Score)
}

func TestGradeValidationNamesField(t *testing.T) {
	f := newFixture(t)
	_, err := f.grading.GradeSubmission(context.Background(), admin, 1, app.GradeInput{Score: floatPtr(-2)})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "score", verr.Field)
}

func TestPendingCoding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quiz := f.sampleQuiz(t, nil, true)
	long := strings.Repeat("é", 450)

	for i, c := range []domain.Caller{student, other} {
		attempt, err := f.attempts.Start(ctx, c, quiz.ID)
		require.NoError(t, err)
		code := "short"
		if i == 1 {
			code = long
		}
		f.clock.Advance(1)
		_, err = f.attempts.SubmitAnswers(ctx, c, attempt.ID, []app.Answer{codeAnswer(quiz.Questions[2], code)})
		require.NoError(t, err)
	}

	_, err := f.grading.PendingCoding(ctx, student)
	assert.ErrorIs(t, err, domain.ErrAdminRequired)

	pending, err := f.grading.PendingCoding(ctx, admin)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, student.UserID, pending[0].UserID)
	assert.Equal(t, "short", pending[0].CodePreview)
	assert.Equal(t, strings.Repeat("é", 400)+"...", pending[1].CodePreview)

	_, err = f.grading.GradeSubmission(ctx, admin, pending[0].ID, app.GradeInput{Score: floatPtr(5)})
	require.NoError(t, err)
	pending, err = f.grading.PendingCoding(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSubmissionDetail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, subs := submittedAttempt(t, f)

	_, err := f.grading.SubmissionDetail(ctx, student, subs[1].ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	detail, err := f.grading.SubmissionDetail(ctx, admin, subs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, subs[1].ID, detail.Submission.ID)
	assert.Equal(t, subs[1].QuestionID, detail.Question.ID)
	assert.Equal(t, 5, detail.Question.Points)

	_, err = f.grading.SubmissionDetail(ctx, admin, 31337)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGradeSubmissionWithoutAttempt(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	f := newFixtureWithStore(t, store)
	quiz := f.sampleQuiz(t, nil, true)
	coding := quiz.Questions[2]

	missing := int64(999)
	code := "print('hi')"
	detached := []*domain.Submission{
		{UserID: student.UserID, QuizID: quiz.ID, QuestionID: coding.ID, Code: &code, Language: "python", SubmittedAt: f.clock.Now()},
		{UserID: student.UserID, QuizID: quiz.ID, QuestionID: coding.ID, AttemptID: &missing, Code: &code, Language: "python", SubmittedAt: f.clock.Now()},
	}
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx app.Tx) error {
		return tx.InsertSubmissions(ctx, detached)
	}))

	for _, sub := range detached {
		res, err := f.grading.GradeSubmission(ctx, admin, sub.ID, app.GradeInput{Score: floatPtr(2)})
		require.NoError(t, err)
		assert.Nil(t, res.Attempt)
		assert.True(t, res.Submission.Graded)
		require.NotNil(t, res.Submission.Score)
		assert.Equal(t, 2.0, *res.Submission.Score)
	}
	assert.Empty(t, f.rec.transitions)
	assert.Equal(t, 2, f.rec.graded[app.GradeModeManual])
}

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("body", "request body is required")
		}
		return domain.NewValidationError("body", "malformed JSON")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

// mustCaller is only used behind authenticate(true).
func mustCaller(r *http.Request) domain.Caller {
	c, _ := callerFrom(r.Context())
	return c
}

// ---- auth ----

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var in app.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	u, err := s.accounts.Register(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, struct {
		Message string      `json:"msg"`
		User    domain.User `json:"user"`
	}{"User registered successfully", u})
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var in app.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	sess, err := s.accounts.Login(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// ---- quizzes ----

type choiceView struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect *bool  `json:"is_correct,omitempty"`
}

type questionView struct {
	ID      int64               `json:"id"`
	Text    string              `json:"text"`
	Type    domain.QuestionType `json:"qtype"`
	Points  int                 `json:"points"`
	Choices []choiceView        `json:"choices"`
}

type quizView struct {
	ID               int64          `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	TimeLimitMinutes *int           `json:"time_limit_minutes"`
	IsPublished      bool           `json:"is_published"`
	CreatedAt        time.Time      `json:"created_at"`
	Questions        []questionView `json:"questions,omitempty"`
}

// newQuizView renders a quiz; answer keys are only included for admins.
func newQuizView(q domain.Quiz, withAnswers bool) quizView {
	v := quizView{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		TimeLimitMinutes: q.TimeLimitMinutes,
		IsPublished:      q.IsPublished,
		CreatedAt:        q.CreatedAt,
	}
	for _, question := range q.Questions {
		qv := questionView{
			ID:      question.ID,
			Text:    question.Text,
			Type:    question.Type,
			Points:  question.Points,
			Choices: make([]choiceView, 0, len(question.Choices)),
		}
		for _, c := range question.Choices {
			cv := choiceView{ID: c.ID, Text: c.Text}
			if withAnswers {
				correct := c.IsCorrect
				cv.IsCorrect = &correct
			}
			qv.Choices = append(qv.Choices, cv)
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}

func (s *server) createQuiz(w http.ResponseWriter, r *http.Request) {
	var in app.CreateQuizInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	id, err := s.quizzes.CreateQuiz(r.Context(), mustCaller(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, struct {
		Message string `json:"msg"`
		QuizID  int64  `json:"quiz_id"`
	}{"Quiz created successfully", id})
}

func (s *server) listQuizzes(w http.ResponseWriter, r *http.Request) {
	var caller *domain.Caller
	if c, ok := callerFrom(r.Context()); ok {
		caller = &c
	}
	quizzes, err := s.quizzes.ListQuizzes(r.Context(), caller)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]quizView, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, newQuizView(q, false))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *server) getQuiz(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "quizID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	q, err := s.quizzes.GetQuiz(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newQuizView(q, mustCaller(r).IsAdmin()))
}

// ---- attempts ----

func (s *server) startAttempt(w http.ResponseWriter, r *http.Request) {
	var in struct {
		QuizID int64 `json:"quiz_id"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	a, err := s.attempts.Start(r.Context(), mustCaller(r), in.QuizID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (s *server) getAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "attemptID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	caller := mustCaller(r)
	view, err := s.attempts.GetAttempt(r.Context(), caller, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Attempt          domain.Attempt      `json:"attempt"`
		Quiz             quizView            `json:"quiz"`
		Submissions      []domain.Submission `json:"submissions"`
		ElapsedSeconds   float64             `json:"elapsed_seconds"`
		RemainingSeconds *float64            `json:"remaining_seconds"`
	}{
		Attempt:          view.Attempt,
		Quiz:             newQuizView(view.Quiz, caller.IsAdmin()),
		Submissions:      nonNil(view.Submissions),
		ElapsedSeconds:   view.ElapsedSeconds,
		RemainingSeconds: view.RemainingSeconds,
	})
}

func (s *server) submitAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "attemptID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in struct {
		Answers []app.Answer `json:"answers"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	if in.Answers == nil {
		respondError(w, r, domain.NewValidationError("answers", "is required"))
		return
	}
	res, err := s.attempts.SubmitAnswers(r.Context(), mustCaller(r), id, in.Answers)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, struct {
		Message         string              `json:"msg"`
		Attempt         domain.Attempt      `json:"attempt"`
		TotalAutoScore  float64             `json:"total_auto_score"`
		SubmissionCount int                 `json:"submission_count"`
		Submissions     []domain.Submission `json:"submissions"`
	}{
		Message:         "Submission received successfully.",
		Attempt:         res.Attempt,
		TotalAutoScore:  res.TotalAutoScore,
		SubmissionCount: len(res.Submissions),
		Submissions:     nonNil(res.Submissions),
	})
}

func (s *server) mySubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.attempts.ListMySubmissions(r.Context(), mustCaller(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(subs))
}

// ---- admin ----

func (s *server) pendingCoding(w http.ResponseWriter, r *http.Request) {
	pending, err := s.grading.PendingCoding(r.Context(), mustCaller(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(pending))
}

func (s *server) submissionDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "submissionID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	d, err := s.grading.SubmissionDetail(r.Context(), mustCaller(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Submission domain.Submission `json:"submission"`
		Question   domain.Question   `json:"question"`
	}{d.Submission, d.Question})
}

func (s *server) gradeSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "submissionID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in app.GradeInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := s.grading.GradeSubmission(r.Context(), mustCaller(r), id, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Message    string            `json:"msg"`
		Submission domain.Submission `json:"submission"`
		Attempt    *domain.Attempt   `json:"attempt"`
	}{"Submission graded successfully", res.Submission, res.Attempt})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

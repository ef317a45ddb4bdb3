package domain

import "time"

// Role is the access level of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Caller is the verified identity of whoever invokes an operation.
type Caller struct {
	UserID int64
	Role   Role
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// QuestionType selects how a question is graded.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "mcq"
	QuestionMultiSelect  QuestionType = "msq"
	QuestionCoding       QuestionType = "coding"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultiSelect, QuestionCoding:
		return true
	}
	return false
}

// IsChoice reports whether answers to this type are auto-graded from selected choices.
func (t QuestionType) IsChoice() bool {
	return t == QuestionSingleChoice || t == QuestionMultiSelect
}

// Choice is a selectable option of a choice question.
type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// Question belongs to a quiz. Coding questions carry no choices.
type Question struct {
	ID      int64        `json:"id"`
	QuizID  int64        `json:"quiz_id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"qtype"`
	Points  int          `json:"points"`
	Choices []Choice     `json:"choices"`
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	TimeLimitMinutes *int       `json:"time_limit_minutes"`
	IsPublished      bool       `json:"is_published"`
	CreatedAt        time.Time  `json:"created_at"`
	Questions        []Question `json:"questions"`
}

// Question returns the question with the given id.
func (q Quiz) Question(id int64) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	AttemptInProgress  AttemptStatus = "in_progress"
	AttemptSubmitted   AttemptStatus = "submitted"
	AttemptGraded      AttemptStatus = "graded"
	AttemptTimeExpired AttemptStatus = "time_expired"
)

// Attempt is one user's single timed run through one quiz.
type Attempt struct {
	ID               int64         `json:"id"`
	UserID           int64         `json:"user_id"`
	QuizID           int64         `json:"quiz_id"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          *time.Time    `json:"end_time"`
	Status           AttemptStatus `json:"status"`
	FinalScore       *float64      `json:"final_score"`
	TimeLimitMinutes *int          `json:"time_limit_minutes"`
}

// TimeLimit returns the recorded limit, or zero when the attempt is untimed.
func (a Attempt) TimeLimit() time.Duration {
	if a.TimeLimitMinutes == nil || *a.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(*a.TimeLimitMinutes) * time.Minute
}

// Expired reports whether now is past the attempt's time limit.
func (a Attempt) Expired(now time.Time) bool {
	limit := a.TimeLimit()
	if limit == 0 {
		return false
	}
	return now.UTC().Sub(a.StartTime.UTC()) > limit
}

// Submission is one answer to one question.
type Submission struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	QuizID            int64      `json:"quiz_id"`
	QuestionID        int64      `json:"question_id"`
	AttemptID         *int64     `json:"attempt_id"`
	SelectedChoiceIDs []int64    `json:"selected_choice_ids,omitempty"`
	Code              *string    `json:"code,omitempty"`
	Language          string     `json:"language,omitempty"`
	Score             *float64   `json:"score"`
	Graded            bool       `json:"graded"`
	Feedback          *string    `json:"feedback"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	GradedAt          *time.Time `json:"graded_at"`
}

package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. Transactions run one at a
// time and a failed transaction restores the state it started from.
type Store struct {
	mu   sync.Mutex
	data *state
}

type state struct {
	seq         int64
	users       map[int64]domain.User
	quizzes     map[int64]domain.Quiz
	questions   map[int64]int64 // question id -> quiz id
	attempts    map[int64]domain.Attempt
	attemptKeys map[attemptKey]int64
	submissions map[int64]domain.Submission
}

type attemptKey struct {
	userID, quizID int64
}

func NewStore() *Store {
	return &Store{data: &state{
		users:       make(map[int64]domain.User),
		quizzes:     make(map[int64]domain.Quiz),
		questions:   make(map[int64]int64),
		attempts:    make(map[int64]domain.Attempt),
		attemptKeys: make(map[attemptKey]int64),
		submissions: make(map[int64]domain.Submission),
	}}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(ctx, &tx{s: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// Values stored in the maps are never mutated in place, so copying the maps is
// enough to snapshot.
func (st *state) clone() *state {
	return &state{
		seq:         st.seq,
		users:       cloneMap(st.users),
		quizzes:     cloneMap(st.quizzes),
		questions:   cloneMap(st.questions),
		attempts:    cloneMap(st.attempts),
		attemptKeys: cloneMap(st.attemptKeys),
		submissions: cloneMap(st.submissions),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type tx struct {
	s *state
}

func (t *tx) nextID() int64 {
	t.s.seq++
	return t.s.seq
}

func (t *tx) InsertUser(_ context.Context, u *domain.User) error {
	u.ID = t.nextID()
	t.s.users[u.ID] = *u
	return nil
}

func (t *tx) GetUser(_ context.Context, id int64) (domain.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (t *tx) GetUserByUsername(_ context.Context, username string) (domain.User, error) {
	for _, u := range t.s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (t *tx) UserExists(_ context.Context, username, email string) (bool, error) {
	for _, u := range t.s.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertQuiz(_ context.Context, q *domain.Quiz) error {
	q.ID = t.nextID()
	for i := range q.Questions {
		question := &q.Questions[i]
		question.ID = t.nextID()
		question.QuizID = q.ID
		for j := range question.Choices {
			question.Choices[j].ID = t.nextID()
			question.Choices[j].QuestionID = question.ID
		}
		t.s.questions[question.ID] = q.ID
	}
	t.s.quizzes[q.ID] = cloneQuiz(*q)
	return nil
}

func (t *tx) GetQuiz(_ context.Context, id int64) (domain.Quiz, error) {
	q, ok := t.s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(q), nil
}

func (t *tx) ListQuizzes(_ context.Context, publishedOnly bool) ([]domain.Quiz, error) {
	out := make([]domain.Quiz, 0, len(t.s.quizzes))
	for _, q := range t.s.quizzes {
		if publishedOnly && !q.IsPublished {
			continue
		}
		q.Questions = nil
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *tx) GetQuestion(_ context.Context, id int64) (domain.Question, error) {
	quizID, ok := t.s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	q, ok := t.s.quizzes[quizID].Question(id)
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	q.Choices = slices.Clone(q.Choices)
	return q, nil
}

func (t *tx) InsertAttempt(_ context.Context, a *domain.Attempt) error {
	key := attemptKey{userID: a.UserID, quizID: a.QuizID}
	if _, ok := t.s.attemptKeys[key]; ok {
		return domain.ErrDuplicateAttempt
	}
	a.ID = t.nextID()
	t.s.attempts[a.ID] = *a
	t.s.attemptKeys[key] = a.ID
	return nil
}

func (t *tx) GetAttempt(_ context.Context, id int64) (domain.Attempt, error) {
	a, ok := t.s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return a, nil
}

// LockAttempt is GetAttempt; the store-wide transaction lock already serializes access.
func (t *tx) LockAttempt(ctx context.Context, id int64) (domain.Attempt, error) {
	return t.GetAttempt(ctx, id)
}

func (t *tx) FindAttempt(_ context.Context, userID, quizID int64) (domain.Attempt, bool, error) {
	id, ok := t.s.attemptKeys[attemptKey{userID: userID, quizID: quizID}]
	if !ok {
		return domain.Attempt{}, false, nil
	}
	return t.s.attempts[id], true, nil
}

func (t *tx) UpdateAttempt(_ context.Context, a domain.Attempt) error {
	if _, ok := t.s.attempts[a.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	t.s.attempts[a.ID] = a
	return nil
}

func (t *tx) InsertSubmissions(_ context.Context, subs []*domain.Submission) error {
	for _, sub := range subs {
		sub.ID = t.nextID()
		stored := *sub
		stored.SelectedChoiceIDs = slices.Clone(sub.SelectedChoiceIDs)
		t.s.submissions[sub.ID] = stored
	}
	return nil
}

func (t *tx) GetSubmission(_ context.Context, id int64) (domain.Submission, error) {
	sub, ok := t.s.submissions[id]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, nil
}

func (t *tx) UpdateSubmission(_ context.Context, sub domain.Submission) error {
	if _, ok := t.s.submissions[sub.ID]; !ok {
		return domain.ErrSubmissionNotFound
	}
	sub.SelectedChoiceIDs = slices.Clone(sub.SelectedChoiceIDs)
	t.s.submissions[sub.ID] = sub
	return nil
}

func (t *tx) ListSubmissionsByAttempt(_ context.Context, attemptID int64) ([]domain.Submission, error) {
	return t.filterSubmissions(func(s domain.Submission) bool {
		return s.AttemptID != nil && *s.AttemptID == attemptID
	}, false), nil
}

func (t *tx) ListSubmissionsByUser(_ context.Context, userID int64, limit int) ([]domain.Submission, error) {
	out := t.filterSubmissions(func(s domain.Submission) bool {
		return s.UserID == userID
	}, true)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) ListPendingCoding(_ context.Context) ([]domain.Submission, error) {
	return t.filterSubmissions(func(s domain.Submission) bool {
		return !s.Graded && s.Code != nil
	}, false), nil
}

// filterSubmissions returns matching submissions ordered by submission time, then id.
func (t *tx) filterSubmissions(keep func(domain.Submission) bool, newestFirst bool) []domain.Submission {
	out := make([]domain.Submission, 0)
	for _, sub := range t.s.submissions {
		if keep(sub) {
			sub.SelectedChoiceIDs = slices.Clone(sub.SelectedChoiceIDs)
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if newestFirst {
			a, b = b, a
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	q.Questions = slices.Clone(q.Questions)
	for i := range q.Questions {
		q.Questions[i].Choices = slices.Clone(q.Questions[i].Choices)
	}
	return q
}

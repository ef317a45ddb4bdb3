package grading

import (
	"github.com/shopspring/decimal"

	"quiz-attempt-service/internal/domain"
)

// scorePlaces is the precision partial-credit scores are rounded to, ties to even.
const scorePlaces = 3

// Result is the outcome of grading one answer.
type Result struct {
	Score       float64
	NeedsManual bool
}

// Grade routes by question type. Coding questions are never auto-scored.
func Grade(q domain.Question, selected []int64) Result {
	switch q.Type {
	case domain.QuestionSingleChoice:
		return Result{Score: scoreSingle(q, selected)}
	case domain.QuestionMultiSelect:
		return Result{Score: scoreMulti(q, selected)}
	default:
		return Result{NeedsManual: true}
	}
}

// Score returns the auto-graded points for selected on q, in [0, q.Points].
func Score(q domain.Question, selected []int64) float64 {
	return Grade(q, selected).Score
}

func scoreSingle(q domain.Question, selected []int64) float64 {
	if setEqual(toSet(selected), correctSet(q)) {
		return float64(q.Points)
	}
	return 0
}

func scoreMulti(q domain.Question, selected []int64) float64 {
	chosen := toSet(selected)
	correct := correctSet(q)

	if len(correct) == 0 {
		if len(chosen) == 0 {
			return float64(q.Points)
		}
		return 0
	}

	var correctSelected, wrongSelected int64
	for id := range chosen {
		if _, ok := correct[id]; ok {
			correctSelected++
		} else {
			wrongSelected++
		}
	}

	totalChoices := int64(len(q.Choices))
	if totalChoices == 0 {
		totalChoices = 1
	}

	raw := decimal.NewFromInt(correctSelected).Div(decimal.NewFromInt(int64(len(correct)))).
		Sub(decimal.NewFromInt(wrongSelected).Div(decimal.NewFromInt(totalChoices)))
	if raw.IsNegative() {
		raw = decimal.Zero
	}
	return raw.Mul(decimal.NewFromInt(int64(q.Points))).RoundBank(scorePlaces).InexactFloat64()
}

func correctSet(q domain.Question) map[int64]struct{} {
	set := make(map[int64]struct{}, len(q.Choices))
	for _, c := range q.Choices {
		if c.IsCorrect {
			set[c.ID] = struct{}{}
		}
	}
	return set
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func setEqual(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

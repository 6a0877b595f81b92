// Package scoring grades a submission against an answer key.
package scoring

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-rewards/internal/model"
)

// Result is the outcome of grading one submission.
type Result struct {
	Score          float64 `json:"score"`
	CorrectCount   int     `json:"correct_count"`
	TotalQuestions int     `json:"total_questions"`
}

// Calculate matches every submitted answer to the key by question ID and
// compares the string forms of both values. A question counts at most once.
// Score is correct/total*100 rounded to two decimals.
func Calculate(answers []model.SubmittedAnswer, key []model.AnswerKeyEntry) (Result, error) {
	if len(key) == 0 {
		return Result{}, fmt.Errorf("%w: answer key is empty", model.ErrValidation)
	}

	correctByID := make(map[string]string, len(key))
	for _, k := range key {
		correctByID[k.QuestionID] = stringify(k.CorrectAnswer)
	}

	seen := make(map[string]struct{}, len(answers))
	correct := 0
	for _, a := range answers {
		want, ok := correctByID[a.QuestionID]
		if !ok {
			continue
		}
		if _, dup := seen[a.QuestionID]; dup {
			continue
		}
		seen[a.QuestionID] = struct{}{}
		if stringify(a.Answer) == want {
			correct++
		}
	}

	pct := decimal.NewFromInt(int64(correct)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(len(key)))).
		Round(2)
	score, _ := pct.Float64()

	return Result{
		Score:          score,
		CorrectCount:   correct,
		TotalQuestions: len(key),
	}, nil
}

// IsWinner reports whether score meets the passing threshold.
func IsWinner(score, passingScore float64) bool {
	return score >= passingScore
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

package scoring

import (
	"testing"

	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(pairs ...any) []model.AnswerKeyEntry {
	out := make([]model.AnswerKeyEntry, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, model.AnswerKeyEntry{QuestionID: pairs[i].(string), CorrectAnswer: pairs[i+1]})
	}
	return out
}

func answers(pairs ...any) []model.SubmittedAnswer {
	out := make([]model.SubmittedAnswer, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, model.SubmittedAnswer{QuestionID: pairs[i].(string), Answer: pairs[i+1]})
	}
	return out
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name        string
		answers     []model.SubmittedAnswer
		key         []model.AnswerKeyEntry
		wantScore   float64
		wantCorrect int
	}{
		{
			name:        "all correct",
			answers:     answers("q1", "a", "q2", "b"),
			key:         key("q1", "a", "q2", "b"),
			wantScore:   100,
			wantCorrect: 2,
		},
		{
			name:        "one of three rounds to two decimals",
			answers:     answers("q1", "a", "q2", "x", "q3", "x"),
			key:         key("q1", "a", "q2", "b", "q3", "c"),
			wantScore:   33.33,
			wantCorrect: 1,
		},
		{
			name:        "two of three",
			answers:     answers("q1", "a", "q2", "b", "q3", "x"),
			key:         key("q1", "a", "q2", "b", "q3", "c"),
			wantScore:   66.67,
			wantCorrect: 2,
		},
		{
			name:        "stringified comparison across types",
			answers:     answers("q1", "4", "q2", true),
			key:         key("q1", 4, "q2", "true"),
			wantScore:   100,
			wantCorrect: 2,
		},
		{
			name:        "unknown question ignored",
			answers:     answers("zz", "a", "q1", "a"),
			key:         key("q1", "a", "q2", "b"),
			wantScore:   50,
			wantCorrect: 1,
		},
		{
			name:        "duplicate submission counted once",
			answers:     answers("q1", "a", "q1", "a"),
			key:         key("q1", "a", "q2", "b"),
			wantScore:   50,
			wantCorrect: 1,
		},
		{
			name:        "no answers",
			answers:     nil,
			key:         key("q1", "a"),
			wantScore:   0,
			wantCorrect: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(tt.answers, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, tt.wantCorrect, got.CorrectCount)
			assert.Equal(t, len(tt.key), got.TotalQuestions)
		})
	}
}

func TestCalculateEmptyKey(t *testing.T) {
	_, err := Calculate(answers("q1", "a"), nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestCalculateIsDeterministic(t *testing.T) {
	a := answers("q1", "a", "q2", "c", "q3", "c")
	k := key("q1", "a", "q2", "b", "q3", "c")

	first, err := Calculate(a, k)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Calculate(a, k)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestIsWinner(t *testing.T) {
	assert.True(t, IsWinner(70, 70))
	assert.True(t, IsWinner(90, 70))
	assert.False(t, IsWinner(69.99, 70))
}

package grading

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcsh-server/models"
)

func str(s string) *string { return &s }
func boolp(b bool) *bool   { return &b }

func TestGrade(t *testing.T) {
	mc := models.Question{Type: models.MultipleChoice, CorrectAnswer: str("B"), Options: []string{"A", "B"}}
	tf := models.Question{Type: models.TrueFalse, CorrectAnswer: str("true")}
	essay := models.Question{Type: models.Essay, CorrectAnswer: str("anything")}

	tests := []struct {
		name     string
		q        models.Question
		selected *string
		want     *bool
	}{
		{"mc correct", mc, str("B"), boolp(true)},
		{"mc wrong", mc, str("A"), boolp(false)},
		{"mc case sensitive", mc, str("b"), boolp(false)},
		{"mc blank", mc, nil, nil},
		{"mc empty", mc, str(""), nil},
		{"tf correct", tf, str("true"), boolp(true)},
		{"tf padded and upper case", tf, str(" TRUE "), boolp(false)},
		{"tf capitalised", tf, str("True"), boolp(false)},
		{"tf wrong", tf, str("false"), boolp(false)},
		{"tf garbage", tf, str("yes"), boolp(false)},
		{"essay ungraded", essay, str("anything"), nil},
		{"no key", models.Question{Type: models.MultipleChoice}, str("A"), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Grade(tc.q, tc.selected))
		})
	}
}

func TestNormalizeBool(t *testing.T) {
	v, ok := NormalizeBool(" False ")
	require.True(t, ok)
	require.Equal(t, "false", v)
	_, ok = NormalizeBool("yes")
	require.False(t, ok)
}

func TestScoreHalf(t *testing.T) {
	qs := []models.Question{{ID: 1, Points: 5}, {ID: 2, Points: 5}}
	as := []models.Answer{{QuestionID: 1, IsCorrect: boolp(true)}}
	r := Score(qs, as)
	require.Equal(t, 5.0, r.Earned)
	require.Equal(t, 10.0, r.Total)
	require.Equal(t, 50.0, r.Score)
}

func TestScoreZeroPoints(t *testing.T) {
	r := Score([]models.Question{{ID: 1, Points: 0}}, []models.Answer{{QuestionID: 1, IsCorrect: boolp(true)}})
	require.Equal(t, 0.0, r.Score)

	r = Score(nil, nil)
	require.Equal(t, 0.0, r.Score)
}

func TestScoreIgnoresUngradedAndWrong(t *testing.T) {
	qs := []models.Question{{ID: 1, Points: 2}, {ID: 2, Points: 3}, {ID: 3, Points: 5}}
	as := []models.Answer{
		{QuestionID: 1, IsCorrect: boolp(false)},
		{QuestionID: 2, IsCorrect: nil},
		{QuestionID: 3, IsCorrect: boolp(true)},
		{QuestionID: 99, IsCorrect: boolp(true)},
	}
	r := Score(qs, as)
	require.Equal(t, 5.0, r.Earned)
	require.Equal(t, 50.0, r.Score)
}

func TestScoreOrderIndependent(t *testing.T) {
	qs := []models.Question{{ID: 1, Points: 1}, {ID: 2, Points: 2}, {ID: 3, Points: 3}, {ID: 4, Points: 4}}
	as := []models.Answer{
		{QuestionID: 1, IsCorrect: boolp(true)},
		{QuestionID: 2, IsCorrect: boolp(false)},
		{QuestionID: 3, IsCorrect: boolp(true)},
		{QuestionID: 4},
	}
	want := Score(qs, as)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		perm := append([]models.Answer(nil), as...)
		r.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
		require.Equal(t, want, Score(qs, perm))
	}
}

func TestPassed(t *testing.T) {
	require.Nil(t, Passed(90, nil))
	pm := 50.0
	require.True(t, *Passed(50, &pm))
	require.False(t, *Passed(49.9, &pm))
	zero := 0.0
	require.True(t, *Passed(0, &zero))
}

// Package grading marks answers and computes attempt scores. It has no
// side effects.
package grading

import (
	"strings"

	"mcsh-server/models"
)

// Result is the score of one attempt.
type Result struct {
	Earned float64
	Total  float64
	Score  float64 // percentage, 0 when Total is 0
}

// Grade returns whether selected is correct for q. The result is nil when
// q is not auto-gradable, has no stored answer, or nothing was selected.
func Grade(q models.Question, selected *string) *bool {
	if !q.Type.AutoGradable() || q.CorrectAnswer == nil || selected == nil || *selected == "" {
		return nil
	}
	ok := *selected == *q.CorrectAnswer
	return &ok
}

// NormalizeBool parses a true/false answer key. Questions store the
// normalised form; selections are compared to it verbatim.
func NormalizeBool(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return "true", true
	case "false":
		return "false", true
	}
	return "", false
}

// Score sums points of every question as the total and points of questions
// whose answer is marked correct as earned.
func Score(questions []models.Question, answers []models.Answer) Result {
	correct := make(map[int64]bool, len(answers))
	for _, a := range answers {
		if a.IsCorrect != nil && *a.IsCorrect {
			correct[a.QuestionID] = true
		}
	}
	var r Result
	for _, q := range questions {
		r.Total += q.Points
		if correct[q.ID] {
			r.Earned += q.Points
		}
	}
	if r.Total > 0 {
		r.Score = r.Earned / r.Total * 100
	}
	return r
}

// Passed compares score to passmark. It is nil when the exam has no pass mark.
func Passed(score float64, passmark *float64) *bool {
	if passmark == nil {
		return nil
	}
	p := score >= *passmark
	return &p
}

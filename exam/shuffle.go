package exam

import (
	"math/rand"
	"slices"

	"mcsh-server/models"
	"mcsh-server/utils"
)

// orderFor returns the questions in the order a student sees them. When the
// exam shuffles, each student gets a stable permutation seeded by the exam
// and student ids, so reloading the exam never reorders it.
func orderFor(e models.Exam, studentID int64, qs []models.Question) []models.Question {
	out := slices.Clone(qs)
	if !e.ShuffleQuestions || len(out) < 2 {
		return out
	}
	r := rand.New(rand.NewSource(utils.Seed("%d:%d", e.ID, studentID)))
	r.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

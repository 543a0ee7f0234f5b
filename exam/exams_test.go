package exam

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mcsh-server/apperr"
	"mcsh-server/models"
	"mcsh-server/utils"
)

func TestCreateExamPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := CreateInput{Title: "  Algebra  ", SubjectID: 10, GradeID: 20, Duration: 45}

	e, err := f.svc.CreateExam(ctx, teacher, in)
	require.NoError(t, err)
	require.Equal(t, "Algebra", e.Title)
	require.Equal(t, models.ExamDraft, e.Status)
	require.Equal(t, teacher.ID, e.CreatedByID)
	require.True(t, e.AllowReview)
	require.False(t, e.ShuffleQuestions)

	_, err = f.svc.CreateExam(ctx, stranger, in)
	requireCode(t, err, apperr.Forbidden)
	_, err = f.svc.CreateExam(ctx, student, in)
	requireCode(t, err, apperr.Forbidden)
	_, err = f.svc.CreateExam(ctx, anonymous, in)
	requireCode(t, err, apperr.Unauthorized)

	_, err = f.svc.CreateExam(ctx, admin, CreateInput{Title: "X", SubjectID: 99, GradeID: 20, Duration: 5})
	requireCode(t, err, apperr.NotFound)
}

func TestValidateExam(t *testing.T) {
	cases := map[string]models.Exam{
		"title":    {Duration: 10},
		"duration": {Title: "x"},
		"passmark": {Title: "x", Duration: 10, Passmark: utils.Ptr(120.0)},
	}
	for field, e := range cases {
		err := ValidateExam(e)
		require.NotNil(t, err, field)
		require.Equal(t, apperr.Validation, err.Code)
		require.Equal(t, []string{field}, err.Path)
	}
	require.Nil(t, ValidateExam(models.Exam{Title: "x", Duration: 10, Passmark: utils.Ptr(0.0)}))
}

func TestExamStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.CreateExam(ctx, teacher, CreateInput{Title: "Geometry", SubjectID: 10, GradeID: 20, Duration: 20})
	require.NoError(t, err)

	_, err = f.svc.PublishExam(ctx, teacher, e.ID)
	requireCode(t, err, apperr.Validation)

	_, err = f.svc.CreateQuestion(ctx, teacher, e.ID, mc(1, "A", 1))
	require.NoError(t, err)
	_, err = f.svc.PublishExam(ctx, stranger, e.ID)
	requireCode(t, err, apperr.Forbidden)
	pub, err := f.svc.PublishExam(ctx, teacher, e.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExamPublished, pub.Status)
	_, err = f.svc.PublishExam(ctx, teacher, e.ID)
	requireCode(t, err, apperr.BusinessRule)

	// Back to draft is fine until someone starts.
	draft := models.ExamDraft
	_, err = f.svc.UpdateExam(ctx, teacher, e.ID, UpdateInput{Status: &draft})
	require.NoError(t, err)
	_, err = f.svc.PublishExam(ctx, teacher, e.ID)
	require.NoError(t, err)
	_, err = f.svc.StartAttempt(ctx, student, e.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateExam(ctx, teacher, e.ID, UpdateInput{Status: &draft})
	requireCode(t, err, apperr.BusinessRule)

	archived, err := f.svc.ArchiveExam(ctx, teacher, e.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExamArchived, archived.Status)
	_, err = f.svc.PublishExam(ctx, teacher, e.ID)
	requireCode(t, err, apperr.BusinessRule)
}

func TestExamFrozenOnceAttempted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, _ := f.publishedExam(t, mc(1, "A", 1))
	_, err := f.svc.StartAttempt(ctx, student, e.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateExam(ctx, teacher, e.ID, UpdateInput{Duration: utils.Ptr(60)})
	requireCode(t, err, apperr.BusinessRule)
	_, err = f.svc.UpdateExam(ctx, teacher, e.ID, UpdateInput{Passmark: utils.Ptr(70.0)})
	requireCode(t, err, apperr.BusinessRule)

	updated, err := f.svc.UpdateExam(ctx, teacher, e.ID, UpdateInput{Title: utils.Ptr("Fractions (v2)"), ShowResults: utils.Ptr(false)})
	require.NoError(t, err)
	require.Equal(t, "Fractions (v2)", updated.Title)
	require.False(t, updated.ShowResults)

	err = f.svc.DeleteExam(ctx, teacher, e.ID)
	requireCode(t, err, apperr.BusinessRule)
}

func TestUpdateExamMoveChecksNewSubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.CreateExam(ctx, teacher, CreateInput{Title: "Ratios", SubjectID: 10, GradeID: 20, Duration: 20})
	require.NoError(t, err)

	_, err = f.svc.UpdateExam(ctx, teacher, e.ID, UpdateInput{SubjectID: utils.Ptr(int64(11)), GradeID: utils.Ptr(int64(21))})
	requireCode(t, err, apperr.Forbidden)

	moved, err := f.svc.UpdateExam(ctx, admin, e.ID, UpdateInput{SubjectID: utils.Ptr(int64(11)), GradeID: utils.Ptr(int64(21))})
	require.NoError(t, err)
	require.Equal(t, int64(11), moved.SubjectID)
}

func TestDeleteExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.CreateExam(ctx, teacher, CreateInput{Title: "Temp", SubjectID: 10, GradeID: 20, Duration: 5})
	require.NoError(t, err)

	err = f.svc.DeleteExam(ctx, stranger, e.ID)
	requireCode(t, err, apperr.Forbidden)
	require.NoError(t, f.svc.DeleteExam(ctx, teacher, e.ID))
	_, err = f.svc.GetExam(ctx, teacher, e.ID)
	requireCode(t, err, apperr.NotFound)
}

func TestListExamsScopedByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pub, _ := f.publishedExam(t, mc(1, "A", 1))
	_, err := f.svc.CreateExam(ctx, teacher, CreateInput{Title: "Draft", SubjectID: 10, GradeID: 20, Duration: 5})
	require.NoError(t, err)

	page, err := f.svc.ListExams(ctx, teacher, models.ExamFilter{}, models.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	page, err = f.svc.ListExams(ctx, student, models.ExamFilter{}, models.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, pub.ID, page.Items[0].ID)

	page, err = f.svc.ListExams(ctx, stranger, models.ExamFilter{}, models.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, page.Items)

	_, err = f.svc.ListExams(ctx, anonymous, models.ExamFilter{}, models.ListOptions{})
	requireCode(t, err, apperr.Unauthorized)

	_, err = f.svc.GetExam(ctx, outsider, pub.ID)
	requireCode(t, err, apperr.Forbidden)
}

func TestValidateQuestion(t *testing.T) {
	tf := models.TrueFalse
	cases := []struct {
		name  string
		q     models.Question
		field string
	}{
		{"no text", models.Question{Type: models.Essay, QuestionNumber: 1}, "text"},
		{"bad type", models.Question{Text: "x", Type: "MATCHING", QuestionNumber: 1}, "type"},
		{"bad number", models.Question{Text: "x", Type: models.Essay}, "questionNumber"},
		{"negative points", models.Question{Text: "x", Type: models.Essay, QuestionNumber: 1, Points: -1}, "points"},
		{"one option", models.Question{Text: "x", Type: models.MultipleChoice, QuestionNumber: 1,
			Options: []string{"A"}, CorrectAnswer: utils.Ptr("A")}, "options"},
		{"duplicate option", models.Question{Text: "x", Type: models.MultipleChoice, QuestionNumber: 1,
			Options: []string{"A", " A"}, CorrectAnswer: utils.Ptr("A")}, "options"},
		{"answer not an option", models.Question{Text: "x", Type: models.MultipleChoice, QuestionNumber: 1,
			Options: []string{"A", "B"}, CorrectAnswer: utils.Ptr("C")}, "correctAnswer"},
		{"true false garbage", models.Question{Text: "x", Type: tf, QuestionNumber: 1, CorrectAnswer: utils.Ptr("yes")}, "correctAnswer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQuestion(&tc.q)
			require.NotNil(t, err)
			require.Equal(t, apperr.Validation, err.Code)
			require.Equal(t, []string{tc.field}, err.Path)
		})
	}

	q := models.Question{Text: "x", Type: tf, QuestionNumber: 1, CorrectAnswer: utils.Ptr(" TRUE ")}
	require.Nil(t, ValidateQuestion(&q))
	require.Equal(t, "true", *q.CorrectAnswer)
	require.Equal(t, []string{"true", "false"}, q.Options)

	q = models.Question{Text: "x", Type: models.ShortAnswer, QuestionNumber: 1, Options: []string{"junk"}}
	require.Nil(t, ValidateQuestion(&q))
	require.Nil(t, q.Options)
}

func TestQuestionsOnlyChangeWhileDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.CreateExam(ctx, teacher, CreateInput{Title: "Shapes", SubjectID: 10, GradeID: 20, Duration: 20})
	require.NoError(t, err)

	typ := models.Essay
	auto, err := f.svc.CreateQuestion(ctx, teacher, e.ID, QuestionInput{Text: utils.Ptr("Describe a cube"), Type: &typ})
	require.NoError(t, err)
	require.Equal(t, 1, auto.QuestionNumber)
	require.Equal(t, 1.0, auto.Points)
	next, err := f.svc.CreateQuestion(ctx, teacher, e.ID, QuestionInput{Text: utils.Ptr("Describe a cone"), Type: &typ})
	require.NoError(t, err)
	require.Equal(t, 2, next.QuestionNumber)

	_, err = f.svc.CreateQuestion(ctx, teacher, e.ID, mc(2, "A", 1))
	requireCode(t, err, apperr.AlreadyExists)
	_, err = f.svc.CreateQuestion(ctx, stranger, e.ID, mc(3, "A", 1))
	requireCode(t, err, apperr.Forbidden)
	_, err = f.svc.CreateQuestion(ctx, student, e.ID, mc(3, "A", 1))
	requireCode(t, err, apperr.Forbidden)

	updated, err := f.svc.UpdateQuestion(ctx, teacher, next.ID, QuestionInput{Points: utils.Ptr(4.0)})
	require.NoError(t, err)
	require.Equal(t, 4.0, updated.Points)
	require.Equal(t, "Describe a cone", updated.Text)

	_, err = f.svc.PublishExam(ctx, teacher, e.ID)
	require.NoError(t, err)
	_, err = f.svc.CreateQuestion(ctx, teacher, e.ID, mc(3, "A", 1))
	requireCode(t, err, apperr.BusinessRule)
	_, err = f.svc.UpdateQuestion(ctx, teacher, next.ID, QuestionInput{Points: utils.Ptr(1.0)})
	requireCode(t, err, apperr.BusinessRule)
	requireCode(t, f.svc.DeleteQuestion(ctx, teacher, next.ID), apperr.BusinessRule)
}

func TestStudentQuestionView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, qs := f.publishedExam(t, mc(1, "A", 1), mc(2, "B", 1))

	_, err := f.svc.ExamQuestions(ctx, student, e.ID)
	requireCode(t, err, apperr.Forbidden)

	att, err := f.svc.StartAttempt(ctx, student, e.ID)
	require.NoError(t, err)
	seen, err := f.svc.ExamQuestions(ctx, student, e.ID)
	require.NoError(t, err)
	require.Len(t, seen, 2)
	for _, q := range seen {
		require.Nil(t, q.CorrectAnswer)
	}
	one, err := f.svc.GetQuestion(ctx, student, qs[0].ID)
	require.NoError(t, err)
	require.Nil(t, one.CorrectAnswer)

	teacherView, err := f.svc.ExamQuestions(ctx, teacher, e.ID)
	require.NoError(t, err)
	require.Equal(t, "A", *teacherView[0].CorrectAnswer)

	_, err = f.svc.SubmitExam(ctx, student, SubmitExamInput{AttemptID: att.ID})
	require.NoError(t, err)
	seen, err = f.svc.ExamQuestions(ctx, student, e.ID)
	require.NoError(t, err)
	require.NotNil(t, seen[0].CorrectAnswer)
}

func TestShuffledOrderIsStablePerStudent(t *testing.T) {
	qs := make([]models.Question, 12)
	for i := range qs {
		qs[i] = models.Question{ID: int64(i + 1), QuestionNumber: i + 1}
	}
	e := models.Exam{ID: 7, ShuffleQuestions: true}

	a := orderFor(e, student.ID, qs)
	require.Equal(t, a, orderFor(e, student.ID, qs))
	require.ElementsMatch(t, qs, a)
	require.Equal(t, int64(1), qs[0].ID, "input must not be reordered")

	e.ShuffleQuestions = false
	require.Equal(t, qs, orderFor(e, student.ID, qs))
}

package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcsh-server/apperr"
	"mcsh-server/models"
)

func TestWhereBuilder(t *testing.T) {
	var w where
	require.Equal(t, "TRUE", w.sql())
	w.add("a = ?", 1)
	w.add("(b ILIKE ? OR c ILIKE ?)", "x", "x")
	w.add("d IS NULL")
	require.Equal(t, "a = $1 AND (b ILIKE $2 OR c ILIKE $3) AND d IS NULL", w.sql())
	require.Len(t, w.args, 3)
}

func TestPrefix(t *testing.T) {
	require.Equal(t, "e.id, e.title", prefix("e", "id, title"))
}

// testDB connects to MCSH_TEST_DATABASE_URL; tests are skipped without it.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("MCSH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MCSH_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	d, err := InitDB(ctx, url, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(d.Close)
	require.NoError(t, d.CreateSchema(ctx))
	return d
}

func seed(t *testing.T, d *DB) (models.User, models.User, models.Exam, []models.Question) {
	t.Helper()
	ctx := context.Background()
	tag := uuid.NewString()[:8]

	teacher, err := d.CreateUser(ctx, models.User{FirstName: "T", LastName: tag, Email: "t-" + tag + "@school.test",
		PasswordHash: "x", Role: models.RoleTeacher, Status: models.UserActive})
	require.NoError(t, err)
	student, err := d.CreateUser(ctx, models.User{FirstName: "S", LastName: tag, Email: "s-" + tag + "@school.test",
		PasswordHash: "x", Role: models.RoleStudent, Status: models.UserActive})
	require.NoError(t, err)
	grade, err := d.CreateGrade(ctx, models.Grade{Name: "Grade " + tag, AcademicYear: "2026", IsActive: true})
	require.NoError(t, err)
	subject, err := d.CreateSubject(ctx, models.Subject{Name: "Maths", Code: "M-" + tag, IsActive: true, GradeID: grade.ID})
	require.NoError(t, err)
	require.NoError(t, d.ReplaceTeacherAssignments(ctx, teacher.ID, []int64{subject.ID}, []int64{grade.ID}))
	require.NoError(t, d.EnrollStudent(ctx, student.ID, grade.ID))

	correct := "B"
	exam, err := d.CreateExamWithQuestions(ctx, models.Exam{
		Title: "Quiz " + tag, SubjectID: subject.ID, GradeID: grade.ID, CreatedByID: teacher.ID,
		Duration: 30, Status: models.ExamPublished,
	}, []models.Question{
		{QuestionNumber: 1, Text: "Pick B", Type: models.MultipleChoice, Options: []string{"A", "B"}, CorrectAnswer: &correct, Points: 5},
		{QuestionNumber: 2, Text: "Explain", Type: models.Essay, Points: 5},
	})
	require.NoError(t, err)
	qs, err := d.ListQuestions(ctx, exam.ID)
	require.NoError(t, err)
	return teacher, student, exam, qs
}

func TestAttemptLifecycle(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	_, student, exam, qs := seed(t, d)

	zero := 0.0
	att, err := d.CreateAttempt(ctx, models.ExamAttempt{ExamID: exam.ID, StudentID: student.ID,
		Status: models.AttemptInProgress, StartTime: time.Now(), Score: &zero})
	require.NoError(t, err)

	_, err = d.CreateAttempt(ctx, models.ExamAttempt{ExamID: exam.ID, StudentID: student.ID,
		Status: models.AttemptInProgress, StartTime: time.Now()})
	require.ErrorIs(t, err, ErrDuplicate)

	a, b := "A", "B"
	yes, no := true, false
	_, err = d.UpsertAnswers(ctx, att.ID, []models.AnswerUpsert{{QuestionID: qs[0].ID, Selected: &a, IsCorrect: &no}})
	require.NoError(t, err)
	_, err = d.UpsertAnswers(ctx, att.ID, []models.AnswerUpsert{{QuestionID: qs[0].ID, Selected: &b, IsCorrect: &yes}})
	require.NoError(t, err)
	marked := true
	_, err = d.UpsertAnswers(ctx, att.ID, []models.AnswerUpsert{{QuestionID: qs[0].ID, IsMarked: &marked}})
	require.NoError(t, err)

	answers, err := d.ListAnswers(ctx, att.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.Equal(t, "B", *answers[0].SelectedAnswer)
	require.True(t, *answers[0].IsCorrect)
	require.True(t, answers[0].IsMarked)

	done, err := d.FinalizeAttempt(ctx, models.Finalization{AttemptID: att.ID, EndTime: time.Now(), TimeSpent: 60, Score: 50})
	require.NoError(t, err)
	require.Equal(t, models.AttemptCompleted, done.Status)
	require.Equal(t, 50.0, *done.Score)

	_, err = d.FinalizeAttempt(ctx, models.Finalization{AttemptID: att.ID, EndTime: time.Now(), Score: 100})
	require.ErrorIs(t, err, ErrStale)

	stats, err := d.ExamStats(ctx, exam.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.QuestionCount)
	require.Equal(t, 10.0, stats.TotalPoints)
	require.Equal(t, 50.0, *stats.AverageScore)
	require.Nil(t, stats.PassRate)
}

func TestExamScopeAndPaging(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	teacher, student, exam, _ := seed(t, d)

	as, err := d.TeacherAssignments(ctx, teacher.ID)
	require.NoError(t, err)
	page, err := d.ListExams(ctx, models.ExamFilter{Scope: models.ExamScope{Restricted: true, CreatorID: teacher.ID,
		SubjectIDs: as.SubjectIDs, GradeIDs: as.GradeIDs}}, models.ListOptions{First: 1})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	require.Equal(t, exam.ID, page.Items[0].ID)
	require.False(t, page.HasNextPage)

	grades, err := d.StudentGradeIDs(ctx, student.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{exam.GradeID}, grades)

	_, err = d.ListExams(ctx, models.ExamFilter{}, models.ListOptions{SortField: "passmark"})
	require.ErrorIs(t, err, ErrInvalidSort)

	require.ErrorIs(t, d.DeleteGrade(ctx, exam.GradeID), ErrForeignKey)
}

func TestAppError(t *testing.T) {
	require.Nil(t, AppError(nil, "Exam", 1))
	require.True(t, apperr.Is(AppError(fmt.Errorf("x: %w", ErrNotFound), "Exam", 1), apperr.NotFound))
	require.True(t, apperr.Is(AppError(ErrDuplicate, "Subject", "M1"), apperr.AlreadyExists))
	require.True(t, apperr.Is(AppError(ErrForeignKey, "Grade", 2), apperr.BusinessRule))
	require.True(t, apperr.Is(AppError(ErrInvalidSort, "Exam", nil), apperr.Validation))
	require.True(t, apperr.Is(AppError(errors.New("boom"), "Exam", 1), apperr.Internal))
}

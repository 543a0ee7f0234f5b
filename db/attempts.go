package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mcsh-server/models"
)

const attemptColumns = "id, uuid, exam_id, student_id, status, start_time, end_time, score, is_passed, time_spent, created_at, updated_at"

var attemptList = listSpec{
	table:   "student_exams",
	alias:   "a",
	columns: prefix("a", attemptColumns),
	sorts: map[string]string{
		"id":        "id",
		"startTime": "start_time",
		"status":    "status",
	},
	defaultSort: "startTime",
}

func scanAttempt(row pgx.Row) (models.ExamAttempt, error) {
	var a models.ExamAttempt
	err := row.Scan(&a.ID, &a.UUID, &a.ExamID, &a.StudentID, &a.Status, &a.StartTime, &a.EndTime, &a.Score,
		&a.IsPassed, &a.TimeSpent, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (d *DB) GetAttempt(ctx context.Context, id int64) (models.ExamAttempt, error) {
	a, err := scanAttempt(d.pool.QueryRow(ctx, "SELECT "+attemptColumns+" FROM student_exams WHERE id = $1", id))
	if err != nil {
		return a, fmt.Errorf("get attempt %d: %w", id, mapErr(err))
	}
	return a, nil
}

// FindAttempt returns a student's attempt at an exam.
func (d *DB) FindAttempt(ctx context.Context, examID, studentID int64) (models.ExamAttempt, error) {
	a, err := scanAttempt(d.pool.QueryRow(ctx,
		"SELECT "+attemptColumns+" FROM student_exams WHERE exam_id = $1 AND student_id = $2", examID, studentID))
	if err != nil {
		return a, fmt.Errorf("find attempt for exam %d student %d: %w", examID, studentID, mapErr(err))
	}
	return a, nil
}

func (d *DB) ListAttempts(ctx context.Context, f models.AttemptFilter, opts models.ListOptions) (models.Page[models.ExamAttempt], error) {
	var w where
	if f.ExamID != nil {
		w.add("a.exam_id = ?", *f.ExamID)
	}
	if f.StudentID != nil {
		w.add("a.student_id = ?", *f.StudentID)
	}
	if f.Status != nil {
		w.add("a.status = ?", string(*f.Status))
	}
	if sc := f.Scope; sc.Restricted {
		if sc.StudentID != 0 {
			w.add("a.student_id = ?", sc.StudentID)
		} else {
			w.add("EXISTS (SELECT 1 FROM exams x WHERE x.id = a.exam_id AND (x.created_by_id = ? OR x.subject_id = ANY(?)))",
				sc.CreatorID, sc.SubjectIDs)
		}
	}
	p, err := listPage(ctx, d.pool, attemptList, &w, opts, scanAttempt)
	return p, mapErr(err)
}

// CreateAttempt inserts a new attempt. A second attempt for the same
// (exam, student) fails with ErrDuplicate.
func (d *DB) CreateAttempt(ctx context.Context, a models.ExamAttempt) (models.ExamAttempt, error) {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	created, err := scanAttempt(d.pool.QueryRow(ctx, `
		INSERT INTO student_exams (uuid, exam_id, student_id, status, start_time, score)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+attemptColumns,
		a.UUID, a.ExamID, a.StudentID, string(a.Status), a.StartTime, a.Score))
	if err != nil {
		return created, fmt.Errorf("create attempt: %w", mapErr(err))
	}
	return created, nil
}

// FinalizeAttempt completes an attempt that is still IN_PROGRESS. If
// another request finished it first, ErrStale is returned and nothing is
// written.
func (d *DB) FinalizeAttempt(ctx context.Context, f models.Finalization) (models.ExamAttempt, error) {
	a, err := scanAttempt(d.pool.QueryRow(ctx, `
		UPDATE student_exams
		SET status = $2, end_time = $3, time_spent = $4, score = $5, is_passed = $6, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'IN_PROGRESS'
		RETURNING `+attemptColumns,
		f.AttemptID, string(models.AttemptCompleted), f.EndTime, f.TimeSpent, f.Score, f.IsPassed))
	if errors.Is(err, pgx.ErrNoRows) {
		return a, fmt.Errorf("finalize attempt %d: %w", f.AttemptID, ErrStale)
	}
	if err != nil {
		return a, fmt.Errorf("finalize attempt %d: %w", f.AttemptID, mapErr(err))
	}
	return a, nil
}

const answerColumns = "id, student_exam_id, question_id, selected_answer, is_correct, is_marked, time_taken, answered_at"

func scanAnswer(row pgx.Row) (models.Answer, error) {
	var a models.Answer
	err := row.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.SelectedAnswer, &a.IsCorrect, &a.IsMarked, &a.TimeTaken, &a.AnsweredAt)
	return a, err
}

func (d *DB) ListAnswers(ctx context.Context, attemptID int64) ([]models.Answer, error) {
	as, err := collect(ctx, d.pool, "SELECT "+answerColumns+" FROM student_answers WHERE student_exam_id = $1 ORDER BY question_id",
		scanAnswer, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers for attempt %d: %w", attemptID, mapErr(err))
	}
	return as, nil
}

// upsertAnswerSQL keeps stored values for omitted fields. $3 NULL with $7
// false means "selection not sent"; $7 true clears the selection.
const upsertAnswerSQL = `
	INSERT INTO student_answers (student_exam_id, question_id, selected_answer, is_correct, is_marked, time_taken)
	VALUES ($1, $2, $3, $4, COALESCE($5, FALSE), $6)
	ON CONFLICT (student_exam_id, question_id) DO UPDATE SET
		selected_answer = CASE WHEN $7 THEN NULL WHEN $3::text IS NULL THEN student_answers.selected_answer ELSE EXCLUDED.selected_answer END,
		is_correct = CASE WHEN $7 THEN NULL WHEN $3::text IS NULL THEN student_answers.is_correct ELSE EXCLUDED.is_correct END,
		is_marked = COALESCE($5, student_answers.is_marked),
		time_taken = COALESCE($6, student_answers.time_taken),
		answered_at = CURRENT_TIMESTAMP
	RETURNING ` + answerColumns

// UpsertAnswers writes every answer in one transaction, keyed on
// (attempt, question).
func (d *DB) UpsertAnswers(ctx context.Context, attemptID int64, ups []models.AnswerUpsert) ([]models.Answer, error) {
	out := make([]models.Answer, 0, len(ups))
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		for _, u := range ups {
			selected := u.Selected
			if u.Clear {
				selected = nil
			}
			a, err := scanAnswer(tx.QueryRow(ctx, upsertAnswerSQL,
				attemptID, u.QuestionID, selected, u.IsCorrect, u.IsMarked, u.TimeTaken, u.Clear))
			if err != nil {
				return fmt.Errorf("question %d: %w", u.QuestionID, err)
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert answers for attempt %d: %w", attemptID, mapErr(err))
	}
	return out, nil
}

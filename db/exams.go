package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mcsh-server/models"
)

const examColumns = "id, uuid, title, description, instructions, subject_id, grade_id, created_by_id, duration, passmark, " +
	"shuffle_questions, allow_review, show_results, start_date, end_date, status, created_at, updated_at"

var examList = listSpec{
	table:   "exams",
	alias:   "e",
	columns: prefix("e", examColumns),
	sorts: map[string]string{
		"id":        "id",
		"title":     "title",
		"duration":  "duration",
		"status":    "status",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	},
	defaultSort: "createdAt",
}

func scanExam(row pgx.Row) (models.Exam, error) {
	var e models.Exam
	err := row.Scan(&e.ID, &e.UUID, &e.Title, &e.Description, &e.Instructions, &e.SubjectID, &e.GradeID, &e.CreatedByID,
		&e.Duration, &e.Passmark, &e.ShuffleQuestions, &e.AllowReview, &e.ShowResults, &e.StartDate, &e.EndDate,
		&e.Status, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (d *DB) GetExam(ctx context.Context, id int64) (models.Exam, error) {
	e, err := scanExam(d.pool.QueryRow(ctx, "SELECT "+examColumns+" FROM exams WHERE id = $1", id))
	if err != nil {
		return e, fmt.Errorf("get exam %d: %w", id, mapErr(err))
	}
	return e, nil
}

func (d *DB) ListExams(ctx context.Context, f models.ExamFilter, opts models.ListOptions) (models.Page[models.Exam], error) {
	var w where
	if f.SubjectID != nil {
		w.add("e.subject_id = ?", *f.SubjectID)
	}
	if f.GradeID != nil {
		w.add("e.grade_id = ?", *f.GradeID)
	}
	if f.Status != nil {
		w.add("e.status = ?", string(*f.Status))
	}
	if f.CreatedByID != nil {
		w.add("e.created_by_id = ?", *f.CreatedByID)
	}
	if f.Search != "" {
		s := like(f.Search)
		w.add("(e.title ILIKE ? OR e.description ILIKE ?)", s, s)
	}
	if sc := f.Scope; sc.Restricted {
		if sc.PublishedOnly {
			w.add("e.status = ?", string(models.ExamPublished))
			w.add("e.grade_id = ANY(?)", sc.GradeIDs)
		} else {
			w.add("(e.created_by_id = ? OR e.subject_id = ANY(?) OR e.grade_id = ANY(?))", sc.CreatorID, sc.SubjectIDs, sc.GradeIDs)
		}
	}
	p, err := listPage(ctx, d.pool, examList, &w, opts, scanExam)
	return p, mapErr(err)
}

func (d *DB) CreateExam(ctx context.Context, e models.Exam) (models.Exam, error) {
	return createExam(ctx, d.pool, e)
}

func createExam(ctx context.Context, q querier, e models.Exam) (models.Exam, error) {
	if e.UUID == uuid.Nil {
		e.UUID = uuid.New()
	}
	created, err := scanExam(q.QueryRow(ctx, `
		INSERT INTO exams (uuid, title, description, instructions, subject_id, grade_id, created_by_id, duration, passmark,
			shuffle_questions, allow_review, show_results, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+examColumns,
		e.UUID, e.Title, e.Description, e.Instructions, e.SubjectID, e.GradeID, e.CreatedByID, e.Duration, e.Passmark,
		e.ShuffleQuestions, e.AllowReview, e.ShowResults, e.StartDate, e.EndDate, string(e.Status)))
	if err != nil {
		return created, fmt.Errorf("create exam: %w", mapErr(err))
	}
	return created, nil
}

// UpdateExam writes every mutable column of e.
func (d *DB) UpdateExam(ctx context.Context, e models.Exam) (models.Exam, error) {
	updated, err := scanExam(d.pool.QueryRow(ctx, `
		UPDATE exams SET title = $2, description = $3, instructions = $4, subject_id = $5, grade_id = $6, duration = $7,
			passmark = $8, shuffle_questions = $9, allow_review = $10, show_results = $11, start_date = $12, end_date = $13,
			status = $14, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING `+examColumns,
		e.ID, e.Title, e.Description, e.Instructions, e.SubjectID, e.GradeID, e.Duration, e.Passmark,
		e.ShuffleQuestions, e.AllowReview, e.ShowResults, e.StartDate, e.EndDate, string(e.Status)))
	if err != nil {
		return updated, fmt.Errorf("update exam %d: %w", e.ID, mapErr(err))
	}
	return updated, nil
}

func (d *DB) DeleteExam(ctx context.Context, id int64) error {
	return d.deleteByID(ctx, "exams", id)
}

// ExamStats computes the derived exam fields. Averages cover finished
// attempts only and are nil when there are none.
func (d *DB) ExamStats(ctx context.Context, id int64) (models.ExamStats, error) {
	var s models.ExamStats
	err := d.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM questions WHERE exam_id = $1),
			(SELECT COALESCE(SUM(points), 0)::float8 FROM questions WHERE exam_id = $1),
			(SELECT AVG(score)::float8 FROM student_exams WHERE exam_id = $1 AND status IN ('COMPLETED', 'GRADED')),
			(SELECT AVG(CASE WHEN is_passed THEN 100.0 ELSE 0.0 END)::float8 FROM student_exams
				WHERE exam_id = $1 AND status IN ('COMPLETED', 'GRADED') AND is_passed IS NOT NULL)
	`, id).Scan(&s.QuestionCount, &s.TotalPoints, &s.AverageScore, &s.PassRate)
	if err != nil {
		return s, fmt.Errorf("exam stats %d: %w", id, mapErr(err))
	}
	return s, nil
}

func (d *DB) CountAttempts(ctx context.Context, examID int64) (int, error) {
	var n int
	err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM student_exams WHERE exam_id = $1", examID).Scan(&n)
	return n, mapErr(err)
}

const questionColumns = "id, uuid, exam_id, question_number, text, type, options, correct_answer, points, " +
	"difficulty_level, tags, feedback, image, created_at, updated_at"

func scanQuestion(row pgx.Row) (models.Question, error) {
	var q models.Question
	err := row.Scan(&q.ID, &q.UUID, &q.ExamID, &q.QuestionNumber, &q.Text, &q.Type, &q.Options, &q.CorrectAnswer,
		&q.Points, &q.DifficultyLevel, &q.Tags, &q.Feedback, &q.Image, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func (d *DB) GetQuestion(ctx context.Context, id int64) (models.Question, error) {
	q, err := scanQuestion(d.pool.QueryRow(ctx, "SELECT "+questionColumns+" FROM questions WHERE id = $1", id))
	if err != nil {
		return q, fmt.Errorf("get question %d: %w", id, mapErr(err))
	}
	return q, nil
}

// ListQuestions returns an exam's questions ordered by number.
func (d *DB) ListQuestions(ctx context.Context, examID int64) ([]models.Question, error) {
	qs, err := collect(ctx, d.pool, "SELECT "+questionColumns+" FROM questions WHERE exam_id = $1 ORDER BY question_number",
		scanQuestion, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions for exam %d: %w", examID, mapErr(err))
	}
	return qs, nil
}

func (d *DB) CreateQuestion(ctx context.Context, q models.Question) (models.Question, error) {
	return createQuestion(ctx, d.pool, q)
}

func createQuestion(ctx context.Context, db querier, q models.Question) (models.Question, error) {
	if q.UUID == uuid.Nil {
		q.UUID = uuid.New()
	}
	created, err := scanQuestion(db.QueryRow(ctx, `
		INSERT INTO questions (uuid, exam_id, question_number, text, type, options, correct_answer, points,
			difficulty_level, tags, feedback, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+questionColumns,
		q.UUID, q.ExamID, q.QuestionNumber, q.Text, string(q.Type), nonNil(q.Options), q.CorrectAnswer, q.Points,
		difficultyArg(q.DifficultyLevel), nonNil(q.Tags), q.Feedback, q.Image))
	if err != nil {
		return created, fmt.Errorf("create question: %w", mapErr(err))
	}
	return created, nil
}

func (d *DB) UpdateQuestion(ctx context.Context, q models.Question) (models.Question, error) {
	updated, err := scanQuestion(d.pool.QueryRow(ctx, `
		UPDATE questions SET question_number = $2, text = $3, type = $4, options = $5, correct_answer = $6, points = $7,
			difficulty_level = $8, tags = $9, feedback = $10, image = $11, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING `+questionColumns,
		q.ID, q.QuestionNumber, q.Text, string(q.Type), nonNil(q.Options), q.CorrectAnswer, q.Points,
		difficultyArg(q.DifficultyLevel), nonNil(q.Tags), q.Feedback, q.Image))
	if err != nil {
		return updated, fmt.Errorf("update question %d: %w", q.ID, mapErr(err))
	}
	return updated, nil
}

func (d *DB) DeleteQuestion(ctx context.Context, id int64) error {
	return d.deleteByID(ctx, "questions", id)
}

// CreateExamWithQuestions inserts an exam and its questions atomically.
func (d *DB) CreateExamWithQuestions(ctx context.Context, e models.Exam, qs []models.Question) (models.Exam, error) {
	var created models.Exam
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		var err error
		created, err = createExam(ctx, tx, e)
		if err != nil {
			return err
		}
		for _, q := range qs {
			q.ExamID = created.ID
			if _, err := createQuestion(ctx, tx, q); err != nil {
				return fmt.Errorf("question %d: %w", q.QuestionNumber, err)
			}
		}
		return nil
	})
	return created, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func difficultyArg(d *models.Difficulty) *string {
	if d == nil {
		return nil
	}
	s := string(*d)
	return &s
}

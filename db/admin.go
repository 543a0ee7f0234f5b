package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mcsh-server/models"
)

// DashboardStats gathers the counters shown on the admin dashboard.
func (d *DB) DashboardStats(ctx context.Context) (models.DashboardStats, error) {
	var s models.DashboardStats
	err := d.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM exams),
			(SELECT COUNT(*) FROM exams WHERE status = 'PUBLISHED'),
			(SELECT COUNT(*) FROM student_exams),
			(SELECT COUNT(*) FROM student_exams WHERE status IN ('COMPLETED', 'GRADED')),
			(SELECT COUNT(*) FROM error_logs WHERE source = 'ingestion')
	`).Scan(&s.Users, &s.Exams, &s.PublishedExams, &s.AttemptsTaken, &s.AttemptsFinished, &s.IngestionErrors)
	if err != nil {
		return s, fmt.Errorf("dashboard stats: %w", err)
	}
	return s, nil
}

func (d *DB) RecentAdminEvents(ctx context.Context, limit int) ([]models.AdminEvent, error) {
	return collect(ctx, d.pool, `
		SELECT id, timestamp, action, actor, COALESCE(target, ''), COALESCE(notes, '')
		FROM admin_events ORDER BY timestamp DESC, id DESC LIMIT $1`,
		func(row pgx.Row) (models.AdminEvent, error) {
			var ae models.AdminEvent
			err := row.Scan(&ae.ID, &ae.Timestamp, &ae.Action, &ae.Actor, &ae.Target, &ae.Notes)
			return ae, err
		}, limit)
}

func (d *DB) RecentErrorLogs(ctx context.Context, source string, limit int) ([]models.ErrorLog, error) {
	return collect(ctx, d.pool, `
		SELECT id, timestamp, source, COALESCE(file_path, ''), COALESCE(line_number, 0), COALESCE(field_name, ''),
			error_message, COALESCE(suggested_fix, '')
		FROM error_logs WHERE ($1 = '' OR source = $1)
		ORDER BY timestamp DESC, id DESC LIMIT $2`,
		func(row pgx.Row) (models.ErrorLog, error) {
			var el models.ErrorLog
			err := row.Scan(&el.ID, &el.Timestamp, &el.Source, &el.FilePath, &el.LineNumber, &el.FieldName,
				&el.ErrorMessage, &el.SuggestedFix)
			return el, err
		}, source, limit)
}

// QuestionStats aggregates answer outcomes per question, optionally
// narrowed by a text search and an exam.
func (d *DB) QuestionStats(ctx context.Context, search string, examID *int64) ([]models.QuestionStats, error) {
	return collect(ctx, d.pool, `
		SELECT q.id, e.title, q.question_number, q.text, q.type,
			COUNT(sa.id) FILTER (WHERE sa.selected_answer IS NOT NULL),
			COUNT(sa.id) FILTER (WHERE sa.is_correct)
		FROM questions q
		JOIN exams e ON e.id = q.exam_id
		LEFT JOIN student_answers sa ON sa.question_id = q.id
		WHERE (q.text ILIKE $1 OR e.title ILIKE $1)
		AND ($2::bigint IS NULL OR q.exam_id = $2)
		GROUP BY q.id, e.title
		ORDER BY e.title, q.question_number`,
		func(row pgx.Row) (models.QuestionStats, error) {
			var qs models.QuestionStats
			err := row.Scan(&qs.QuestionID, &qs.ExamTitle, &qs.QuestionNumber, &qs.Text, &qs.Type,
				&qs.TimesAnswered, &qs.CorrectCount)
			return qs, err
		}, like(search), examID)
}

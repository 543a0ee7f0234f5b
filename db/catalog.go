package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mcsh-server/models"
)

const gradeColumns = "id, uuid, name, description, academic_year, is_active, created_at, updated_at"

var gradeList = listSpec{
	table:   "grades",
	alias:   "g",
	columns: prefix("g", gradeColumns),
	sorts: map[string]string{
		"id":           "id",
		"name":         "name",
		"academicYear": "academic_year",
		"createdAt":    "created_at",
	},
	defaultSort: "name",
}

func scanGrade(row pgx.Row) (models.Grade, error) {
	var g models.Grade
	err := row.Scan(&g.ID, &g.UUID, &g.Name, &g.Description, &g.AcademicYear, &g.IsActive, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func (d *DB) GetGrade(ctx context.Context, id int64) (models.Grade, error) {
	g, err := scanGrade(d.pool.QueryRow(ctx, "SELECT "+gradeColumns+" FROM grades WHERE id = $1", id))
	if err != nil {
		return g, fmt.Errorf("get grade %d: %w", id, mapErr(err))
	}
	return g, nil
}

func (d *DB) GetGradeByName(ctx context.Context, name string) (models.Grade, error) {
	g, err := scanGrade(d.pool.QueryRow(ctx, "SELECT "+gradeColumns+" FROM grades WHERE name = $1", name))
	if err != nil {
		return g, fmt.Errorf("get grade %q: %w", name, mapErr(err))
	}
	return g, nil
}

func (d *DB) GradesByIDs(ctx context.Context, ids []int64) ([]models.Grade, error) {
	grades, err := collect(ctx, d.pool, "SELECT "+gradeColumns+" FROM grades WHERE id = ANY($1) ORDER BY name", scanGrade, ids)
	return grades, mapErr(err)
}

func (d *DB) ListGrades(ctx context.Context, f models.GradeFilter, opts models.ListOptions) (models.Page[models.Grade], error) {
	var w where
	if f.IsActive != nil {
		w.add("g.is_active = ?", *f.IsActive)
	}
	if f.AcademicYear != nil {
		w.add("g.academic_year = ?", *f.AcademicYear)
	}
	if f.Search != "" {
		s := like(f.Search)
		w.add("(g.name ILIKE ? OR g.description ILIKE ?)", s, s)
	}
	p, err := listPage(ctx, d.pool, gradeList, &w, opts, scanGrade)
	return p, mapErr(err)
}

func (d *DB) CreateGrade(ctx context.Context, g models.Grade) (models.Grade, error) {
	if g.UUID == uuid.Nil {
		g.UUID = uuid.New()
	}
	created, err := scanGrade(d.pool.QueryRow(ctx, `
		INSERT INTO grades (uuid, name, description, academic_year, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+gradeColumns,
		g.UUID, g.Name, g.Description, g.AcademicYear, g.IsActive))
	if err != nil {
		return created, fmt.Errorf("create grade: %w", mapErr(err))
	}
	return created, nil
}

func (d *DB) UpdateGrade(ctx context.Context, g models.Grade) (models.Grade, error) {
	updated, err := scanGrade(d.pool.QueryRow(ctx, `
		UPDATE grades SET name = $2, description = $3, academic_year = $4, is_active = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING `+gradeColumns,
		g.ID, g.Name, g.Description, g.AcademicYear, g.IsActive))
	if err != nil {
		return updated, fmt.Errorf("update grade %d: %w", g.ID, mapErr(err))
	}
	return updated, nil
}

// GradeUsage counts the rows that keep a grade from being deleted.
func (d *DB) GradeUsage(ctx context.Context, id int64) (int, error) {
	var n int
	err := d.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM student_grades WHERE grade_id = $1)
			+ (SELECT COUNT(*) FROM teacher_grades WHERE grade_id = $1)
			+ (SELECT COUNT(*) FROM subjects WHERE grade_id = $1)
			+ (SELECT COUNT(*) FROM exams WHERE grade_id = $1)
	`, id).Scan(&n)
	return n, mapErr(err)
}

func (d *DB) DeleteGrade(ctx context.Context, id int64) error {
	return d.deleteByID(ctx, "grades", id)
}

const subjectColumns = "id, uuid, name, code, description, is_active, grade_id, created_at, updated_at"

var subjectList = listSpec{
	table:   "subjects",
	alias:   "s",
	columns: prefix("s", subjectColumns),
	sorts: map[string]string{
		"id":        "id",
		"name":      "name",
		"code":      "code",
		"createdAt": "created_at",
	},
	defaultSort: "code",
}

func scanSubject(row pgx.Row) (models.Subject, error) {
	var s models.Subject
	err := row.Scan(&s.ID, &s.UUID, &s.Name, &s.Code, &s.Description, &s.IsActive, &s.GradeID, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (d *DB) GetSubject(ctx context.Context, id int64) (models.Subject, error) {
	s, err := scanSubject(d.pool.QueryRow(ctx, "SELECT "+subjectColumns+" FROM subjects WHERE id = $1", id))
	if err != nil {
		return s, fmt.Errorf("get subject %d: %w", id, mapErr(err))
	}
	return s, nil
}

func (d *DB) GetSubjectByCode(ctx context.Context, code string) (models.Subject, error) {
	s, err := scanSubject(d.pool.QueryRow(ctx, "SELECT "+subjectColumns+" FROM subjects WHERE code = $1", code))
	if err != nil {
		return s, fmt.Errorf("get subject %q: %w", code, mapErr(err))
	}
	return s, nil
}

func (d *DB) SubjectsByIDs(ctx context.Context, ids []int64) ([]models.Subject, error) {
	subjects, err := collect(ctx, d.pool, "SELECT "+subjectColumns+" FROM subjects WHERE id = ANY($1) ORDER BY code", scanSubject, ids)
	return subjects, mapErr(err)
}

func (d *DB) ListSubjects(ctx context.Context, f models.SubjectFilter, opts models.ListOptions) (models.Page[models.Subject], error) {
	var w where
	if f.IsActive != nil {
		w.add("s.is_active = ?", *f.IsActive)
	}
	if f.GradeID != nil {
		w.add("s.grade_id = ?", *f.GradeID)
	}
	if f.Search != "" {
		s := like(f.Search)
		w.add("(s.name ILIKE ? OR s.code ILIKE ? OR s.description ILIKE ?)", s, s, s)
	}
	p, err := listPage(ctx, d.pool, subjectList, &w, opts, scanSubject)
	return p, mapErr(err)
}

func (d *DB) CreateSubject(ctx context.Context, s models.Subject) (models.Subject, error) {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	created, err := scanSubject(d.pool.QueryRow(ctx, `
		INSERT INTO subjects (uuid, name, code, description, is_active, grade_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+subjectColumns,
		s.UUID, s.Name, s.Code, s.Description, s.IsActive, s.GradeID))
	if err != nil {
		return created, fmt.Errorf("create subject: %w", mapErr(err))
	}
	return created, nil
}

func (d *DB) UpdateSubject(ctx context.Context, s models.Subject) (models.Subject, error) {
	updated, err := scanSubject(d.pool.QueryRow(ctx, `
		UPDATE subjects SET name = $2, code = $3, description = $4, is_active = $5, grade_id = $6, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING `+subjectColumns,
		s.ID, s.Name, s.Code, s.Description, s.IsActive, s.GradeID))
	if err != nil {
		return updated, fmt.Errorf("update subject %d: %w", s.ID, mapErr(err))
	}
	return updated, nil
}

func (d *DB) DeleteSubject(ctx context.Context, id int64) error {
	return d.deleteByID(ctx, "subjects", id)
}

func (d *DB) deleteByID(ctx context.Context, table string, id int64) error {
	tag, err := d.pool.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", table, id, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s %d: %w", table, id, ErrNotFound)
	}
	return nil
}

// ReplaceTeacherAssignments swaps a teacher's subject and grade sets in one
// transaction; on failure the previous sets remain.
func (d *DB) ReplaceTeacherAssignments(ctx context.Context, teacherID int64, subjectIDs, gradeIDs []int64) error {
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM teacher_subjects WHERE teacher_id = $1", teacherID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM teacher_grades WHERE teacher_id = $1", teacherID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO teacher_subjects (teacher_id, subject_id)
			SELECT $1, UNNEST($2::bigint[]) ON CONFLICT DO NOTHING`, teacherID, subjectIDs); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO teacher_grades (teacher_id, grade_id)
			SELECT $1, UNNEST($2::bigint[]) ON CONFLICT DO NOTHING`, teacherID, gradeIDs)
		return err
	})
	if err != nil {
		return fmt.Errorf("replace assignments for teacher %d: %w", teacherID, mapErr(err))
	}
	return nil
}

// EnrollStudent links a student to a grade. Enrolling twice is a no-op.
func (d *DB) EnrollStudent(ctx context.Context, studentID, gradeID int64) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO student_grades (student_id, grade_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, studentID, gradeID)
	if err != nil {
		return fmt.Errorf("enroll student %d in grade %d: %w", studentID, gradeID, mapErr(err))
	}
	return nil
}

func (d *DB) TeacherAssignments(ctx context.Context, teacherID int64) (models.Assignments, error) {
	var as models.Assignments
	err := d.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT ARRAY_AGG(subject_id ORDER BY subject_id) FROM teacher_subjects WHERE teacher_id = $1), '{}'),
			COALESCE((SELECT ARRAY_AGG(grade_id ORDER BY grade_id) FROM teacher_grades WHERE teacher_id = $1), '{}')
	`, teacherID).Scan(&as.SubjectIDs, &as.GradeIDs)
	if err != nil {
		return as, fmt.Errorf("teacher assignments %d: %w", teacherID, mapErr(err))
	}
	return as, nil
}

func (d *DB) StudentGradeIDs(ctx context.Context, studentID int64) ([]int64, error) {
	var ids []int64
	err := d.pool.QueryRow(ctx, `
		SELECT COALESCE(ARRAY_AGG(grade_id ORDER BY grade_id), '{}') FROM student_grades WHERE student_id = $1
	`, studentID).Scan(&ids)
	if err != nil {
		return nil, fmt.Errorf("student grades %d: %w", studentID, mapErr(err))
	}
	return ids, nil
}

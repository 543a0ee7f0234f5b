package directory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"mcsh-server/apperr"
	"mcsh-server/db"
	"mcsh-server/models"
	"mcsh-server/policy"
)

type GradeInput struct {
	Name         *string
	Description  *string
	AcademicYear *string
	IsActive     *bool
}

type SubjectInput struct {
	Name        *string
	Code        *string
	Description *string
	IsActive    *bool
	GradeID     *int64
}

func (s *Service) GetGrade(ctx context.Context, c models.Caller, id int64) (models.Grade, error) {
	if err := s.policy.Authorize(ctx, c, policy.Read, policy.Resource{Kind: policy.KindGrade, GradeID: id}); err != nil {
		return models.Grade{}, err
	}
	g, err := s.store.GetGrade(ctx, id)
	return g, db.AppError(err, "Grade", id)
}

func (s *Service) ListGrades(ctx context.Context, c models.Caller, f models.GradeFilter, opts models.ListOptions) (models.Page[models.Grade], error) {
	if err := s.policy.Authorize(ctx, c, policy.List, policy.Resource{Kind: policy.KindGrade}); err != nil {
		return models.Page[models.Grade]{}, err
	}
	p, err := s.store.ListGrades(ctx, f, opts)
	return p, db.AppError(err, "Grade", nil)
}

func (s *Service) CreateGrade(ctx context.Context, c models.Caller, in GradeInput) (models.Grade, error) {
	if err := s.policy.Authorize(ctx, c, policy.Create, policy.Resource{Kind: policy.KindGrade}); err != nil {
		return models.Grade{}, err
	}
	g := models.Grade{IsActive: true}
	applyGrade(&g, in)
	if err := validateGrade(g); err != nil {
		return models.Grade{}, err.WithPath("createGrade", err.Path[0])
	}
	created, err := s.store.CreateGrade(ctx, g)
	if err != nil {
		return created, db.AppError(err, "Grade "+g.Name, nil)
	}
	s.audit(ctx, c, "create_grade", g.Name, g.AcademicYear)
	return created, nil
}

func (s *Service) UpdateGrade(ctx context.Context, c models.Caller, id int64, in GradeInput) (models.Grade, error) {
	if err := s.policy.Authorize(ctx, c, policy.Update, policy.Resource{Kind: policy.KindGrade, GradeID: id}); err != nil {
		return models.Grade{}, err
	}
	g, err := s.store.GetGrade(ctx, id)
	if err != nil {
		return g, db.AppError(err, "Grade", id)
	}
	applyGrade(&g, in)
	if err := validateGrade(g); err != nil {
		return models.Grade{}, err.WithPath("updateGrade", err.Path[0])
	}
	updated, err := s.store.UpdateGrade(ctx, g)
	return updated, db.AppError(err, "Grade "+g.Name, id)
}

// DeleteGrade removes a grade nothing refers to.
func (s *Service) DeleteGrade(ctx context.Context, c models.Caller, id int64) error {
	if err := s.policy.Authorize(ctx, c, policy.Delete, policy.Resource{Kind: policy.KindGrade, GradeID: id}); err != nil {
		return err
	}
	g, err := s.store.GetGrade(ctx, id)
	if err != nil {
		return db.AppError(err, "Grade", id)
	}
	used, err := s.store.GradeUsage(ctx, id)
	if err != nil {
		return apperr.InternalError(err)
	}
	if used > 0 {
		return apperr.New(apperr.BusinessRule, "Grade %s still has students, teachers, subjects or exams", g.Name)
	}
	if err := s.store.DeleteGrade(ctx, id); err != nil {
		return db.AppError(err, "Grade", id)
	}
	s.audit(ctx, c, "delete_grade", g.Name, "")
	return nil
}

func (s *Service) GetSubject(ctx context.Context, c models.Caller, id int64) (models.Subject, error) {
	if err := s.policy.Authorize(ctx, c, policy.Read, policy.Resource{Kind: policy.KindSubject, SubjectID: id}); err != nil {
		return models.Subject{}, err
	}
	sub, err := s.store.GetSubject(ctx, id)
	return sub, db.AppError(err, "Subject", id)
}

func (s *Service) GetSubjectByCode(ctx context.Context, c models.Caller, code string) (models.Subject, error) {
	if err := s.policy.Authorize(ctx, c, policy.Read, policy.Resource{Kind: policy.KindSubject}); err != nil {
		return models.Subject{}, err
	}
	sub, err := s.store.GetSubjectByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return sub, apperr.As(db.AppError(err, "Subject", code)).WithPath("subjectByCode")
	}
	return sub, nil
}

func (s *Service) ListSubjects(ctx context.Context, c models.Caller, f models.SubjectFilter, opts models.ListOptions) (models.Page[models.Subject], error) {
	if err := s.policy.Authorize(ctx, c, policy.List, policy.Resource{Kind: policy.KindSubject}); err != nil {
		return models.Page[models.Subject]{}, err
	}
	p, err := s.store.ListSubjects(ctx, f, opts)
	return p, db.AppError(err, "Subject", nil)
}

func (s *Service) CreateSubject(ctx context.Context, c models.Caller, in SubjectInput) (models.Subject, error) {
	if err := s.policy.Authorize(ctx, c, policy.Create, policy.Resource{Kind: policy.KindSubject}); err != nil {
		return models.Subject{}, err
	}
	sub := models.Subject{IsActive: true}
	applySubject(&sub, in)
	if err := validateSubject(sub); err != nil {
		return models.Subject{}, err.WithPath("createSubject", err.Path[0])
	}
	if _, err := s.store.GetGrade(ctx, sub.GradeID); err != nil {
		return models.Subject{}, db.AppError(err, "Grade", sub.GradeID)
	}
	created, err := s.store.CreateSubject(ctx, sub)
	if err != nil {
		return created, subjectError(err, sub.Code)
	}
	s.audit(ctx, c, "create_subject", sub.Code, sub.Name)
	return created, nil
}

func (s *Service) UpdateSubject(ctx context.Context, c models.Caller, id int64, in SubjectInput) (models.Subject, error) {
	if err := s.policy.Authorize(ctx, c, policy.Update, policy.Resource{Kind: policy.KindSubject, SubjectID: id}); err != nil {
		return models.Subject{}, err
	}
	sub, err := s.store.GetSubject(ctx, id)
	if err != nil {
		return sub, db.AppError(err, "Subject", id)
	}
	prevGrade := sub.GradeID
	applySubject(&sub, in)
	if err := validateSubject(sub); err != nil {
		return models.Subject{}, err.WithPath("updateSubject", err.Path[0])
	}
	if sub.GradeID != prevGrade {
		if _, err := s.store.GetGrade(ctx, sub.GradeID); err != nil {
			return models.Subject{}, db.AppError(err, "Grade", sub.GradeID)
		}
	}
	updated, err := s.store.UpdateSubject(ctx, sub)
	if err != nil {
		return updated, subjectError(err, sub.Code)
	}
	return updated, nil
}

// DeleteSubject fails while exams still refer to the subject.
func (s *Service) DeleteSubject(ctx context.Context, c models.Caller, id int64) error {
	if err := s.policy.Authorize(ctx, c, policy.Delete, policy.Resource{Kind: policy.KindSubject, SubjectID: id}); err != nil {
		return err
	}
	sub, err := s.store.GetSubject(ctx, id)
	if err != nil {
		return db.AppError(err, "Subject", id)
	}
	if err := s.store.DeleteSubject(ctx, id); err != nil {
		return db.AppError(err, "Subject "+sub.Code, id)
	}
	s.audit(ctx, c, "delete_subject", sub.Code, "")
	return nil
}

// SubjectGrade and GradeSubjects back the relationship fields.
func (s *Service) SubjectGrade(ctx context.Context, sub models.Subject) (models.Grade, error) {
	g, err := s.store.GetGrade(ctx, sub.GradeID)
	return g, db.AppError(err, "Grade", sub.GradeID)
}

func (s *Service) GradeSubjects(ctx context.Context, gradeID int64) ([]models.Subject, error) {
	p, err := s.store.ListSubjects(ctx, models.SubjectFilter{GradeID: &gradeID}, models.ListOptions{First: models.MaxPageSize})
	return p.Items, db.AppError(err, "Subject", nil)
}

// AssignTeacher replaces the teacher's subject and grade sets.
func (s *Service) AssignTeacher(ctx context.Context, c models.Caller, teacherID int64, subjectIDs, gradeIDs []int64) error {
	if err := s.policy.Authorize(ctx, c, policy.Assign, policy.Resource{Kind: policy.KindSubject}); err != nil {
		return err
	}
	t, err := s.store.GetUser(ctx, teacherID)
	if err != nil {
		return db.AppError(err, "User", teacherID)
	}
	if t.Role != models.RoleTeacher {
		return apperr.New(apperr.Validation, "User %d is not a teacher", teacherID).WithPath("assignTeacher", "teacherId")
	}
	subjectIDs, gradeIDs = dedupe(subjectIDs), dedupe(gradeIDs)
	subjects, err := s.store.SubjectsByIDs(ctx, subjectIDs)
	if err != nil {
		return apperr.InternalError(err)
	}
	if id, ok := firstMissing(subjectIDs, subjects, func(x models.Subject) int64 { return x.ID }); ok {
		return apperr.Missing("Subject", id)
	}
	grades, err := s.store.GradesByIDs(ctx, gradeIDs)
	if err != nil {
		return apperr.InternalError(err)
	}
	if id, ok := firstMissing(gradeIDs, grades, func(x models.Grade) int64 { return x.ID }); ok {
		return apperr.Missing("Grade", id)
	}
	if err := s.store.ReplaceTeacherAssignments(ctx, teacherID, subjectIDs, gradeIDs); err != nil {
		return db.AppError(err, "Teacher assignment", teacherID)
	}
	s.audit(ctx, c, "assign_teacher", t.Email, fmt.Sprintf("subjects=%v grades=%v", subjectIDs, gradeIDs))
	return nil
}

// EnrollStudent links a student to a grade. Admins and teachers of the
// grade may enroll.
func (s *Service) EnrollStudent(ctx context.Context, c models.Caller, studentID, gradeID int64) error {
	if err := s.policy.Authorize(ctx, c, policy.Enroll, policy.Resource{Kind: policy.KindGrade, GradeID: gradeID}); err != nil {
		return err
	}
	st, err := s.store.GetUser(ctx, studentID)
	if err != nil {
		return db.AppError(err, "User", studentID)
	}
	if st.Role != models.RoleStudent {
		return apperr.New(apperr.Validation, "User %d is not a student", studentID).WithPath("enrollStudent", "studentId")
	}
	if _, err := s.store.GetGrade(ctx, gradeID); err != nil {
		return db.AppError(err, "Grade", gradeID)
	}
	return db.AppError(s.store.EnrollStudent(ctx, studentID, gradeID), "Enrollment", nil)
}

func applyGrade(g *models.Grade, in GradeInput) {
	if in.Name != nil {
		g.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		g.Description = in.Description
	}
	if in.AcademicYear != nil {
		g.AcademicYear = strings.TrimSpace(*in.AcademicYear)
	}
	if in.IsActive != nil {
		g.IsActive = *in.IsActive
	}
}

func validateGrade(g models.Grade) *apperr.Error {
	if g.Name == "" {
		return apperr.New(apperr.Validation, "Grade name is required").WithPath("name")
	}
	if g.AcademicYear == "" {
		return apperr.New(apperr.Validation, "Academic year is required").WithPath("academicYear")
	}
	return nil
}

func applySubject(sub *models.Subject, in SubjectInput) {
	if in.Name != nil {
		sub.Name = strings.TrimSpace(*in.Name)
	}
	if in.Code != nil {
		sub.Code = strings.ToUpper(strings.TrimSpace(*in.Code))
	}
	if in.Description != nil {
		sub.Description = in.Description
	}
	if in.IsActive != nil {
		sub.IsActive = *in.IsActive
	}
	if in.GradeID != nil {
		sub.GradeID = *in.GradeID
	}
}

func validateSubject(sub models.Subject) *apperr.Error {
	switch {
	case sub.Name == "":
		return apperr.New(apperr.Validation, "Subject name is required").WithPath("name")
	case sub.Code == "":
		return apperr.New(apperr.Validation, "Subject code is required").WithPath("code")
	case strings.ContainsAny(sub.Code, " \t"):
		return apperr.New(apperr.Validation, "Subject code cannot contain spaces").WithPath("code")
	case sub.GradeID == 0:
		return apperr.New(apperr.Validation, "Grade is required").WithPath("gradeId")
	}
	return nil
}

func subjectError(err error, code string) error {
	if apperr.Is(db.AppError(err, "Subject", nil), apperr.AlreadyExists) {
		return apperr.New(apperr.AlreadyExists, "Subject code %s already exists", code)
	}
	return db.AppError(err, "Subject", nil)
}

func dedupe(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func firstMissing[T any](want []int64, got []T, id func(T) int64) (int64, bool) {
	have := make(map[int64]bool, len(got))
	for _, g := range got {
		have[id(g)] = true
	}
	for _, w := range want {
		if !have[w] {
			return w, true
		}
	}
	return 0, false
}

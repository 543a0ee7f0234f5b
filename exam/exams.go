package exam

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"mcsh-server/apperr"
	"mcsh-server/db"
	"mcsh-server/models"
	"mcsh-server/policy"
)

// CreateInput is the payload of createExam.
type CreateInput struct {
	Title            string
	Description      *string
	Instructions     *string
	SubjectID        int64
	GradeID          int64
	Duration         int
	Passmark         *float64
	ShuffleQuestions *bool
	AllowReview      *bool
	ShowResults      *bool
	StartDate        *time.Time
	EndDate          *time.Time
}

// UpdateInput is the payload of updateExam; nil fields are unchanged.
type UpdateInput struct {
	Title            *string
	Description      *string
	Instructions     *string
	SubjectID        *int64
	GradeID          *int64
	Duration         *int
	Passmark         *float64
	ShuffleQuestions *bool
	AllowReview      *bool
	ShowResults      *bool
	StartDate        *time.Time
	EndDate          *time.Time
	Status           *models.ExamStatus
}

func (s *Service) GetExam(ctx context.Context, c models.Caller, id int64) (models.Exam, error) {
	if c.Anonymous() {
		return models.Exam{}, apperr.Unauthenticated()
	}
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return e, db.AppError(err, "Exam", id)
	}
	if err := s.policy.Authorize(ctx, c, policy.Read, policy.ExamResource(e)); err != nil {
		return models.Exam{}, err
	}
	return e, nil
}

func (s *Service) ListExams(ctx context.Context, c models.Caller, f models.ExamFilter, opts models.ListOptions) (models.Page[models.Exam], error) {
	if err := s.policy.Authorize(ctx, c, policy.List, policy.Resource{Kind: policy.KindExam}); err != nil {
		return models.Page[models.Exam]{}, err
	}
	scope, err := s.policy.ExamScope(ctx, c)
	if err != nil {
		return models.Page[models.Exam]{}, err
	}
	f.Scope = scope
	p, err := s.store.ListExams(ctx, f, opts)
	return p, db.AppError(err, "Exam", nil)
}

// Stats returns the computed exam fields. The caller must already be
// allowed to read the exam.
func (s *Service) Stats(ctx context.Context, examID int64) (models.ExamStats, error) {
	st, err := s.store.ExamStats(ctx, examID)
	return st, db.AppError(err, "Exam", examID)
}

func (s *Service) CreateExam(ctx context.Context, c models.Caller, in CreateInput) (models.Exam, error) {
	res := policy.Resource{Kind: policy.KindExam, SubjectID: in.SubjectID, GradeID: in.GradeID}
	if err := s.policy.Authorize(ctx, c, policy.Create, res); err != nil {
		return models.Exam{}, err
	}
	e := models.Exam{
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		Instructions:     in.Instructions,
		SubjectID:        in.SubjectID,
		GradeID:          in.GradeID,
		CreatedByID:      c.ID,
		Duration:         in.Duration,
		Passmark:         in.Passmark,
		ShuffleQuestions: boolOr(in.ShuffleQuestions, false),
		AllowReview:      boolOr(in.AllowReview, true),
		ShowResults:      boolOr(in.ShowResults, true),
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		Status:           models.ExamDraft,
	}
	if err := ValidateExam(e); err != nil {
		return models.Exam{}, err.WithPath("createExam", err.Path[0])
	}
	if err := s.checkSubjectGrade(ctx, e.SubjectID, e.GradeID); err != nil {
		return models.Exam{}, err
	}
	created, err := s.store.CreateExam(ctx, e)
	if err != nil {
		return created, db.AppError(err, "Exam", nil)
	}
	s.log.Info("exam created", zap.Int64("exam", created.ID), zap.Int64("creator", c.ID))
	return created, nil
}

func (s *Service) UpdateExam(ctx context.Context, c models.Caller, id int64, in UpdateInput) (models.Exam, error) {
	if c.Anonymous() {
		return models.Exam{}, apperr.Unauthenticated()
	}
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return e, db.AppError(err, "Exam", id)
	}
	if err := s.policy.Authorize(ctx, c, policy.Update, policy.ExamResource(e)); err != nil {
		return models.Exam{}, err
	}

	next := e
	if in.Title != nil {
		next.Title = strings.TrimSpace(*in.Title)
	}
	setIf(&next.Description, in.Description)
	setIf(&next.Instructions, in.Instructions)
	if in.SubjectID != nil {
		next.SubjectID = *in.SubjectID
	}
	if in.GradeID != nil {
		next.GradeID = *in.GradeID
	}
	if in.Duration != nil {
		next.Duration = *in.Duration
	}
	setIf(&next.Passmark, in.Passmark)
	if in.ShuffleQuestions != nil {
		next.ShuffleQuestions = *in.ShuffleQuestions
	}
	if in.AllowReview != nil {
		next.AllowReview = *in.AllowReview
	}
	if in.ShowResults != nil {
		next.ShowResults = *in.ShowResults
	}
	setIf(&next.StartDate, in.StartDate)
	setIf(&next.EndDate, in.EndDate)
	if err := ValidateExam(next); err != nil {
		return models.Exam{}, err.WithPath("updateExam", err.Path[0])
	}

	if structuralChange(e, next) {
		attempts, err := s.store.CountAttempts(ctx, e.ID)
		if err != nil {
			return models.Exam{}, apperr.InternalError(err)
		}
		if attempts > 0 {
			return models.Exam{}, apperr.New(apperr.BusinessRule,
				"Cannot change subject, grade, duration, passmark or question order after students have started this exam")
		}
	}
	if next.SubjectID != e.SubjectID || next.GradeID != e.GradeID {
		moved := policy.Resource{Kind: policy.KindExam, SubjectID: next.SubjectID, GradeID: next.GradeID}
		if err := s.policy.Authorize(ctx, c, policy.Create, moved); err != nil {
			return models.Exam{}, err
		}
		if err := s.checkSubjectGrade(ctx, next.SubjectID, next.GradeID); err != nil {
			return models.Exam{}, err
		}
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return models.Exam{}, apperr.New(apperr.Validation, "Unknown exam status %q", *in.Status).WithPath("updateExam", "status")
		}
		if err := s.transition(ctx, e, *in.Status); err != nil {
			return models.Exam{}, err
		}
		next.Status = *in.Status
	}

	updated, err := s.store.UpdateExam(ctx, next)
	return updated, db.AppError(err, "Exam", id)
}

func (s *Service) DeleteExam(ctx context.Context, c models.Caller, id int64) error {
	if c.Anonymous() {
		return apperr.Unauthenticated()
	}
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return db.AppError(err, "Exam", id)
	}
	if err := s.policy.Authorize(ctx, c, policy.Delete, policy.ExamResource(e)); err != nil {
		return err
	}
	attempts, err := s.store.CountAttempts(ctx, id)
	if err != nil {
		return apperr.InternalError(err)
	}
	if attempts > 0 {
		return apperr.New(apperr.BusinessRule, "Cannot delete an exam that students have already taken")
	}
	return db.AppError(s.store.DeleteExam(ctx, id), "Exam", id)
}

// PublishExam moves a DRAFT exam with at least one question to PUBLISHED.
func (s *Service) PublishExam(ctx context.Context, c models.Caller, id int64) (models.Exam, error) {
	return s.changeStatus(ctx, c, id, policy.Publish, models.ExamPublished)
}

// ArchiveExam retires an exam. Archived exams cannot change status again.
func (s *Service) ArchiveExam(ctx context.Context, c models.Caller, id int64) (models.Exam, error) {
	return s.changeStatus(ctx, c, id, policy.Archive, models.ExamArchived)
}

func (s *Service) changeStatus(ctx context.Context, c models.Caller, id int64, a policy.Action, to models.ExamStatus) (models.Exam, error) {
	if c.Anonymous() {
		return models.Exam{}, apperr.Unauthenticated()
	}
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return e, db.AppError(err, "Exam", id)
	}
	if err := s.policy.Authorize(ctx, c, a, policy.ExamResource(e)); err != nil {
		return models.Exam{}, err
	}
	if e.Status == to {
		return models.Exam{}, apperr.New(apperr.BusinessRule, "Exam is already %s", to)
	}
	if err := s.transition(ctx, e, to); err != nil {
		return models.Exam{}, err
	}
	e.Status = to
	updated, err := s.store.UpdateExam(ctx, e)
	if err != nil {
		return updated, db.AppError(err, "Exam", id)
	}
	return updated, nil
}

// transition checks the exam status graph:
// DRAFT -> PUBLISHED (needs questions), DRAFT|PUBLISHED -> ARCHIVED,
// PUBLISHED -> DRAFT (no attempts). ARCHIVED is terminal.
func (s *Service) transition(ctx context.Context, e models.Exam, to models.ExamStatus) error {
	if e.Status == to {
		return nil
	}
	if e.Status == models.ExamArchived {
		return apperr.New(apperr.BusinessRule, "Archived exams cannot change status")
	}
	switch to {
	case models.ExamPublished:
		qs, err := s.store.ListQuestions(ctx, e.ID)
		if err != nil {
			return apperr.InternalError(err)
		}
		if len(qs) == 0 {
			return apperr.New(apperr.Validation, "Cannot publish an exam without questions")
		}
	case models.ExamDraft:
		attempts, err := s.store.CountAttempts(ctx, e.ID)
		if err != nil {
			return apperr.InternalError(err)
		}
		if attempts > 0 {
			return apperr.New(apperr.BusinessRule, "Cannot return an exam to draft after students have started it")
		}
	}
	return nil
}

func (s *Service) checkSubjectGrade(ctx context.Context, subjectID, gradeID int64) error {
	if _, err := s.store.GetSubject(ctx, subjectID); err != nil {
		return db.AppError(err, "Subject", subjectID)
	}
	if _, err := s.store.GetGrade(ctx, gradeID); err != nil {
		return db.AppError(err, "Grade", gradeID)
	}
	return nil
}

// ValidateExam checks the fields of an exam before it is stored.
func ValidateExam(e models.Exam) *apperr.Error {
	switch {
	case e.Title == "":
		return apperr.New(apperr.Validation, "Title is required").WithPath("title")
	case len(e.Title) > 255:
		return apperr.New(apperr.Validation, "Title must be at most 255 characters").WithPath("title")
	case e.Duration <= 0:
		return apperr.New(apperr.Validation, "Duration must be a positive number of minutes").WithPath("duration")
	case e.Passmark != nil && (*e.Passmark < 0 || *e.Passmark > 100):
		return apperr.New(apperr.Validation, "Passmark must be between 0 and 100").WithPath("passmark")
	case e.StartDate != nil && e.EndDate != nil && !e.EndDate.After(*e.StartDate):
		return apperr.New(apperr.Validation, "End date must be after start date").WithPath("endDate")
	}
	return nil
}

func structuralChange(a, b models.Exam) bool {
	return a.SubjectID != b.SubjectID ||
		a.GradeID != b.GradeID ||
		a.Duration != b.Duration ||
		a.ShuffleQuestions != b.ShuffleQuestions ||
		!floatPtrEqual(a.Passmark, b.Passmark)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func setIf[T any](dst **T, v *T) {
	if v != nil {
		*dst = v
	}
}

package exam

import (
	"context"
	"errors"
	"slices"
	"strings"

	"mcsh-server/apperr"
	"mcsh-server/db"
	"mcsh-server/grading"
	"mcsh-server/models"
	"mcsh-server/policy"
)

// QuestionInput carries createQuestion and updateQuestion fields. On update
// nil fields are unchanged.
type QuestionInput struct {
	QuestionNumber  *int
	Text            *string
	Type            *models.QuestionType
	Options         *[]string
	CorrectAnswer   *string
	Points          *float64
	DifficultyLevel *models.Difficulty
	Tags            *[]string
	Feedback        *string
	Image           *string
}

// ExamQuestions lists the questions of an exam in the order the caller
// should see them. Students must have started the exam; their copy hides
// correct answers until review is allowed.
func (s *Service) ExamQuestions(ctx context.Context, c models.Caller, examID int64) ([]models.Question, error) {
	if c.Anonymous() {
		return nil, apperr.Unauthenticated()
	}
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, db.AppError(err, "Exam", examID)
	}
	att, hasAttempt, err := s.callerAttempt(ctx, c, examID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ctx, c, policy.Read, policy.QuestionResource(e, hasAttempt)); err != nil {
		return nil, err
	}
	qs, err := s.store.ListQuestions(ctx, examID)
	if err != nil {
		return nil, apperr.InternalError(err)
	}
	if c.Role != models.RoleStudent {
		return qs, nil
	}
	qs = orderFor(e, c.ID, qs)
	if !reviewable(e, att) {
		for i := range qs {
			qs[i] = redact(qs[i])
		}
	}
	return qs, nil
}

func (s *Service) GetQuestion(ctx context.Context, c models.Caller, id int64) (models.Question, error) {
	if c.Anonymous() {
		return models.Question{}, apperr.Unauthenticated()
	}
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return q, db.AppError(err, "Question", id)
	}
	e, err := s.store.GetExam(ctx, q.ExamID)
	if err != nil {
		return models.Question{}, db.AppError(err, "Exam", q.ExamID)
	}
	att, hasAttempt, err := s.callerAttempt(ctx, c, e.ID)
	if err != nil {
		return models.Question{}, err
	}
	if err := s.policy.Authorize(ctx, c, policy.Read, policy.QuestionResource(e, hasAttempt)); err != nil {
		return models.Question{}, err
	}
	if c.Role == models.RoleStudent && !reviewable(e, att) {
		q = redact(q)
	}
	return q, nil
}

func (s *Service) CreateQuestion(ctx context.Context, c models.Caller, examID int64, in QuestionInput) (models.Question, error) {
	e, err := s.editableExam(ctx, c, examID)
	if err != nil {
		return models.Question{}, err
	}
	q := models.Question{ExamID: e.ID, Points: 1}
	if in.Text == nil || in.Type == nil {
		return models.Question{}, apperr.New(apperr.Validation, "Question text and type are required").WithPath("createQuestion")
	}
	apply(&q, in)
	if in.QuestionNumber == nil {
		existing, err := s.store.ListQuestions(ctx, e.ID)
		if err != nil {
			return models.Question{}, apperr.InternalError(err)
		}
		q.QuestionNumber = nextNumber(existing)
	}
	if verr := ValidateQuestion(&q); verr != nil {
		return models.Question{}, verr.WithPath("createQuestion", verr.Path[0])
	}
	created, err := s.store.CreateQuestion(ctx, q)
	if err != nil {
		return created, questionError(err, q.QuestionNumber)
	}
	return created, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, c models.Caller, id int64, in QuestionInput) (models.Question, error) {
	if c.Anonymous() {
		return models.Question{}, apperr.Unauthenticated()
	}
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return q, db.AppError(err, "Question", id)
	}
	if _, err := s.editableExam(ctx, c, q.ExamID); err != nil {
		return models.Question{}, err
	}
	apply(&q, in)
	if verr := ValidateQuestion(&q); verr != nil {
		return models.Question{}, verr.WithPath("updateQuestion", verr.Path[0])
	}
	updated, err := s.store.UpdateQuestion(ctx, q)
	if err != nil {
		return updated, questionError(err, q.QuestionNumber)
	}
	return updated, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, c models.Caller, id int64) error {
	if c.Anonymous() {
		return apperr.Unauthenticated()
	}
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return db.AppError(err, "Question", id)
	}
	if _, err := s.editableExam(ctx, c, q.ExamID); err != nil {
		return err
	}
	return db.AppError(s.store.DeleteQuestion(ctx, id), "Question", id)
}

// editableExam loads an exam whose questions c may change. Only DRAFT exams
// accept question edits.
func (s *Service) editableExam(ctx context.Context, c models.Caller, examID int64) (models.Exam, error) {
	if c.Anonymous() {
		return models.Exam{}, apperr.Unauthenticated()
	}
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return e, db.AppError(err, "Exam", examID)
	}
	if err := s.policy.Authorize(ctx, c, policy.Update, policy.QuestionResource(e, false)); err != nil {
		return models.Exam{}, err
	}
	if e.Status != models.ExamDraft {
		return models.Exam{}, apperr.New(apperr.BusinessRule, "Questions can only be changed while the exam is a draft")
	}
	return e, nil
}

// callerAttempt finds the student's own attempt on the exam. Non-students
// never have one.
func (s *Service) callerAttempt(ctx context.Context, c models.Caller, examID int64) (*models.ExamAttempt, bool, error) {
	if c.Role != models.RoleStudent {
		return nil, false, nil
	}
	att, err := s.store.FindAttempt(ctx, examID, c.ID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.InternalError(err)
	}
	return &att, true, nil
}

func apply(q *models.Question, in QuestionInput) {
	if in.QuestionNumber != nil {
		q.QuestionNumber = *in.QuestionNumber
	}
	if in.Text != nil {
		q.Text = strings.TrimSpace(*in.Text)
	}
	if in.Type != nil {
		q.Type = *in.Type
	}
	if in.Options != nil {
		q.Options = *in.Options
	}
	setIf(&q.CorrectAnswer, in.CorrectAnswer)
	if in.Points != nil {
		q.Points = *in.Points
	}
	setIf(&q.DifficultyLevel, in.DifficultyLevel)
	if in.Tags != nil {
		q.Tags = *in.Tags
	}
	setIf(&q.Feedback, in.Feedback)
	setIf(&q.Image, in.Image)
}

// ValidateQuestion checks q and normalizes its options and correct answer
// for its type. The returned error's Path names the offending field.
func ValidateQuestion(q *models.Question) *apperr.Error {
	if q.Text == "" {
		return apperr.New(apperr.Validation, "Question text is required").WithPath("text")
	}
	if !q.Type.Valid() {
		return apperr.New(apperr.Validation, "Unknown question type %q", q.Type).WithPath("type")
	}
	if q.QuestionNumber < 1 {
		return apperr.New(apperr.Validation, "Question number must be at least 1").WithPath("questionNumber")
	}
	if q.Points < 0 {
		return apperr.New(apperr.Validation, "Points cannot be negative").WithPath("points")
	}
	if q.DifficultyLevel != nil && !q.DifficultyLevel.Valid() {
		return apperr.New(apperr.Validation, "Unknown difficulty %q", *q.DifficultyLevel).WithPath("difficultyLevel")
	}

	switch q.Type {
	case models.MultipleChoice:
		opts := make([]string, 0, len(q.Options))
		for _, o := range q.Options {
			o = strings.TrimSpace(o)
			if o == "" {
				return apperr.New(apperr.Validation, "Options cannot be empty").WithPath("options")
			}
			if slices.Contains(opts, o) {
				return apperr.New(apperr.Validation, "Duplicate option %q", o).WithPath("options")
			}
			opts = append(opts, o)
		}
		if len(opts) < 2 {
			return apperr.New(apperr.Validation, "Multiple choice questions need at least two options").WithPath("options")
		}
		q.Options = opts
		if q.CorrectAnswer == nil || !slices.Contains(opts, *q.CorrectAnswer) {
			return apperr.New(apperr.Validation, "Correct answer must be one of the options").WithPath("correctAnswer")
		}
	case models.TrueFalse:
		if q.CorrectAnswer == nil {
			return apperr.New(apperr.Validation, "True/false questions need a correct answer").WithPath("correctAnswer")
		}
		v, ok := grading.NormalizeBool(*q.CorrectAnswer)
		if !ok {
			return apperr.New(apperr.Validation, "Correct answer must be true or false").WithPath("correctAnswer")
		}
		q.CorrectAnswer = &v
		q.Options = []string{"true", "false"}
	default:
		q.Options = nil
	}
	return nil
}

func questionError(err error, number int) error {
	if errors.Is(err, db.ErrDuplicate) {
		return apperr.New(apperr.AlreadyExists, "Question number %d already exists in this exam", number)
	}
	return db.AppError(err, "Question", nil)
}

func nextNumber(qs []models.Question) int {
	n := 0
	for _, q := range qs {
		n = max(n, q.QuestionNumber)
	}
	return n + 1
}

// reviewable reports whether a student may see correct answers.
func reviewable(e models.Exam, att *models.ExamAttempt) bool {
	return att != nil && att.Status.Finished() && e.AllowReview
}

func redact(q models.Question) models.Question {
	q.CorrectAnswer = nil
	q.Feedback = nil
	return q
}

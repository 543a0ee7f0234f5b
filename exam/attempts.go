package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mcsh-server/apperr"
	"mcsh-server/db"
	"mcsh-server/grading"
	"mcsh-server/models"
	"mcsh-server/policy"
)

// Finalization triggers, used as a metrics label.
const (
	triggerSubmit  = "submit"
	triggerExpired = "expired"
)

// SubmitAnswerInput is one answer write. A nil field keeps the stored
// value; an empty Selected clears the stored selection.
type SubmitAnswerInput struct {
	AttemptID  int64
	QuestionID int64
	Selected   *string
	IsMarked   *bool
	TimeTaken  *int
}

// AnswerInput is one entry of a submitExam batch.
type AnswerInput struct {
	QuestionID int64
	Selected   *string
	IsMarked   *bool
	TimeTaken  *int
}

type SubmitExamInput struct {
	AttemptID int64
	Answers   []AnswerInput
}

// Progress summarises an attempt for the student taking it.
type Progress struct {
	AnsweredCount int
	MarkedCount   int
	QuestionCount int
	Progress      float64 // percent of questions answered
	RemainingTime int     // seconds, 0 once the attempt is over
}

// StartAttempt opens an IN_PROGRESS attempt for the calling student.
func (s *Service) StartAttempt(ctx context.Context, c models.Caller, examID int64) (models.ExamAttempt, error) {
	if err := policy.RequireRole(c, models.RoleStudent); err != nil {
		return models.ExamAttempt{}, err
	}
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return models.ExamAttempt{}, db.AppError(err, "Exam", examID)
	}
	if e.Status != models.ExamPublished {
		return models.ExamAttempt{}, apperr.New(apperr.BusinessRule, "Exam is not published")
	}
	if err := s.policy.Authorize(ctx, c, policy.Start, policy.AttemptResource(models.ExamAttempt{StudentID: c.ID}, e)); err != nil {
		return models.ExamAttempt{}, err
	}
	now := s.now()
	if e.StartDate != nil && now.Before(*e.StartDate) {
		return models.ExamAttempt{}, apperr.New(apperr.BusinessRule, "Exam opens at %s", e.StartDate.Format(time.RFC3339))
	}
	if e.EndDate != nil && now.After(*e.EndDate) {
		return models.ExamAttempt{}, apperr.New(apperr.BusinessRule, "Exam closed at %s", e.EndDate.Format(time.RFC3339))
	}

	zero := 0.0
	att, err := s.store.CreateAttempt(ctx, models.ExamAttempt{
		ExamID:    e.ID,
		StudentID: c.ID,
		Status:    models.AttemptInProgress,
		StartTime: now,
		Score:     &zero,
	})
	if errors.Is(err, db.ErrDuplicate) {
		return models.ExamAttempt{}, apperr.New(apperr.AlreadyExists, "You have already started this exam")
	}
	if err != nil {
		return models.ExamAttempt{}, db.AppError(err, "Student exam", nil)
	}
	s.metrics.attemptStarted()
	s.log.Info("attempt started", zap.Int64("attempt", att.ID), zap.Int64("exam", e.ID), zap.Int64("student", c.ID))
	return att, nil
}

// SubmitAnswer grades and stores one answer. An attempt found past its time
// limit is finalized on the spot and the write is rejected with
// TIME_EXPIRED.
func (s *Service) SubmitAnswer(ctx context.Context, c models.Caller, in SubmitAnswerInput) (models.Answer, error) {
	att, e, err := s.ownAttempt(ctx, c, in.AttemptID)
	if err != nil {
		return models.Answer{}, err
	}
	if att.Status != models.AttemptInProgress {
		return models.Answer{}, completed()
	}
	if s.expired(att, e) {
		return models.Answer{}, s.expire(ctx, att, e)
	}
	if e.Status != models.ExamPublished {
		return models.Answer{}, apperr.New(apperr.BusinessRule, "Exam is no longer accepting answers")
	}
	q, err := s.store.GetQuestion(ctx, in.QuestionID)
	if err != nil {
		return models.Answer{}, db.AppError(err, "Question", in.QuestionID)
	}
	if q.ExamID != e.ID {
		return models.Answer{}, notInExam(q.ID)
	}
	up, verr := answerUpsert(q, AnswerInput{QuestionID: q.ID, Selected: in.Selected, IsMarked: in.IsMarked, TimeTaken: in.TimeTaken})
	if verr != nil {
		return models.Answer{}, verr.WithPath("submitAnswer", verr.Path[0])
	}
	saved, err := s.store.UpsertAnswers(ctx, att.ID, []models.AnswerUpsert{up})
	if err != nil {
		return models.Answer{}, db.AppError(err, "Answer", nil)
	}
	s.metrics.answersWritten(1)
	return saved[0], nil
}

// SubmitExam stores an optional batch of answers and completes the attempt.
func (s *Service) SubmitExam(ctx context.Context, c models.Caller, in SubmitExamInput) (models.ExamAttempt, error) {
	att, e, err := s.ownAttempt(ctx, c, in.AttemptID)
	if err != nil {
		return models.ExamAttempt{}, err
	}
	if att.Status.Finished() {
		return models.ExamAttempt{}, completed()
	}
	if s.expired(att, e) {
		return models.ExamAttempt{}, s.expire(ctx, att, e)
	}

	if len(in.Answers) > 0 {
		if e.Status != models.ExamPublished {
			return models.ExamAttempt{}, apperr.New(apperr.BusinessRule, "Exam is no longer accepting answers")
		}
		qs, err := s.store.ListQuestions(ctx, e.ID)
		if err != nil {
			return models.ExamAttempt{}, apperr.InternalError(err)
		}
		byID := make(map[int64]models.Question, len(qs))
		for _, q := range qs {
			byID[q.ID] = q
		}
		ups := make([]models.AnswerUpsert, 0, len(in.Answers))
		for i, a := range in.Answers {
			q, ok := byID[a.QuestionID]
			if !ok {
				return models.ExamAttempt{}, notInExam(a.QuestionID)
			}
			up, verr := answerUpsert(q, a)
			if verr != nil {
				return models.ExamAttempt{}, verr.WithPath("submitExam", "answers", fmt.Sprint(i), verr.Path[0])
			}
			ups = append(ups, up)
		}
		if _, err := s.store.UpsertAnswers(ctx, att.ID, ups); err != nil {
			return models.ExamAttempt{}, db.AppError(err, "Answer", nil)
		}
		s.metrics.answersWritten(len(ups))
	}
	return s.finalize(ctx, att, e, triggerSubmit)
}

// ownAttempt loads an attempt and its exam for a write by c.
func (s *Service) ownAttempt(ctx context.Context, c models.Caller, id int64) (models.ExamAttempt, models.Exam, error) {
	if err := policy.RequireRole(c, models.RoleStudent); err != nil {
		return models.ExamAttempt{}, models.Exam{}, err
	}
	att, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		return att, models.Exam{}, db.AppError(err, "Student exam", id)
	}
	e, err := s.store.GetExam(ctx, att.ExamID)
	if err != nil {
		return att, e, db.AppError(err, "Exam", att.ExamID)
	}
	if err := s.policy.Authorize(ctx, c, policy.Answer, policy.AttemptResource(att, e)); err != nil {
		return att, e, err
	}
	return att, e, nil
}

func (s *Service) expired(att models.ExamAttempt, e models.Exam) bool {
	return s.now().Sub(att.StartTime) > e.TimeLimit()
}

// expire finalizes an attempt that ran out of time and returns the
// TIME_EXPIRED error the triggering request reports.
func (s *Service) expire(ctx context.Context, att models.ExamAttempt, e models.Exam) error {
	if _, err := s.finalize(ctx, att, e, triggerExpired); err != nil && !apperr.Is(err, apperr.ExamAlreadyCompleted) {
		return err
	}
	return apperr.New(apperr.TimeExpired, "Time limit of %d minutes exceeded; the exam has been submitted", e.Duration)
}

// finalize scores the attempt and moves it to COMPLETED. The write only
// applies while the attempt is still IN_PROGRESS, so a score is computed
// at most once.
func (s *Service) finalize(ctx context.Context, att models.ExamAttempt, e models.Exam, trigger string) (models.ExamAttempt, error) {
	qs, err := s.store.ListQuestions(ctx, e.ID)
	if err != nil {
		return models.ExamAttempt{}, apperr.InternalError(err)
	}
	answers, err := s.store.ListAnswers(ctx, att.ID)
	if err != nil {
		return models.ExamAttempt{}, apperr.InternalError(err)
	}
	res := grading.Score(qs, answers)
	now := s.now()
	done, err := s.store.FinalizeAttempt(ctx, models.Finalization{
		AttemptID: att.ID,
		EndTime:   now,
		TimeSpent: max(0, int(now.Sub(att.StartTime).Seconds())),
		Score:     res.Score,
		IsPassed:  grading.Passed(res.Score, e.Passmark),
	})
	if errors.Is(err, db.ErrStale) {
		return models.ExamAttempt{}, completed()
	}
	if err != nil {
		return models.ExamAttempt{}, db.AppError(err, "Student exam", att.ID)
	}
	s.metrics.attemptFinalized(trigger, res.Score)
	s.log.Info("attempt finalized",
		zap.Int64("attempt", done.ID),
		zap.String("trigger", trigger),
		zap.Float64("score", res.Score),
		zap.Float64("earned", res.Earned),
		zap.Float64("total", res.Total))
	s.notifyFinalized(ctx, done, e)
	return done, nil
}

func (s *Service) notifyFinalized(ctx context.Context, att models.ExamAttempt, e models.Exam) {
	score := 0.0
	if att.Score != nil {
		score = *att.Score
	}
	notes := []models.Notification{
		{
			RecipientID: att.StudentID,
			Title:       "Exam Completed",
			Message:     fmt.Sprintf("You have completed the exam %q with a score of %.1f%%", e.Title, score),
			Type:        "EXAM_COMPLETED",
		},
		{
			RecipientID: e.CreatedByID,
			Title:       "Exam Submission",
			Message:     fmt.Sprintf("A student has submitted the exam %q", e.Title),
			Type:        "EXAM_SUBMISSION",
		},
	}
	for _, n := range notes {
		if _, err := s.store.CreateNotification(ctx, n); err != nil {
			s.log.Warn("notification not stored", zap.Int64("recipient", n.RecipientID), zap.Error(err))
		}
	}
}

// GetAttempt returns an attempt the caller may read.
func (s *Service) GetAttempt(ctx context.Context, c models.Caller, id int64) (models.ExamAttempt, error) {
	if c.Anonymous() {
		return models.ExamAttempt{}, apperr.Unauthenticated()
	}
	att, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		return att, db.AppError(err, "Student exam", id)
	}
	e, err := s.store.GetExam(ctx, att.ExamID)
	if err != nil {
		return models.ExamAttempt{}, db.AppError(err, "Exam", att.ExamID)
	}
	if err := s.policy.Authorize(ctx, c, policy.Read, policy.AttemptResource(att, e)); err != nil {
		return models.ExamAttempt{}, err
	}
	return att, nil
}

func (s *Service) ListAttempts(ctx context.Context, c models.Caller, f models.AttemptFilter, opts models.ListOptions) (models.Page[models.ExamAttempt], error) {
	if err := s.policy.Authorize(ctx, c, policy.List, policy.Resource{Kind: policy.KindAttempt}); err != nil {
		return models.Page[models.ExamAttempt]{}, err
	}
	scope, err := s.policy.AttemptScope(ctx, c)
	if err != nil {
		return models.Page[models.ExamAttempt]{}, err
	}
	f.Scope = scope
	p, err := s.store.ListAttempts(ctx, f, opts)
	return p, db.AppError(err, "Student exam", nil)
}

// Answers lists the answers of an attempt the caller may read. Students
// only see correctness once the attempt is over and the exam shows results.
func (s *Service) Answers(ctx context.Context, c models.Caller, att models.ExamAttempt) ([]models.Answer, error) {
	answers, err := s.store.ListAnswers(ctx, att.ID)
	if err != nil {
		return nil, apperr.InternalError(err)
	}
	if c.Role != models.RoleStudent {
		return answers, nil
	}
	e, err := s.store.GetExam(ctx, att.ExamID)
	if err != nil {
		return nil, db.AppError(err, "Exam", att.ExamID)
	}
	if !att.Status.Finished() || !e.ShowResults {
		for i := range answers {
			answers[i].IsCorrect = nil
		}
	}
	return answers, nil
}

// Progress computes the answered, marked and remaining-time counters.
func (s *Service) Progress(ctx context.Context, att models.ExamAttempt) (Progress, error) {
	e, err := s.store.GetExam(ctx, att.ExamID)
	if err != nil {
		return Progress{}, db.AppError(err, "Exam", att.ExamID)
	}
	qs, err := s.store.ListQuestions(ctx, att.ExamID)
	if err != nil {
		return Progress{}, apperr.InternalError(err)
	}
	answers, err := s.store.ListAnswers(ctx, att.ID)
	if err != nil {
		return Progress{}, apperr.InternalError(err)
	}
	p := Progress{QuestionCount: len(qs)}
	for _, a := range answers {
		if a.SelectedAnswer != nil && *a.SelectedAnswer != "" {
			p.AnsweredCount++
		}
		if a.IsMarked {
			p.MarkedCount++
		}
	}
	if p.QuestionCount > 0 {
		p.Progress = float64(p.AnsweredCount) / float64(p.QuestionCount) * 100
	}
	if att.Status == models.AttemptInProgress {
		left := e.TimeLimit() - s.now().Sub(att.StartTime)
		p.RemainingTime = max(0, int(left.Seconds()))
	}
	return p, nil
}

// answerUpsert grades a for q. An empty selection clears the stored one.
func answerUpsert(q models.Question, a AnswerInput) (models.AnswerUpsert, *apperr.Error) {
	if a.TimeTaken != nil && *a.TimeTaken < 0 {
		return models.AnswerUpsert{}, apperr.New(apperr.Validation, "Time taken cannot be negative").WithPath("timeTaken")
	}
	up := models.AnswerUpsert{QuestionID: q.ID, IsMarked: a.IsMarked, TimeTaken: a.TimeTaken}
	if a.Selected == nil {
		return up, nil
	}
	if *a.Selected == "" {
		up.Clear = true
		return up, nil
	}
	up.Selected = a.Selected
	up.IsCorrect = grading.Grade(q, a.Selected)
	return up, nil
}

func completed() *apperr.Error {
	return apperr.New(apperr.ExamAlreadyCompleted, "This exam has already been submitted")
}

func notInExam(questionID int64) *apperr.Error {
	return apperr.New(apperr.QuestionNotInExam, "Question %d does not belong to this exam", questionID)
}

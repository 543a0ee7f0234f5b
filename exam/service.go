// Package exam manages exams, their questions and student attempts.
package exam

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mcsh-server/models"
	"mcsh-server/policy"
)

// Store is the persistence the exam service needs. *db.DB implements it.
type Store interface {
	GetSubject(ctx context.Context, id int64) (models.Subject, error)
	GetGrade(ctx context.Context, id int64) (models.Grade, error)

	GetExam(ctx context.Context, id int64) (models.Exam, error)
	ListExams(ctx context.Context, f models.ExamFilter, opts models.ListOptions) (models.Page[models.Exam], error)
	CreateExam(ctx context.Context, e models.Exam) (models.Exam, error)
	UpdateExam(ctx context.Context, e models.Exam) (models.Exam, error)
	DeleteExam(ctx context.Context, id int64) error
	ExamStats(ctx context.Context, id int64) (models.ExamStats, error)
	CountAttempts(ctx context.Context, examID int64) (int, error)

	GetQuestion(ctx context.Context, id int64) (models.Question, error)
	ListQuestions(ctx context.Context, examID int64) ([]models.Question, error)
	CreateQuestion(ctx context.Context, q models.Question) (models.Question, error)
	UpdateQuestion(ctx context.Context, q models.Question) (models.Question, error)
	DeleteQuestion(ctx context.Context, id int64) error

	GetAttempt(ctx context.Context, id int64) (models.ExamAttempt, error)
	FindAttempt(ctx context.Context, examID, studentID int64) (models.ExamAttempt, error)
	ListAttempts(ctx context.Context, f models.AttemptFilter, opts models.ListOptions) (models.Page[models.ExamAttempt], error)
	CreateAttempt(ctx context.Context, a models.ExamAttempt) (models.ExamAttempt, error)
	ListAnswers(ctx context.Context, attemptID int64) ([]models.Answer, error)
	UpsertAnswers(ctx context.Context, attemptID int64, ups []models.AnswerUpsert) ([]models.Answer, error)
	FinalizeAttempt(ctx context.Context, f models.Finalization) (models.ExamAttempt, error)

	CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error)
}

type Service struct {
	store   Store
	policy  *policy.Evaluator
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, pol *policy.Evaluator, log *zap.Logger, m *Metrics, opts ...Option) *Service {
	s := &Service{store: store, policy: pol, log: log, metrics: m, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

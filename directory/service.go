// Package directory manages accounts, the grade and subject catalog, the
// links between them, sign-in and notifications.
package directory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mcsh-server/auth"
	"mcsh-server/models"
	"mcsh-server/policy"
)

// Store is the persistence the directory needs. *db.DB implements it.
type Store interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsers(ctx context.Context, f models.UserFilter, opts models.ListOptions) (models.Page[models.User], error)
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	UpdateUser(ctx context.Context, u models.User) (models.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	DeleteUser(ctx context.Context, id int64) error
	UsersInGrade(ctx context.Context, gradeID int64, role models.Role) ([]models.User, error)
	TeachersOfSubject(ctx context.Context, subjectID int64) ([]models.User, error)

	GetGrade(ctx context.Context, id int64) (models.Grade, error)
	GradesByIDs(ctx context.Context, ids []int64) ([]models.Grade, error)
	ListGrades(ctx context.Context, f models.GradeFilter, opts models.ListOptions) (models.Page[models.Grade], error)
	CreateGrade(ctx context.Context, g models.Grade) (models.Grade, error)
	UpdateGrade(ctx context.Context, g models.Grade) (models.Grade, error)
	GradeUsage(ctx context.Context, id int64) (int, error)
	DeleteGrade(ctx context.Context, id int64) error

	GetSubject(ctx context.Context, id int64) (models.Subject, error)
	GetSubjectByCode(ctx context.Context, code string) (models.Subject, error)
	SubjectsByIDs(ctx context.Context, ids []int64) ([]models.Subject, error)
	ListSubjects(ctx context.Context, f models.SubjectFilter, opts models.ListOptions) (models.Page[models.Subject], error)
	CreateSubject(ctx context.Context, s models.Subject) (models.Subject, error)
	UpdateSubject(ctx context.Context, s models.Subject) (models.Subject, error)
	DeleteSubject(ctx context.Context, id int64) error

	ReplaceTeacherAssignments(ctx context.Context, teacherID int64, subjectIDs, gradeIDs []int64) error
	EnrollStudent(ctx context.Context, studentID, gradeID int64) error
	TeacherAssignments(ctx context.Context, teacherID int64) (models.Assignments, error)
	StudentGradeIDs(ctx context.Context, studentID int64) ([]int64, error)

	GetNotification(ctx context.Context, id int64) (models.Notification, error)
	ListNotifications(ctx context.Context, recipientID int64, unreadOnly bool, opts models.ListOptions) (models.Page[models.Notification], error)
	MarkNotificationRead(ctx context.Context, id int64) (models.Notification, error)

	LogAdminEvent(ctx context.Context, actor, action, target, notes string)
}

type Service struct {
	store       Store
	policy      *policy.Evaluator
	tokens      *auth.TokenManager
	hasher      auth.Hasher
	allowSignup bool
	log         *zap.Logger
	now         func() time.Time
}

type Option func(*Service)

// WithSignup enables self-service student sign-up.
func WithSignup(enabled bool) Option {
	return func(s *Service) { s.allowSignup = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, pol *policy.Evaluator, tokens *auth.TokenManager, hasher auth.Hasher, log *zap.Logger, opts ...Option) *Service {
	s := &Service{store: store, policy: pol, tokens: tokens, hasher: hasher, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// audit records an admin action. The actor is the caller's user id.
func (s *Service) audit(ctx context.Context, c models.Caller, action, target, notes string) {
	s.store.LogAdminEvent(ctx, actorName(c), action, target, notes)
}

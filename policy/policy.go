// Package policy is the single place where callers are allowed or denied.
// Services describe what they are about to do as an Action on a Resource
// and ask the Evaluator.
package policy

import (
	"context"
	"fmt"
	"slices"

	"mcsh-server/apperr"
	"mcsh-server/models"
)

type Action string

const (
	Read       Action = "read"
	List       Action = "list"
	Create     Action = "create"
	Update     Action = "update"
	Delete     Action = "delete"
	Publish    Action = "publish"
	Archive    Action = "archive"
	Administer Action = "administer" // role and status changes
	Assign     Action = "assign"
	Enroll     Action = "enroll"
	Start      Action = "start"
	Answer     Action = "answer" // submit answers or the whole attempt
)

type Kind string

const (
	KindUser         Kind = "user"
	KindGrade        Kind = "grade"
	KindSubject      Kind = "subject"
	KindExam         Kind = "exam"
	KindQuestion     Kind = "question"
	KindAttempt      Kind = "attempt"
	KindNotification Kind = "notification"
)

// Resource describes the target of an action. Only the fields relevant to
// Kind are read.
type Resource struct {
	Kind       Kind
	OwnerID    int64       // user itself, attempt student or notification recipient
	Role       models.Role // role of a target user
	CreatorID  int64       // exam creator
	SubjectID  int64
	GradeID    int64
	ExamStatus models.ExamStatus
	HasAttempt bool // the caller has an attempt on the exam
}

// AssignmentSource looks up which subjects and grades a user is linked to.
type AssignmentSource interface {
	TeacherAssignments(ctx context.Context, teacherID int64) (models.Assignments, error)
	StudentGradeIDs(ctx context.Context, studentID int64) ([]int64, error)
}

type Evaluator struct {
	src AssignmentSource
}

func New(src AssignmentSource) *Evaluator {
	return &Evaluator{src: src}
}

func ExamResource(e models.Exam) Resource {
	return Resource{Kind: KindExam, CreatorID: e.CreatedByID, SubjectID: e.SubjectID, GradeID: e.GradeID, ExamStatus: e.Status}
}

func QuestionResource(e models.Exam, hasAttempt bool) Resource {
	r := ExamResource(e)
	r.Kind = KindQuestion
	r.HasAttempt = hasAttempt
	return r
}

func AttemptResource(a models.ExamAttempt, e models.Exam) Resource {
	r := ExamResource(e)
	r.Kind = KindAttempt
	r.OwnerID = a.StudentID
	return r
}

func UserResource(u models.User) Resource {
	return Resource{Kind: KindUser, OwnerID: u.ID, Role: u.Role}
}

// Authorize returns nil when c may perform a on r, otherwise an
// UNAUTHORIZED or FORBIDDEN *apperr.Error.
func (e *Evaluator) Authorize(ctx context.Context, c models.Caller, a Action, r Resource) error {
	if c.Anonymous() {
		return apperr.Unauthenticated()
	}
	if r.Kind == KindAttempt {
		return e.attempt(ctx, c, a, r)
	}
	if c.Role == models.RoleAdmin {
		return nil
	}
	switch r.Kind {
	case KindUser:
		return e.user(c, a, r)
	case KindGrade, KindSubject:
		return e.catalog(ctx, c, a, r)
	case KindExam:
		return e.exam(ctx, c, a, r)
	case KindQuestion:
		return e.question(ctx, c, a, r)
	case KindNotification:
		if r.OwnerID == c.ID {
			return nil
		}
		return apperr.Denied("You can only access your own notifications")
	}
	return apperr.InternalError(fmt.Errorf("policy: unknown resource kind %q", r.Kind))
}

func (e *Evaluator) user(c models.Caller, a Action, r Resource) error {
	switch a {
	case Read:
		if r.OwnerID == c.ID || (c.Role == models.RoleTeacher && r.Role == models.RoleStudent) {
			return nil
		}
		return apperr.Denied("You do not have permission to view this user")
	case List:
		if c.Role == models.RoleTeacher {
			return nil
		}
		return apperr.Denied("You do not have permission to list users")
	case Update:
		if r.OwnerID == c.ID {
			return nil
		}
		return apperr.Denied("You can only update your own profile")
	case Administer:
		return apperr.Denied("Only admins can change user roles or status")
	}
	return apperr.Denied("Only admins can %s users", a)
}

func (e *Evaluator) catalog(ctx context.Context, c models.Caller, a Action, r Resource) error {
	switch a {
	case Read, List:
		return nil
	case Enroll:
		if c.Role != models.RoleTeacher {
			return apperr.Denied("Only admins or teachers of the grade can enroll students")
		}
		as, err := e.teacher(ctx, c.ID)
		if err != nil {
			return err
		}
		if slices.Contains(as.GradeIDs, r.GradeID) {
			return nil
		}
		return apperr.Denied("You are not assigned to this grade")
	}
	return apperr.Denied("Only admins can %s %ss", a, r.Kind)
}

func (e *Evaluator) exam(ctx context.Context, c models.Caller, a Action, r Resource) error {
	switch c.Role {
	case models.RoleTeacher:
		if a == List {
			return nil
		}
		as, err := e.teacher(ctx, c.ID)
		if err != nil {
			return err
		}
		teachesSubject := slices.Contains(as.SubjectIDs, r.SubjectID)
		teachesGrade := slices.Contains(as.GradeIDs, r.GradeID)
		creator := r.CreatorID == c.ID
		switch a {
		case Read:
			if creator || teachesSubject || teachesGrade {
				return nil
			}
			return apperr.Denied("You do not have access to this exam")
		case Create:
			if teachesSubject && teachesGrade {
				return nil
			}
			return apperr.Denied("You can only create exams for subjects and grades you teach")
		case Update, Publish:
			if creator || teachesSubject {
				return nil
			}
			return apperr.Denied("You can only modify exams you created or teach")
		case Delete, Archive:
			if creator {
				return nil
			}
			return apperr.Denied("Only the exam creator or an admin can %s this exam", a)
		}
	case models.RoleStudent:
		switch a {
		case List:
			return nil
		case Read:
			return e.studentSees(ctx, c, r)
		}
		return apperr.Denied("Students cannot %s exams", a)
	}
	return apperr.Denied("You do not have permission to %s exams", a)
}

func (e *Evaluator) question(ctx context.Context, c models.Caller, a Action, r Resource) error {
	examAction := Update
	if a == Read || a == List {
		examAction = Read
	}
	if c.Role == models.RoleStudent && examAction == Update {
		return apperr.Denied("Students cannot modify questions")
	}
	if err := e.exam(ctx, c, examAction, r); err != nil {
		return err
	}
	if c.Role == models.RoleStudent && !r.HasAttempt {
		return apperr.Denied("Start the exam before viewing its questions")
	}
	return nil
}

func (e *Evaluator) attempt(ctx context.Context, c models.Caller, a Action, r Resource) error {
	switch a {
	case Start:
		if c.Role != models.RoleStudent {
			return apperr.Denied("Only students can start exams")
		}
		return e.studentSees(ctx, c, r)
	case Answer:
		if c.Role != models.RoleStudent {
			return apperr.Denied("Only students can submit answers")
		}
		if r.OwnerID != c.ID {
			return apperr.Denied("You can only submit answers for your own exams")
		}
		return nil
	case Read, List:
		switch c.Role {
		case models.RoleAdmin:
			return nil
		case models.RoleStudent:
			if a == List || r.OwnerID == c.ID {
				return nil
			}
			return apperr.Denied("You can only view your own exam attempts")
		case models.RoleTeacher:
			if a == List || r.CreatorID == c.ID {
				return nil
			}
			as, err := e.teacher(ctx, c.ID)
			if err != nil {
				return err
			}
			if slices.Contains(as.SubjectIDs, r.SubjectID) {
				return nil
			}
			return apperr.Denied("You do not have access to this exam attempt")
		}
	}
	return apperr.Denied("You do not have permission to %s exam attempts", a)
}

// studentSees reports whether a student may see the exam r describes:
// it must be published and in one of the student's grades.
func (e *Evaluator) studentSees(ctx context.Context, c models.Caller, r Resource) error {
	if r.ExamStatus != models.ExamPublished {
		return apperr.Denied("This exam is not available")
	}
	grades, err := e.src.StudentGradeIDs(ctx, c.ID)
	if err != nil {
		return apperr.InternalError(err)
	}
	if !slices.Contains(grades, r.GradeID) {
		return apperr.Denied("You are not enrolled in this exam's grade")
	}
	return nil
}

func (e *Evaluator) teacher(ctx context.Context, id int64) (models.Assignments, error) {
	as, err := e.src.TeacherAssignments(ctx, id)
	if err != nil {
		return models.Assignments{}, apperr.InternalError(err)
	}
	return as, nil
}

// RequireRole rejects anonymous callers and callers whose role is not listed.
func RequireRole(c models.Caller, roles ...models.Role) error {
	if c.Anonymous() {
		return apperr.Unauthenticated()
	}
	if !slices.Contains(roles, c.Role) {
		return apperr.Denied("This action requires one of the roles %v", roles)
	}
	return nil
}

// ExamScope turns the exam read rule into a list filter for c.
func (e *Evaluator) ExamScope(ctx context.Context, c models.Caller) (models.ExamScope, error) {
	switch c.Role {
	case models.RoleAdmin:
		return models.ExamScope{}, nil
	case models.RoleTeacher:
		as, err := e.teacher(ctx, c.ID)
		if err != nil {
			return models.ExamScope{}, err
		}
		return models.ExamScope{Restricted: true, CreatorID: c.ID, SubjectIDs: as.SubjectIDs, GradeIDs: as.GradeIDs}, nil
	case models.RoleStudent:
		grades, err := e.src.StudentGradeIDs(ctx, c.ID)
		if err != nil {
			return models.ExamScope{}, apperr.InternalError(err)
		}
		return models.ExamScope{Restricted: true, PublishedOnly: true, GradeIDs: grades}, nil
	}
	return models.ExamScope{}, apperr.Denied("Unknown role %q", c.Role)
}

// AttemptScope turns the attempt read rule into a list filter for c.
func (e *Evaluator) AttemptScope(ctx context.Context, c models.Caller) (models.AttemptScope, error) {
	switch c.Role {
	case models.RoleAdmin:
		return models.AttemptScope{}, nil
	case models.RoleTeacher:
		as, err := e.teacher(ctx, c.ID)
		if err != nil {
			return models.AttemptScope{}, err
		}
		return models.AttemptScope{Restricted: true, CreatorID: c.ID, SubjectIDs: as.SubjectIDs}, nil
	case models.RoleStudent:
		return models.AttemptScope{Restricted: true, StudentID: c.ID}, nil
	}
	return models.AttemptScope{}, apperr.Denied("Unknown role %q", c.Role)
}

// RestrictUsers narrows a user listing for non-admins. Teachers only see
// students.
func RestrictUsers(c models.Caller, f *models.UserFilter) error {
	if c.Role != models.RoleTeacher {
		return nil
	}
	student := models.RoleStudent
	if f.Role != nil && *f.Role != student {
		return apperr.Denied("Teachers can only list students")
	}
	f.Role = &student
	return nil
}

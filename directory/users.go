package directory

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"mcsh-server/apperr"
	"mcsh-server/db"
	"mcsh-server/models"
	"mcsh-server/policy"
)

type CreateUserInput struct {
	FirstName    string
	LastName     string
	Email        string
	Password     string
	Role         models.Role
	Status       *models.UserStatus
	ProfileImage *string
	PhoneNumber  *string
}

// UpdateUserInput changes the non-nil fields.
type UpdateUserInput struct {
	FirstName    *string
	LastName     *string
	Email        *string
	Password     *string
	Role         *models.Role
	Status       *models.UserStatus
	ProfileImage *string
	PhoneNumber  *string
}

func (s *Service) GetUser(ctx context.Context, c models.Caller, id int64) (models.User, error) {
	if c.Anonymous() {
		return models.User{}, apperr.Unauthenticated()
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return u, db.AppError(err, "User", id)
	}
	if err := s.policy.Authorize(ctx, c, policy.Read, policy.UserResource(u)); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, c models.Caller, f models.UserFilter, opts models.ListOptions) (models.Page[models.User], error) {
	if err := s.policy.Authorize(ctx, c, policy.List, policy.Resource{Kind: policy.KindUser}); err != nil {
		return models.Page[models.User]{}, err
	}
	if err := policy.RestrictUsers(c, &f); err != nil {
		return models.Page[models.User]{}, err
	}
	p, err := s.store.ListUsers(ctx, f, opts)
	return p, db.AppError(err, "User", nil)
}

func (s *Service) CreateUser(ctx context.Context, c models.Caller, in CreateUserInput) (models.User, error) {
	if err := s.policy.Authorize(ctx, c, policy.Create, policy.Resource{Kind: policy.KindUser}); err != nil {
		return models.User{}, err
	}
	u, err := s.newUser(ctx, in, "createUser")
	if err != nil {
		return u, err
	}
	s.audit(ctx, c, "create_user", u.Email, string(u.Role))
	return u, nil
}

// Bootstrap creates a user for the operator of the command line, who
// needs no account of their own.
func (s *Service) Bootstrap(ctx context.Context, in CreateUserInput) (models.User, error) {
	u, err := s.newUser(ctx, in, "createUser")
	if err != nil {
		return u, err
	}
	s.store.LogAdminEvent(ctx, "cli", "create_user", u.Email, string(u.Role))
	return u, nil
}

func (s *Service) newUser(ctx context.Context, in CreateUserInput, op string) (models.User, error) {
	u := models.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        strings.TrimSpace(in.Email),
		Role:         in.Role,
		Status:       models.UserActive,
		ProfileImage: in.ProfileImage,
		PhoneNumber:  in.PhoneNumber,
	}
	if in.Status != nil {
		u.Status = *in.Status
	}
	if err := validateUser(u); err != nil {
		return models.User{}, err.WithPath(op, err.Path[0])
	}
	hash, err := s.passwordHash(in.Password, op, "password")
	if err != nil {
		return models.User{}, err
	}
	u.PasswordHash = hash
	created, err := s.store.CreateUser(ctx, u)
	if err != nil {
		return created, emailError(err, u.Email)
	}
	return created, nil
}

func (s *Service) UpdateUser(ctx context.Context, c models.Caller, id int64, in UpdateUserInput) (models.User, error) {
	if c.Anonymous() {
		return models.User{}, apperr.Unauthenticated()
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return u, db.AppError(err, "User", id)
	}
	res := policy.UserResource(u)
	if err := s.policy.Authorize(ctx, c, policy.Update, res); err != nil {
		return models.User{}, err
	}
	roleChange := in.Role != nil && *in.Role != u.Role
	statusChange := in.Status != nil && *in.Status != u.Status
	if roleChange || statusChange {
		if err := s.policy.Authorize(ctx, c, policy.Administer, res); err != nil {
			return models.User{}, err
		}
		if c.ID == u.ID {
			return models.User{}, apperr.New(apperr.BusinessRule, "You cannot change your own role or status")
		}
	}

	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Email != nil {
		u.Email = strings.TrimSpace(*in.Email)
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.Status != nil {
		u.Status = *in.Status
	}
	if in.ProfileImage != nil {
		u.ProfileImage = in.ProfileImage
	}
	if in.PhoneNumber != nil {
		u.PhoneNumber = in.PhoneNumber
	}
	if err := validateUser(u); err != nil {
		return models.User{}, err.WithPath("updateUser", err.Path[0])
	}
	if in.Password != nil {
		hash, err := s.passwordHash(*in.Password, "updateUser", "password")
		if err != nil {
			return models.User{}, err
		}
		u.PasswordHash = hash
	}
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return updated, emailError(err, u.Email)
	}
	if roleChange || statusChange {
		s.audit(ctx, c, "update_user", u.Email, fmt.Sprintf("role=%s status=%s", u.Role, u.Status))
	}
	return updated, nil
}

func (s *Service) DeleteUser(ctx context.Context, c models.Caller, id int64) error {
	if err := s.policy.Authorize(ctx, c, policy.Delete, policy.Resource{Kind: policy.KindUser, OwnerID: id}); err != nil {
		return err
	}
	if c.ID == id {
		return apperr.New(apperr.BusinessRule, "You cannot delete your own account")
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return db.AppError(err, "User", id)
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return db.AppError(err, "User", id)
	}
	s.audit(ctx, c, "delete_user", u.Email, "")
	return nil
}

// TeachersInGrade and StudentsInGrade back the Grade relationship fields.
func (s *Service) TeachersInGrade(ctx context.Context, gradeID int64) ([]models.User, error) {
	us, err := s.store.UsersInGrade(ctx, gradeID, models.RoleTeacher)
	return us, db.AppError(err, "Grade", gradeID)
}

func (s *Service) StudentsInGrade(ctx context.Context, gradeID int64) ([]models.User, error) {
	us, err := s.store.UsersInGrade(ctx, gradeID, models.RoleStudent)
	return us, db.AppError(err, "Grade", gradeID)
}

func (s *Service) SubjectTeachers(ctx context.Context, subjectID int64) ([]models.User, error) {
	us, err := s.store.TeachersOfSubject(ctx, subjectID)
	return us, db.AppError(err, "Subject", subjectID)
}

// UserSubjects lists the subjects a teacher is assigned to.
func (s *Service) UserSubjects(ctx context.Context, u models.User) ([]models.Subject, error) {
	if u.Role != models.RoleTeacher {
		return nil, nil
	}
	as, err := s.store.TeacherAssignments(ctx, u.ID)
	if err != nil {
		return nil, apperr.InternalError(err)
	}
	subjects, err := s.store.SubjectsByIDs(ctx, as.SubjectIDs)
	return subjects, db.AppError(err, "Subject", nil)
}

// UserGrades lists the grades a teacher teaches or a student is enrolled in.
func (s *Service) UserGrades(ctx context.Context, u models.User) ([]models.Grade, error) {
	var ids []int64
	switch u.Role {
	case models.RoleTeacher:
		as, err := s.store.TeacherAssignments(ctx, u.ID)
		if err != nil {
			return nil, apperr.InternalError(err)
		}
		ids = as.GradeIDs
	case models.RoleStudent:
		gs, err := s.store.StudentGradeIDs(ctx, u.ID)
		if err != nil {
			return nil, apperr.InternalError(err)
		}
		ids = gs
	default:
		return nil, nil
	}
	grades, err := s.store.GradesByIDs(ctx, ids)
	return grades, db.AppError(err, "Grade", nil)
}

func validateUser(u models.User) *apperr.Error {
	switch {
	case u.FirstName == "":
		return apperr.New(apperr.Validation, "First name is required").WithPath("firstName")
	case u.LastName == "":
		return apperr.New(apperr.Validation, "Last name is required").WithPath("lastName")
	case !validEmail(u.Email):
		return apperr.New(apperr.Validation, "Invalid email address %q", u.Email).WithPath("email")
	case !u.Role.Valid():
		return apperr.New(apperr.Validation, "Unknown role %q", u.Role).WithPath("role")
	case !u.Status.Valid():
		return apperr.New(apperr.Validation, "Unknown status %q", u.Status).WithPath("status")
	}
	return nil
}

func validEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}

func emailError(err error, email string) error {
	if apperr.Is(db.AppError(err, "User", nil), apperr.AlreadyExists) {
		return apperr.New(apperr.AlreadyExists, "A user with email %s already exists", email)
	}
	return db.AppError(err, "User", nil)
}

func actorName(c models.Caller) string {
	return fmt.Sprintf("%s#%d", strings.ToLower(string(c.Role)), c.ID)
}

package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"mcsh-server/apperr"
	"mcsh-server/auth"
	"mcsh-server/db"
	"mcsh-server/models"
)

// AuthPayload is returned by login and signup.
type AuthPayload struct {
	Token     string
	ExpiresAt time.Time
	User      models.User
}

type SignupInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Login checks the password and issues a bearer token. Unknown emails and
// wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (AuthPayload, error) {
	badCredentials := apperr.New(apperr.Unauthorized, "Invalid email or password")
	u, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, db.ErrNotFound) {
		return AuthPayload{}, badCredentials
	}
	if err != nil {
		return AuthPayload{}, apperr.InternalError(err)
	}
	ok, err := s.hasher.Check(u.PasswordHash, password)
	if err != nil {
		return AuthPayload{}, apperr.InternalError(err)
	}
	if !ok {
		return AuthPayload{}, badCredentials
	}
	if u.Status != models.UserActive {
		return AuthPayload{}, apperr.Denied("Account is %s", strings.ToLower(string(u.Status)))
	}

	now := s.now()
	if err := s.store.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.log.Warn("last login not recorded", zap.Int64("user", u.ID), zap.Error(err))
	} else {
		u.LastLogin = &now
	}
	return s.issue(u)
}

// Signup creates an ACTIVE student account when self sign-up is enabled.
func (s *Service) Signup(ctx context.Context, in SignupInput) (AuthPayload, error) {
	if !s.allowSignup {
		return AuthPayload{}, apperr.Denied("Sign-up is disabled; ask an administrator for an account")
	}
	u, err := s.newUser(ctx, CreateUserInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
		Role:      models.RoleStudent,
	}, "signup")
	if err != nil {
		return AuthPayload{}, err
	}
	s.log.Info("student signed up", zap.Int64("user", u.ID))
	return s.issue(u)
}

// Me returns the calling user.
func (s *Service) Me(ctx context.Context, c models.Caller) (models.User, error) {
	if c.Anonymous() {
		return models.User{}, apperr.Unauthenticated()
	}
	u, err := s.store.GetUser(ctx, c.ID)
	return u, db.AppError(err, "User", c.ID)
}

func (s *Service) issue(u models.User) (AuthPayload, error) {
	tok, exp, err := s.tokens.Issue(u)
	if err != nil {
		return AuthPayload{}, apperr.InternalError(err)
	}
	return AuthPayload{Token: tok, ExpiresAt: exp, User: u}, nil
}

// passwordHash maps a weak password to a validation error.
func (s *Service) passwordHash(pw string, path ...string) (string, error) {
	h, err := s.hasher.Hash(pw)
	if errors.Is(err, auth.ErrWeakPassword) {
		return "", apperr.New(apperr.Validation, "%s", err.Error()).WithPath(path...)
	}
	if err != nil {
		return "", apperr.InternalError(err)
	}
	return h, nil
}

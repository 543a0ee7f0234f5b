package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"mcsh-server/models"
)

func TestIssueAndParse(t *testing.T) {
	m := NewTokenManager("secret", "mcsh", time.Hour)
	tok, exp, err := m.Issue(models.User{ID: 42, Role: models.RoleTeacher, Email: "t@school.test"})
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	c, err := m.Parse(tok)
	require.NoError(t, err)
	require.Equal(t, models.Caller{ID: 42, Role: models.RoleTeacher}, c)
}

func TestParseRejects(t *testing.T) {
	m := NewTokenManager("secret", "mcsh", time.Hour)
	tok, _, err := m.Issue(models.User{ID: 1, Role: models.RoleStudent})
	require.NoError(t, err)

	_, err = NewTokenManager("other", "mcsh", time.Hour).Parse(tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenManager("secret", "someone-else", time.Hour).Parse(tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Parse("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	later := NewTokenManager("secret", "mcsh", time.Hour)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.Parse(tok)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseRejectsUnknownRole(t *testing.T) {
	c := claims{
		Role: "JANITOR",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			Issuer:    "mcsh",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = NewTokenManager("secret", "mcsh", time.Hour).Parse(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestHasher(t *testing.T) {
	h := Hasher{Cost: bcrypt.MinCost}
	_, err := h.Hash("short")
	require.ErrorIs(t, err, ErrWeakPassword)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	ok, err := h.Check(hash, "correct horse")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = h.Check(hash, "wrong horse")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCallerContext(t *testing.T) {
	require.True(t, CallerFrom(context.Background()).Anonymous())
	ctx := WithCaller(context.Background(), models.Caller{ID: 3, Role: models.RoleAdmin})
	require.Equal(t, int64(3), CallerFrom(ctx).ID)
}

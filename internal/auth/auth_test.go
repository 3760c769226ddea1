package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointments/internal/users"
)

func TestIssueAndVerify(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	u := users.User{ID: uuid.New(), Email: "doc@clinic.test", Role: users.RoleDoctor}

	raw, err := m.Issue(u)
	require.NoError(t, err)

	claims, err := m.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, u.Email, claims.Email)
	assert.Equal(t, users.RoleDoctor, claims.Role)
	assert.Equal(t, u.ID.String(), claims.Subject)
	assert.True(t, claims.HasRole(users.RoleAdmin, users.RoleDoctor))
	assert.False(t, claims.HasRole(users.RolePatient))
}

func TestVerifyFailures(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	u := users.User{ID: uuid.New(), Email: "p@clinic.test", Role: users.RolePatient}

	_, err := m.Verify("")
	require.ErrorIs(t, err, ErrTokenMissing)

	_, err = m.Verify("not.a.jwt")
	require.ErrorIs(t, err, ErrTokenInvalid)

	other, err := NewTokenManager("other-secret", time.Hour).Issue(u)
	require.NoError(t, err)
	_, err = m.Verify(other)
	require.ErrorIs(t, err, ErrTokenInvalid)

	expired, err := NewTokenManager("secret", -time.Minute).Issue(u)
	require.NoError(t, err)
	_, err = m.Verify(expired)
	require.ErrorIs(t, err, ErrTokenExpired)

	// tokens signed with another algorithm are refused
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Email: u.Email, Role: u.Role}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Verify(none)
	require.ErrorIs(t, err, ErrTokenInvalid)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Email: u.Email, Role: "pharmacist"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = m.Verify(badRole)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	c := &Claims{Email: "a@b.c", Role: users.RoleAdmin}
	got, ok := ClaimsFromContext(WithClaims(context.Background(), c))
	require.True(t, ok)
	assert.Same(t, c, got)
}

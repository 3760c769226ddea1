package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()

	addr := "12 Harley St"
	doc, err := d.Create(ctx, User{Name: "Dr. Ada", Email: " Ada@Clinic.test ", Role: RoleDoctor, ClinicAddress: &addr})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, doc.ID)
	assert.Equal(t, "ada@clinic.test", doc.Email)

	_, err = d.Create(ctx, User{Name: "Dup", Email: "ADA@clinic.test", Role: RolePatient})
	require.ErrorIs(t, err, ErrEmailTaken)

	byEmail, err := d.FindByEmail(ctx, "ada@CLINIC.test")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, byEmail.ID)

	byID, err := d.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Ada", byID.Name)

	_, err = d.FindByID(ctx, uuid.New())
	require.ErrorIs(t, err, ErrUserNotFound)

	missing := uuid.New()
	found, err := d.FindByIDs(ctx, []uuid.UUID{doc.ID, missing})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, doc.ID)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleDoctor.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("nurse").Valid())
}

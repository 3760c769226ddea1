package users

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/apperr"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RolePatient, RoleAdmin:
		return true
	}
	return false
}

var (
	ErrUserNotFound = apperr.NotFound("user.not_found")
	ErrEmailTaken   = apperr.Validation("user.email.taken")
)

type User struct {
	ID            uuid.UUID
	Name          string
	Email         string
	Role          Role
	ClinicAddress *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Directory resolves the people behind bookings. Profiles themselves are
// managed elsewhere; Create exists for seeding and tests.
type Directory interface {
	Create(ctx context.Context, u User) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	// FindByIDs skips unknown ids instead of failing.
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]User, error)
}

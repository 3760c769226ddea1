package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]User
	byEmail map[string]uuid.UUID
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[uuid.UUID]User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (d *MemoryDirectory) Create(_ context.Context, u User) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u.Email = normalizeEmail(u.Email)
	if _, exists := d.byEmail[u.Email]; exists {
		return nil, ErrEmailTaken
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now

	d.byID[u.ID] = u
	d.byEmail[u.Email] = u.ID
	return &u, nil
}

func (d *MemoryDirectory) FindByEmail(_ context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := d.byID[id]
	return &u, nil
}

func (d *MemoryDirectory) FindByID(_ context.Context, id uuid.UUID) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (d *MemoryDirectory) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[uuid.UUID]User, len(ids))
	for _, id := range ids {
		if u, ok := d.byID[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

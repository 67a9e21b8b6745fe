package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/admin"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/google/uuid"
)

type AdminsRepo struct {
	mu    sync.RWMutex
	items map[string]admin.Admin // keyed by normalized email
}

func NewAdminsRepo() *AdminsRepo {
	return &AdminsRepo{items: make(map[string]admin.Admin)}
}

func (r *AdminsRepo) Create(ctx context.Context, email, passwordHash string) (admin.Admin, error) {
	a := admin.Admin{
		ID:           uuid.NewString(),
		Email:        user.NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[a.Email]; ok {
		return admin.Admin{}, admin.ErrEmailTaken
	}
	r.items[a.Email] = a

	return a, nil
}

func (r *AdminsRepo) GetByEmail(ctx context.Context, email string) (admin.Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[user.NormalizeEmail(email)]
	if !ok {
		return admin.Admin{}, admin.ErrNotFound
	}

	return a, nil
}

package memory

import (
	"context"
	"sync"

	"github.com/geocoder89/accounthub/internal/domain/contact"
)

type ContactsRepo struct {
	mu    sync.RWMutex
	items []contact.Submission
}

func NewContactsRepo() *ContactsRepo {
	return &ContactsRepo{}
}

func (r *ContactsRepo) Create(ctx context.Context, s contact.Submission) (contact.Submission, error) {
	r.mu.Lock()
	r.items = append(r.items, s)
	r.mu.Unlock()

	return s, nil
}

// List returns submissions newest first.
func (r *ContactsRepo) List(ctx context.Context, limit int) ([]contact.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contact.Submission, 0, len(r.items))
	for i := len(r.items) - 1; i >= 0; i-- {
		out = append(out, r.items[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out, nil
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo keeps users in a map. Every method holds the lock for its whole
// read-modify-write, so conditional writes behave like a single-row UPDATE.
type UsersRepo struct {
	mu      sync.RWMutex
	items   map[string]user.User
	byEmail map[string]string
	now     func() time.Time
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:   make(map[string]user.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *UsersRepo) Create(ctx context.Context, in user.NewUser) (user.User, error) {
	now := r.now().UTC()
	email := user.NormalizeEmail(in.Email)

	u := user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		Verified:     in.Verified,
		Profile:      in.Profile,
		Payment:      user.Payment{PaymentStatus: user.PaymentUnpaid},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[email]; taken {
		return user.User{}, user.ErrEmailTaken
	}

	r.items[u.ID] = u
	r.byEmail[email] = u.ID

	return clone(u), nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return clone(u), nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[user.NormalizeEmail(email)]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return clone(r.items[id]), nil
}

func (r *UsersRepo) List(ctx context.Context, filter user.ListFilter) ([]user.User, error) {
	r.mu.RLock()
	all := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		all = append(all, clone(u))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	out := make([]user.User, 0, len(all))
	for _, u := range all {
		if !filter.AfterCreatedAt.IsZero() && !after(u, filter.AfterCreatedAt, filter.AfterID) {
			continue
		}
		out = append(out, u)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}

	return out, nil
}

func (r *UsersRepo) SaveCode(ctx context.Context, id string, flow user.Flow, code user.PendingCode) error {
	return r.mutate(id, func(u *user.User) error {
		c := code
		switch flow {
		case user.FlowEmailVerify:
			u.VerificationCode = &c
		case user.FlowPasswordReset:
			u.ForgotPasswordCode = &c
		}
		return nil
	})
}

func (r *UsersRepo) ConsumeCode(ctx context.Context, id string, flow user.Flow, hash string, change user.Change) error {
	return r.mutate(id, func(u *user.User) error {
		pending := u.Pending(flow)
		if pending == nil || pending.Hash != hash {
			return user.ErrCodeNotPending
		}

		switch flow {
		case user.FlowEmailVerify:
			u.VerificationCode = nil
		case user.FlowPasswordReset:
			u.ForgotPasswordCode = nil
		}

		if change.Verified != nil {
			u.Verified = *change.Verified
		}
		if change.PasswordHash != nil {
			u.PasswordHash = *change.PasswordHash
		}
		return nil
	})
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, id, oldHash, newHash string) error {
	return r.mutate(id, func(u *user.User) error {
		if u.PasswordHash != oldHash {
			return user.ErrStaleWrite
		}
		u.PasswordHash = newHash
		return nil
	})
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, change user.ProfileChange) (user.User, error) {
	var out user.User

	err := r.mutate(id, func(u *user.User) error {
		if change.Email != nil {
			email := user.NormalizeEmail(*change.Email)
			if owner, taken := r.byEmail[email]; taken && owner != id {
				return user.ErrEmailTaken
			}
			delete(r.byEmail, u.Email)
			r.byEmail[email] = id
			change.Email = &email
		}

		change.Apply(u)
		out = *u
		return nil
	})
	if err != nil {
		return user.User{}, err
	}

	return clone(out), nil
}

func (r *UsersRepo) ApplyPayment(ctx context.Context, id string, p user.Payment) (user.User, error) {
	var out user.User

	err := r.mutate(id, func(u *user.User) error {
		u.Payment = p
		out = *u
		return nil
	})
	if err != nil {
		return user.User{}, err
	}

	return clone(out), nil
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	delete(r.items, id)
	delete(r.byEmail, u.Email)

	return nil
}

func (r *UsersRepo) mutate(id string, fn func(u *user.User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	u = clone(u)
	if err := fn(&u); err != nil {
		return err
	}

	u.UpdatedAt = r.now().UTC()
	r.items[id] = u

	return nil
}

func after(u user.User, createdAt time.Time, id string) bool {
	if u.CreatedAt.Equal(createdAt) {
		return u.ID > id
	}
	return u.CreatedAt.After(createdAt)
}

func clone(u user.User) user.User {
	if u.VerificationCode != nil {
		c := *u.VerificationCode
		u.VerificationCode = &c
	}
	if u.ForgotPasswordCode != nil {
		c := *u.ForgotPasswordCode
		u.ForgotPasswordCode = &c
	}
	if u.PaymentMethodTypes != nil {
		u.PaymentMethodTypes = append([]string(nil), u.PaymentMethodTypes...)
	}
	if u.LineItems != nil {
		u.LineItems = append([]user.LineItem(nil), u.LineItems...)
	}
	return u
}

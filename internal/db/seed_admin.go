package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/accounthub/internal/domain/admin"
)

type AdminSeeder interface {
	GetByEmail(ctx context.Context, email string) (admin.Admin, error)
	Create(ctx context.Context, email, passwordHash string) (admin.Admin, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// EnsureAdmin creates the configured admin when it does not exist yet. An
// existing admin's password is left untouched.
func EnsureAdmin(ctx context.Context, admins AdminSeeder, hasher PasswordHasher, email, password string) (created bool, err error) {
	if email == "" || password == "" {
		return false, nil
	}

	_, err = admins.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, admin.ErrNotFound) {
		return false, fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return false, err
	}

	if _, err := admins.Create(ctx, email, hash); err != nil {
		if errors.Is(err, admin.ErrEmailTaken) {
			return false, nil
		}
		return false, fmt.Errorf("create admin: %w", err)
	}

	return true, nil
}

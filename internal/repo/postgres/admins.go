package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/admin"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AdminsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewAdminsRepo(pool *pgxpool.Pool, prom *observability.Prom) *AdminsRepo {
	return &AdminsRepo{pool: pool, prom: prom}
}

func (r *AdminsRepo) Create(ctx context.Context, email, passwordHash string) (a admin.Admin, err error) {
	err = r.prom.ObserveDB("admins.create", func() error {
		return r.pool.QueryRow(ctx, `
			INSERT INTO admins (id, email, password_hash, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, email, password_hash, created_at`,
			uuid.NewString(), user.NormalizeEmail(email), passwordHash, time.Now().UTC(),
		).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	})
	if err != nil {
		if IsUniqueViolation(err, "admins_email_uniq") {
			return admin.Admin{}, admin.ErrEmailTaken
		}
		return admin.Admin{}, err
	}

	return a, nil
}

func (r *AdminsRepo) GetByEmail(ctx context.Context, email string) (a admin.Admin, err error) {
	err = r.prom.ObserveDB("admins.get_by_email", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, email, password_hash, created_at
			FROM admins
			WHERE email = $1`, user.NormalizeEmail(email),
		).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return admin.Admin{}, admin.ErrNotFound
	}

	return a, err
}

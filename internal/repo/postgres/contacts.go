package postgres

import (
	"context"

	"github.com/geocoder89/accounthub/internal/domain/contact"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ContactsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewContactsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ContactsRepo {
	return &ContactsRepo{pool: pool, prom: prom}
}

func (r *ContactsRepo) Create(ctx context.Context, s contact.Submission) (contact.Submission, error) {
	err := r.prom.ObserveDB("contacts.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO contacts (id, first_name, last_name, email, phone, company, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.ID, s.FirstName, s.LastName, s.Email, s.Phone, s.Company, s.Reason, s.CreatedAt,
		)
		return err
	})
	if err != nil {
		return contact.Submission{}, err
	}

	return s, nil
}

// List returns submissions newest first.
func (r *ContactsRepo) List(ctx context.Context, limit int) ([]contact.Submission, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows pgx.Rows
	err := r.prom.ObserveDB("contacts.list", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `
			SELECT id, first_name, last_name, email, phone, company, reason, created_at
			FROM contacts
			ORDER BY created_at DESC, id DESC
			LIMIT $1`, limit)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]contact.Submission, 0, limit)
	for rows.Next() {
		var s contact.Submission
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.Phone, &s.Company, &s.Reason, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

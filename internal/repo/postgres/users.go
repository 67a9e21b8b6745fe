package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const usersEmailUniq = "users_email_uniq"

const userColumns = `
	id, email, password_hash, verified,
	verification_code_hash, verification_code_issued_at,
	forgot_password_code_hash, forgot_password_code_issued_at,
	first_name, last_name, company_name, contact_name, title, division,
	phone_number, company_website, how_did_you_hear,
	stripe_session_id, subscription_plan, subscription_status, last_payment_date,
	payment_status, amount_total, currency, payment_intent_id, payment_method_types,
	payment_date, line_items,
	created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	return r.prom.ObserveDB(op, fn)
}

func (r *UsersRepo) Create(ctx context.Context, in user.NewUser) (u user.User, err error) {
	now := time.Now().UTC()

	err = r.observe("users.create", func() error {
		return scanUser(r.pool.QueryRow(ctx, `
			INSERT INTO users (
				id, email, password_hash, verified,
				first_name, last_name, company_name, contact_name, title, division,
				phone_number, company_website, how_did_you_hear,
				created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
			RETURNING `+userColumns,
			uuid.NewString(), user.NormalizeEmail(in.Email), in.PasswordHash, in.Verified,
			in.Profile.FirstName, in.Profile.LastName, in.Profile.CompanyName, in.Profile.ContactName,
			in.Profile.Title, in.Profile.Division, in.Profile.PhoneNumber, in.Profile.CompanyWebsite,
			in.Profile.HowDidYouHear, now,
		), &u)
	})
	if err != nil {
		if IsUniqueViolation(err, usersEmailUniq) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (u user.User, err error) {
	err = r.observe("users.get_by_id", func() error {
		return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id), &u)
	})

	return u, mapNotFound(err)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (u user.User, err error) {
	err = r.observe("users.get_by_email", func() error {
		return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, user.NormalizeEmail(email)), &u)
	})

	return u, mapNotFound(err)
}

func (r *UsersRepo) List(ctx context.Context, filter user.ListFilter) ([]user.User, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	var rows pgx.Rows
	err := r.observe("users.list", func() error {
		var qerr error
		if filter.AfterCreatedAt.IsZero() {
			rows, qerr = r.pool.Query(ctx, `
				SELECT `+userColumns+`
				FROM users
				ORDER BY created_at ASC, id ASC
				LIMIT $1`, limit)
			return qerr
		}

		rows, qerr = r.pool.Query(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE (created_at, id) > ($1, $2::uuid)
			ORDER BY created_at ASC, id ASC
			LIMIT $3`, filter.AfterCreatedAt, filter.AfterID, limit)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]user.User, 0, limit)
	for rows.Next() {
		var u user.User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}

	return out, rows.Err()
}

func (r *UsersRepo) SaveCode(ctx context.Context, id string, flow user.Flow, code user.PendingCode) error {
	hashCol, atCol, err := codeColumns(flow)
	if err != nil {
		return err
	}

	var affected int64
	err = r.observe("users.save_code", func() error {
		tag, e := r.pool.Exec(ctx, `
			UPDATE users
			SET `+hashCol+` = $2, `+atCol+` = $3, updated_at = $4
			WHERE id = $1`,
			id, code.Hash, code.IssuedAt, time.Now().UTC())
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return mapNotFound(err)
	}
	if affected == 0 {
		return user.ErrNotFound
	}

	return nil
}

// ConsumeCode clears the pending code only while its hash is still the one
// the caller checked, so a code verifies at most once.
func (r *UsersRepo) ConsumeCode(ctx context.Context, id string, flow user.Flow, hash string, change user.Change) error {
	hashCol, atCol, err := codeColumns(flow)
	if err != nil {
		return err
	}

	var affected int64
	err = r.observe("users.consume_code", func() error {
		tag, e := r.pool.Exec(ctx, `
			UPDATE users
			SET `+hashCol+` = NULL,
			    `+atCol+` = NULL,
			    verified = COALESCE($3::boolean, verified),
			    password_hash = COALESCE($4::text, password_hash),
			    updated_at = $5
			WHERE id = $1 AND `+hashCol+` = $2`,
			id, hash, change.Verified, change.PasswordHash, time.Now().UTC())
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return mapNotFound(err)
	}
	if affected == 0 {
		return user.ErrCodeNotPending
	}

	return nil
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, id, oldHash, newHash string) error {
	var affected int64
	err := r.observe("users.update_password", func() error {
		tag, e := r.pool.Exec(ctx, `
			UPDATE users
			SET password_hash = $3, updated_at = $4
			WHERE id = $1 AND password_hash = $2`,
			id, oldHash, newHash, time.Now().UTC())
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return mapNotFound(err)
	}

	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return user.ErrStaleWrite
	}

	return nil
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, c user.ProfileChange) (u user.User, err error) {
	var email *string
	if c.Email != nil {
		e := user.NormalizeEmail(*c.Email)
		email = &e
	}

	err = r.observe("users.update_profile", func() error {
		return scanUser(r.pool.QueryRow(ctx, `
			UPDATE users
			SET email            = COALESCE($2, email),
			    first_name       = COALESCE($3, first_name),
			    last_name        = COALESCE($4, last_name),
			    company_name     = COALESCE($5, company_name),
			    contact_name     = COALESCE($6, contact_name),
			    title            = COALESCE($7, title),
			    division         = COALESCE($8, division),
			    phone_number     = COALESCE($9, phone_number),
			    company_website  = COALESCE($10, company_website),
			    how_did_you_hear = COALESCE($11, how_did_you_hear),
			    verified         = COALESCE($12::boolean, verified),
			    updated_at       = $13
			WHERE id = $1
			RETURNING `+userColumns,
			id, email, c.FirstName, c.LastName, c.CompanyName, c.ContactName, c.Title,
			c.Division, c.PhoneNumber, c.CompanyWebsite, c.HowDidYouHear, c.Verified,
			time.Now().UTC(),
		), &u)
	})
	if err != nil {
		if IsUniqueViolation(err, usersEmailUniq) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, mapNotFound(err)
	}

	return u, nil
}

func (r *UsersRepo) ApplyPayment(ctx context.Context, id string, p user.Payment) (u user.User, err error) {
	methods := p.PaymentMethodTypes
	if methods == nil {
		methods = []string{}
	}
	items := p.LineItems
	if items == nil {
		items = []user.LineItem{}
	}
	status := p.PaymentStatus
	if status == "" {
		status = user.PaymentUnpaid
	}

	err = r.observe("users.apply_payment", func() error {
		return scanUser(r.pool.QueryRow(ctx, `
			UPDATE users
			SET stripe_session_id    = $2,
			    subscription_plan    = $3,
			    subscription_status  = $4,
			    last_payment_date    = $5,
			    payment_status       = $6,
			    amount_total         = $7,
			    currency             = $8,
			    payment_intent_id    = $9,
			    payment_method_types = $10,
			    payment_date         = $11,
			    line_items           = $12,
			    updated_at           = $13
			WHERE id = $1
			RETURNING `+userColumns,
			id, p.StripeSessionID, p.SubscriptionPlan, p.SubscriptionStatus, p.LastPaymentDate,
			string(status), p.AmountTotal, p.Currency, p.PaymentIntentID, methods,
			p.PaymentDate, items, time.Now().UTC(),
		), &u)
	})

	return u, mapNotFound(err)
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	var affected int64
	err := r.observe("users.delete", func() error {
		tag, e := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return mapNotFound(err)
	}
	if affected == 0 {
		return user.ErrNotFound
	}

	return nil
}

func codeColumns(flow user.Flow) (hashCol, atCol string, err error) {
	switch flow {
	case user.FlowEmailVerify:
		return "verification_code_hash", "verification_code_issued_at", nil
	case user.FlowPasswordReset:
		return "forgot_password_code_hash", "forgot_password_code_issued_at", nil
	default:
		return "", "", fmt.Errorf("unknown flow %q", flow)
	}
}

func scanUser(row pgx.Row, u *user.User) error {
	var (
		vHash, fHash *string
		vAt, fAt     *time.Time
		status       string
	)

	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Verified,
		&vHash, &vAt,
		&fHash, &fAt,
		&u.FirstName, &u.LastName, &u.CompanyName, &u.ContactName, &u.Title, &u.Division,
		&u.PhoneNumber, &u.CompanyWebsite, &u.HowDidYouHear,
		&u.StripeSessionID, &u.SubscriptionPlan, &u.SubscriptionStatus, &u.LastPaymentDate,
		&status, &u.AmountTotal, &u.Currency, &u.PaymentIntentID, &u.PaymentMethodTypes,
		&u.PaymentDate, &u.LineItems,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return err
	}

	u.PaymentStatus = user.PaymentStatus(status)
	u.VerificationCode = pendingFrom(vHash, vAt)
	u.ForgotPasswordCode = pendingFrom(fHash, fAt)

	return nil
}

func pendingFrom(hash *string, at *time.Time) *user.PendingCode {
	if hash == nil || at == nil {
		return nil
	}

	return &user.PendingCode{Hash: *hash, IssuedAt: at.UTC()}
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
		return user.ErrNotFound
	}

	return err
}

package handlers

import (
	"context"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/domain/admin"
	"github.com/geocoder89/accounthub/internal/domain/contact"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/verification"
)

// Small interfaces so tests can fake each collaborator.

type UserStore interface {
	Create(ctx context.Context, in user.NewUser) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	List(ctx context.Context, filter user.ListFilter) ([]user.User, error)
	UpdatePassword(ctx context.Context, id, oldHash, newHash string) error
	UpdateProfile(ctx context.Context, id string, change user.ProfileChange) (user.User, error)
	ApplyPayment(ctx context.Context, id string, p user.Payment) (user.User, error)
	Delete(ctx context.Context, id string) error
}

type AdminReader interface {
	GetByEmail(ctx context.Context, email string) (admin.Admin, error)
}

type ContactStore interface {
	Create(ctx context.Context, s contact.Submission) (contact.Submission, error)
	List(ctx context.Context, limit int) ([]contact.Submission, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) (bool, error)
}

type TokenIssuer interface {
	Issue(id auth.Identity) (token string, expiresAt time.Time, err error)
}

type CodeLifecycle interface {
	Window(flow user.Flow) time.Duration
	Issue(ctx context.Context, u user.User, flow user.Flow) (string, error)
	Verify(ctx context.Context, u user.User, flow user.Flow, submitted string, change user.Change) (verification.Outcome, error)
}

type CodeMailer interface {
	SendVerificationCode(ctx context.Context, to, code string, window time.Duration) error
	SendPasswordReset(ctx context.Context, to, code string, window time.Duration) error
}

type ContactMailer interface {
	SendContactNotification(ctx context.Context, s contact.Submission) error
}

func identityOf(u user.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Email: u.Email, Verified: u.Verified, Role: auth.RoleUser}
}

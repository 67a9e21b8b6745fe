package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/repo/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, repo *memory.UsersRepo, email string) user.User {
	t.Helper()

	u, err := repo.Create(context.Background(), user.NewUser{
		Email:        email,
		PasswordHash: "hash-" + email,
		Profile:      user.Profile{FirstName: "Ann", LastName: "Lee"},
	})
	require.NoError(t, err)

	return u
}

func TestUsersRepo_CreateNormalizesAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUsersRepo()

	u := newUser(t, repo, "  A@B.com ")
	assert.Equal(t, "a@b.com", u.Email)
	assert.False(t, u.Verified)
	assert.Equal(t, user.PaymentUnpaid, u.PaymentStatus)

	_, err := repo.Create(ctx, user.NewUser{Email: "a@b.COM", PasswordHash: "x"})
	require.ErrorIs(t, err, user.ErrEmailTaken)

	got, err := repo.GetByEmail(ctx, "A@b.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	all, err := repo.List(ctx, user.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUsersRepo_GetMissing(t *testing.T) {
	repo := memory.NewUsersRepo()

	_, err := repo.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, user.ErrNotFound)

	_, err = repo.GetByEmail(context.Background(), "nope@b.com")
	require.ErrorIs(t, err, user.ErrNotFound)

	require.ErrorIs(t, repo.Delete(context.Background(), "nope"), user.ErrNotFound)
}

func TestUsersRepo_ConsumeCodeIsCompareAndClear(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUsersRepo()
	u := newUser(t, repo, "a@b.com")

	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveCode(ctx, u.ID, user.FlowEmailVerify, user.PendingCode{Hash: "h1", IssuedAt: issued}))

	verified := true
	err := repo.ConsumeCode(ctx, u.ID, user.FlowEmailVerify, "other", user.Change{Verified: &verified})
	require.ErrorIs(t, err, user.ErrCodeNotPending)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VerificationCode)
	assert.False(t, got.Verified)

	require.NoError(t, repo.ConsumeCode(ctx, u.ID, user.FlowEmailVerify, "h1", user.Change{Verified: &verified}))

	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got.VerificationCode)
	assert.True(t, got.Verified)

	err = repo.ConsumeCode(ctx, u.ID, user.FlowEmailVerify, "h1", user.Change{})
	require.ErrorIs(t, err, user.ErrCodeNotPending)
}

func TestUsersRepo_ConsumeResetCodeSetsPassword(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUsersRepo()
	u := newUser(t, repo, "a@b.com")

	require.NoError(t, repo.SaveCode(ctx, u.ID, user.FlowPasswordReset, user.PendingCode{Hash: "r1", IssuedAt: time.Now()}))

	newHash := "new-hash"
	require.NoError(t, repo.ConsumeCode(ctx, u.ID, user.FlowPasswordReset, "r1", user.Change{PasswordHash: &newHash}))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Nil(t, got.ForgotPasswordCode)
	assert.False(t, got.Verified)
}

func TestUsersRepo_UpdatePasswordIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUsersRepo()
	u := newUser(t, repo, "a@b.com")

	require.ErrorIs(t, repo.UpdatePassword(ctx, u.ID, "stale", "next"), user.ErrStaleWrite)
	require.NoError(t, repo.UpdatePassword(ctx, u.ID, u.PasswordHash, "next"))
	require.ErrorIs(t, repo.UpdatePassword(ctx, u.ID, u.PasswordHash, "again"), user.ErrStaleWrite)
}

func TestUsersRepo_UpdateProfileEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUsersRepo()
	a := newUser(t, repo, "a@b.com")
	newUser(t, repo, "c@d.com")

	taken := "C@D.com"
	_, err := repo.UpdateProfile(ctx, a.ID, user.ProfileChange{Email: &taken})
	require.ErrorIs(t, err, user.ErrEmailTaken)

	fresh := "Fresh@B.com"
	got, err := repo.UpdateProfile(ctx, a.ID, user.ProfileChange{Email: &fresh})
	require.NoError(t, err)
	assert.Equal(t, "fresh@b.com", got.Email)

	_, err = repo.GetByEmail(ctx, "a@b.com")
	require.ErrorIs(t, err, user.ErrNotFound)

	// the old address is free again
	newUser(t, repo, "a@b.com")
}

func TestUsersRepo_ListPaginatesByCreatedAtAndID(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUsersRepo()
	for _, e := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		newUser(t, repo, e)
	}

	first, err := repo.List(ctx, user.ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)

	last := first[len(first)-1]
	rest, err := repo.List(ctx, user.ListFilter{Limit: 2, AfterCreatedAt: last.CreatedAt, AfterID: last.ID})
	require.NoError(t, err)
	require.Len(t, rest, 1)

	seen := map[string]bool{first[0].ID: true, first[1].ID: true}
	assert.False(t, seen[rest[0].ID])
}

func TestUsersRepo_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUsersRepo()
	u := newUser(t, repo, "a@b.com")
	require.NoError(t, repo.SaveCode(ctx, u.ID, user.FlowEmailVerify, user.PendingCode{Hash: "h", IssuedAt: time.Now()}))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	got.VerificationCode.Hash = "tampered"

	again, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "h", again.VerificationCode.Hash)
}

func TestUsersRepo_ApplyPayment(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUsersRepo()
	u := newUser(t, repo, "a@b.com")

	paidAt := time.Now().UTC()
	got, err := repo.ApplyPayment(ctx, u.ID, user.Payment{
		StripeSessionID: "cs_test_1",
		PaymentStatus:   user.PaymentPaid,
		AmountTotal:     5000,
		Currency:        "usd",
		PaymentDate:     &paidAt,
		LineItems:       []user.LineItem{{Description: "Gold", Quantity: 1, AmountTotal: 5000, Currency: "usd"}},
	})
	require.NoError(t, err)
	assert.Equal(t, user.PaymentPaid, got.PaymentStatus)
	assert.Len(t, got.LineItems, 1)
}

func TestAdminsRepo(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAdminsRepo()

	a, err := repo.Create(ctx, " Root@Site.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, "root@site.com", a.Email)

	_, err = repo.Create(ctx, "root@site.com", "hash")
	require.Error(t, err)

	got, err := repo.GetByEmail(ctx, "ROOT@site.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/geocoder89/accounthub/internal/domain/admin"
	"github.com/geocoder89/accounthub/internal/domain/user"
	repo "github.com/geocoder89/accounthub/internal/repo/mongo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

var uri string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		panic(err)
	}
	uri = fmt.Sprintf("mongodb://%s:%s", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newDB(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	client, db, err := repo.Connect(ctx, uri, fmt.Sprintf("accounthub_%d", time.Now().UnixNano()))
	require.NoError(t, err)
	require.NoError(t, repo.EnsureIndexes(ctx, db))

	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestUsersRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	users := repo.NewUsersRepo(newDB(t), nil)

	u, err := users.Create(ctx, user.NewUser{Email: "Ann@Example.com ", PasswordHash: "h0"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)

	_, err = users.Create(ctx, user.NewUser{Email: "ann@example.com", PasswordHash: "x"})
	require.ErrorIs(t, err, user.ErrEmailTaken)

	issued := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, users.SaveCode(ctx, u.ID, user.FlowPasswordReset, user.PendingCode{Hash: "r1", IssuedAt: issued}))

	got, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ForgotPasswordCode)
	assert.True(t, issued.Equal(got.ForgotPasswordCode.IssuedAt))
	assert.Nil(t, got.VerificationCode)

	next := "h1"
	require.ErrorIs(t, users.ConsumeCode(ctx, u.ID, user.FlowPasswordReset, "nope", user.Change{PasswordHash: &next}), user.ErrCodeNotPending)
	require.NoError(t, users.ConsumeCode(ctx, u.ID, user.FlowPasswordReset, "r1", user.Change{PasswordHash: &next}))
	require.ErrorIs(t, users.ConsumeCode(ctx, u.ID, user.FlowPasswordReset, "r1", user.Change{}), user.ErrCodeNotPending)

	got, err = users.GetByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, "h1", got.PasswordHash)
	assert.Nil(t, got.ForgotPasswordCode)

	require.ErrorIs(t, users.UpdatePassword(ctx, u.ID, "h0", "h2"), user.ErrStaleWrite)
	require.NoError(t, users.UpdatePassword(ctx, u.ID, "h1", "h2"))
	require.ErrorIs(t, users.UpdatePassword(ctx, "missing", "h1", "h2"), user.ErrNotFound)

	other, err := users.Create(ctx, user.NewUser{Email: "bob@example.com", PasswordHash: "h"})
	require.NoError(t, err)
	taken := "ann@example.com"
	_, err = users.UpdateProfile(ctx, other.ID, user.ProfileChange{Email: &taken})
	require.ErrorIs(t, err, user.ErrEmailTaken)

	title := "CTO"
	got, err = users.UpdateProfile(ctx, u.ID, user.ProfileChange{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "CTO", got.Title)

	page, err := users.List(ctx, user.ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	rest, err := users.List(ctx, user.ListFilter{Limit: 5, AfterCreatedAt: page[0].CreatedAt, AfterID: page[0].ID})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotEqual(t, page[0].ID, rest[0].ID)

	require.NoError(t, users.Delete(ctx, u.ID))
	_, err = users.GetByID(ctx, u.ID)
	require.ErrorIs(t, err, user.ErrNotFound)
}

func TestAdminsRepo(t *testing.T) {
	ctx := context.Background()
	admins := repo.NewAdminsRepo(newDB(t), nil)

	_, err := admins.Create(ctx, "root@site.com", "hash")
	require.NoError(t, err)
	_, err = admins.Create(ctx, "ROOT@site.com", "hash")
	require.ErrorIs(t, err, admin.ErrEmailTaken)

	_, err = admins.GetByEmail(ctx, "nobody@site.com")
	require.ErrorIs(t, err, admin.ErrNotFound)
}

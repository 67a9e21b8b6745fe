package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/handlers"
)

func newAuthHandler(users *fakeUsers) *handlers.AuthHandler {
	return handlers.NewAuthHandler(users, plainHasher{}, auth.NewManager(testSecret, time.Hour), handlers.CookieConfig{})
}

func TestSignUpHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		createErr  error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			body:       `{"email":"a@b.com","password":"Secret123!","firstName":"Ann","lastName":"Lee"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "padded mixed-case email",
			body:       `{"email":"  Ann.Lee@B.com ","password":"Secret123!","firstName":"Ann","lastName":"Lee"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "weak password",
			body:       `{"email":"a@b.com","password":"secret","firstName":"Ann","lastName":"Lee"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_request",
		},
		{
			name:       "short first name",
			body:       `{"email":"a@b.com","password":"Secret123!","firstName":"A","lastName":"Lee"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_request",
		},
		{
			name:       "email taken",
			body:       `{"email":"a@b.com","password":"Secret123!","firstName":"Ann","lastName":"Lee"}`,
			createErr:  user.ErrEmailTaken,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "email_taken",
		},
		{
			name:       "store failure",
			body:       `{"email":"a@b.com","password":"Secret123!","firstName":"Ann","lastName":"Lee"}`,
			createErr:  errors.New("db down"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var created user.NewUser
			repo := &fakeUsers{
				createFn: func(ctx context.Context, in user.NewUser) (user.User, error) {
					created = in
					if tt.createErr != nil {
						return user.User{}, tt.createErr
					}
					return user.User{ID: "u-1", Email: in.Email, PasswordHash: in.PasswordHash, Profile: in.Profile}, nil
				},
			}

			r := setupRouter(http.MethodPost, "/auth/signup", newAuthHandler(repo).SignUp)
			w := doJSON(r, http.MethodPost, "/auth/signup", tt.body, "")

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				if got := decodeError(t, w).Error.Code; got != tt.wantCode {
					t.Fatalf("got code %q, want %q", got, tt.wantCode)
				}
				return
			}

			body := decodeBody(t, w)
			if body["token"] == "" || body["token"] == nil {
				t.Fatalf("expected token in body=%s", w.Body.String())
			}
			if strings.Contains(w.Body.String(), "hashed:") {
				t.Fatalf("password hash leaked in body=%s", w.Body.String())
			}
			if created.Email == "" || created.Email != user.NormalizeEmail(created.Email) {
				t.Fatalf("stored email %q is not normalized", created.Email)
			}
			if created.PasswordHash != "hashed:Secret123!" {
				t.Fatalf("stored hash %q, want hashed password", created.PasswordHash)
			}
			if !strings.HasPrefix(w.Header().Get("Set-Cookie"), "Authorization=") {
				t.Fatalf("expected Authorization cookie, got %q", w.Header().Get("Set-Cookie"))
			}
		})
	}
}

func TestSignInHandler(t *testing.T) {
	stored := user.User{ID: "u-1", Email: "a@b.com", PasswordHash: "hashed:Secret123!"}

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"ok", `{"email":"a@b.com","password":"Secret123!"}`, http.StatusOK},
		{"mixed case email", `{"email":"A@B.com","password":"Secret123!"}`, http.StatusOK},
		{"padded email", `{"email":"  a@b.com ","password":"Secret123!"}`, http.StatusOK},
		{"wrong password", `{"email":"a@b.com","password":"Wrong123!"}`, http.StatusUnauthorized},
		{"unknown email", `{"email":"x@b.com","password":"Secret123!"}`, http.StatusUnauthorized},
		{"invalid body", `{"email":"a@b.com"}`, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeUsers{
				getByEmailFn: func(ctx context.Context, email string) (user.User, error) {
					if email == stored.Email {
						return stored, nil
					}
					return user.User{}, user.ErrNotFound
				},
			}

			r := setupRouter(http.MethodPost, "/auth/signin", newAuthHandler(repo).SignIn)
			w := doJSON(r, http.MethodPost, "/auth/signin", tt.body, "")

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantStatus != http.StatusOK {
				return
			}

			token, _ := decodeBody(t, w)["token"].(string)
			id, err := auth.NewManager(testSecret, time.Hour).Verify(token)
			if err != nil {
				t.Fatalf("issued token does not verify: %v", err)
			}
			if id.UserID != stored.ID || id.Email != stored.Email || id.Verified {
				t.Fatalf("unexpected identity %+v", id)
			}
		})
	}
}

func TestSignInHandler_TokenFailure(t *testing.T) {
	repo := &fakeUsers{
		getByEmailFn: func(ctx context.Context, email string) (user.User, error) {
			return user.User{ID: "u-1", Email: email, PasswordHash: "hashed:Secret123!"}, nil
		},
	}

	h := handlers.NewAuthHandler(repo, plainHasher{}, failingIssuer{}, handlers.CookieConfig{})
	r := setupRouter(http.MethodPost, "/auth/signin", h.SignIn)

	w := doJSON(r, http.MethodPost, "/auth/signin", `{"email":"a@b.com","password":"Secret123!"}`, "")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusInternalServerError, w.Body.String())
	}
}

func TestSignOutHandler_ClearsCookie(t *testing.T) {
	r := setupRouter(http.MethodPost, "/auth/signout", newAuthHandler(&fakeUsers{}).SignOut)

	w := doJSON(r, http.MethodPost, "/auth/signout", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	cookie := w.Header().Get("Set-Cookie")
	if !strings.HasPrefix(cookie, "Authorization=;") || !strings.Contains(cookie, "Max-Age=0") {
		t.Fatalf("expected cleared Authorization cookie, got %q", cookie)
	}
}

func TestMeHandler(t *testing.T) {
	repo := &fakeUsers{
		getByIDFn: func(ctx context.Context, id string) (user.User, error) {
			if id != "u-1" {
				return user.User{}, user.ErrNotFound
			}
			return user.User{ID: "u-1", Email: "a@b.com", PasswordHash: "hashed:x"}, nil
		},
	}

	r := setupAuthedRouter(http.MethodGet, "/auth/me", newAuthHandler(repo).Me)

	w := doJSON(r, http.MethodGet, "/auth/me", "", bearerFor(t, auth.Identity{UserID: "u-1", Email: "a@b.com"}))
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if w.Header().Get("ETag") == "" {
		t.Fatalf("expected ETag header")
	}
	if strings.Contains(w.Body.String(), "hashed:") {
		t.Fatalf("password hash leaked in body=%s", w.Body.String())
	}

	w = doJSON(r, http.MethodGet, "/auth/me", "", bearerFor(t, auth.Identity{UserID: "gone"}))
	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusNotFound, w.Body.String())
	}

	w = doJSON(r, http.MethodGet, "/auth/me", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}

func TestUpdateProfileHandler(t *testing.T) {
	var gotID string
	var gotChange user.ProfileChange
	repo := &fakeUsers{
		updateProfileFn: func(ctx context.Context, id string, change user.ProfileChange) (user.User, error) {
			gotID, gotChange = id, change
			u := user.User{ID: id}
			change.Apply(&u)
			return u, nil
		},
	}

	r := setupAuthedRouter(http.MethodPatch, "/auth/profile", newAuthHandler(repo).UpdateProfile)

	w := doJSON(r, http.MethodPatch, "/auth/profile", `{"companyName":"Acme","title":"CTO"}`, bearerFor(t, auth.Identity{UserID: "u-1"}))
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if gotID != "u-1" {
		t.Fatalf("updated %q, want u-1", gotID)
	}
	if gotChange.CompanyName == nil || *gotChange.CompanyName != "Acme" {
		t.Fatalf("companyName not carried: %+v", gotChange)
	}
	if gotChange.FirstName != nil || gotChange.Email != nil {
		t.Fatalf("unexpected fields set: %+v", gotChange)
	}
}

func TestChangePasswordHandler(t *testing.T) {
	current := user.User{ID: "u-1", Email: "a@b.com", PasswordHash: "hashed:Secret123!"}

	tests := []struct {
		name       string
		body       string
		updateErr  error
		wantStatus int
		wantCode   string
	}{
		{"ok", `{"oldPassword":"Secret123!","newPassword":"Better456!"}`, nil, http.StatusOK, ""},
		{"wrong old password", `{"oldPassword":"Nope1234!","newPassword":"Better456!"}`, nil, http.StatusUnauthorized, "invalid_credentials"},
		{"weak new password", `{"oldPassword":"Secret123!","newPassword":"short"}`, nil, http.StatusBadRequest, "invalid_request"},
		{"concurrent change", `{"oldPassword":"Secret123!","newPassword":"Better456!"}`, user.ErrStaleWrite, http.StatusConflict, "concurrent_update"},
		{"deleted meanwhile", `{"oldPassword":"Secret123!","newPassword":"Better456!"}`, user.ErrNotFound, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var oldHash, newHash string
			repo := &fakeUsers{
				getByIDFn: func(ctx context.Context, id string) (user.User, error) {
					return current, nil
				},
				updatePasswordFn: func(ctx context.Context, id, o, n string) error {
					oldHash, newHash = o, n
					return tt.updateErr
				},
			}

			r := setupAuthedRouter(http.MethodPatch, "/auth/change-password", newAuthHandler(repo).ChangePassword)
			w := doJSON(r, http.MethodPatch, "/auth/change-password", tt.body, bearerFor(t, auth.Identity{UserID: current.ID}))

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				if got := decodeError(t, w).Error.Code; got != tt.wantCode {
					t.Fatalf("got code %q, want %q", got, tt.wantCode)
				}
			}

			if tt.wantStatus == http.StatusOK {
				if oldHash != current.PasswordHash || newHash != "hashed:Better456!" {
					t.Fatalf("swap used old=%q new=%q", oldHash, newHash)
				}
			}
		})
	}
}

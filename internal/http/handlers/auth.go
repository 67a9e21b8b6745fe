package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	users   UserStore
	hasher  PasswordHasher
	tokens  TokenIssuer
	cookies CookieConfig
}

func NewAuthHandler(users UserStore, hasher PasswordHasher, tokens TokenIssuer, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		cookies: cookies,
	}
}

type SignUpRequest struct {
	Email     user.Email `json:"email" binding:"required,email,max=254"`
	Password  string     `json:"password" binding:"required,password"`
	FirstName string     `json:"firstName" binding:"required,min=2,max=100"`
	LastName  string     `json:"lastName" binding:"required,min=2,max=100"`
}

type SignInRequest struct {
	Email    user.Email `json:"email" binding:"required,email"`
	Password string     `json:"password" binding:"required,max=72"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required,max=72"`
	NewPassword string `json:"newPassword" binding:"required,password"`
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest

	if !BindJSONWithStatus(ctx, &req, http.StatusUnauthorized) {
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "hash_password_failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.users.Create(cctx, user.NewUser{
		Email:        req.Email.String(),
		PasswordHash: hash,
		Profile:      user.Profile{FirstName: req.FirstName, LastName: req.LastName},
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondUnAuthorized(ctx, "email_taken", "Email is already in use.")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "create_user_failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	token, ok := h.issueToken(ctx, u)
	if !ok {
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"token": token,
		"user":  u,
	})
}

func (h *AuthHandler) SignIn(ctx *gin.Context) {
	var req SignInRequest

	if !BindJSONWithStatus(ctx, &req, http.StatusUnauthorized) {
		return
	}

	// short timeout for DB lookup
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	found, err := h.users.GetByEmail(cctx, req.Email.String())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "lookup_user_failed", "err", err)
		RespondInternal(ctx, "Could not sign in")
		return
	}

	ok, err := h.hasher.Verify(req.Password, found.PasswordHash)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "password_digest_unreadable", "user_id", found.ID, "err", err)
	}
	if !ok {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	token, ok := h.issueToken(ctx, found)
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"token": token,
	})
}

func (h *AuthHandler) SignOut(ctx *gin.Context) {
	h.cookies.clearToken(ctx)

	ctx.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	u, ok := h.currentUser(ctx)
	if !ok {
		return
	}

	respondUser(ctx, http.StatusOK, u)
}

func (h *AuthHandler) UpdateProfile(ctx *gin.Context) {
	var req user.UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.users.UpdateProfile(cctx, userID, req.Change())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "update_profile_failed", "err", err)
		RespondInternal(ctx, "Could not update profile")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u})
}

// ChangePassword swaps the hash only if it is still the one that was
// checked against oldPassword.
func (h *AuthHandler) ChangePassword(ctx *gin.Context) {
	var req ChangePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, ok := h.currentUser(ctx)
	if !ok {
		return
	}

	match, err := h.hasher.Verify(req.OldPassword, u.PasswordHash)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "password_digest_unreadable", "user_id", u.ID, "err", err)
	}
	if !match {
		RespondUnAuthorized(ctx, "invalid_credentials", "Old password is incorrect.")
		return
	}

	newHash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "hash_password_failed", "err", err)
		RespondInternal(ctx, "Could not change password")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	err = h.users.UpdatePassword(cctx, u.ID, u.PasswordHash, newHash)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, gin.H{"message": "Password updated"})
	case errors.Is(err, user.ErrStaleWrite):
		RespondConflict(ctx, "concurrent_update", "Password was changed by another request. Please retry.")
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	default:
		slog.ErrorContext(ctx.Request.Context(), "update_password_failed", "err", err)
		RespondInternal(ctx, "Could not change password")
	}
}

func (h *AuthHandler) currentUser(ctx *gin.Context) (user.User, bool) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return user.User{}, false
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return user.User{}, false
		}

		slog.ErrorContext(ctx.Request.Context(), "lookup_user_failed", "err", err)
		RespondInternal(ctx, "Could not load user")
		return user.User{}, false
	}

	return u, true
}

// issueToken mints a token for u and sets the bearer cookie. It writes the
// error response itself when signing fails.
func (h *AuthHandler) issueToken(ctx *gin.Context, u user.User) (string, bool) {
	return issueAndSetCookie(ctx, h.tokens, h.cookies, identityOf(u))
}

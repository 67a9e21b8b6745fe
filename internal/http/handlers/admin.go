package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/admin"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	admins  AdminReader
	hasher  PasswordHasher
	tokens  TokenIssuer
	cookies CookieConfig
}

func NewAdminHandler(admins AdminReader, hasher PasswordHasher, tokens TokenIssuer, cookies CookieConfig) *AdminHandler {
	return &AdminHandler{admins: admins, hasher: hasher, tokens: tokens, cookies: cookies}
}

func (h *AdminHandler) SignIn(ctx *gin.Context) {
	var req SignInRequest

	if !BindJSONWithStatus(ctx, &req, http.StatusUnauthorized) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	a, err := h.admins.GetByEmail(cctx, req.Email.String())
	if err != nil {
		if errors.Is(err, admin.ErrNotFound) {
			RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "lookup_admin_failed", "err", err)
		RespondInternal(ctx, "Could not sign in")
		return
	}

	ok, err := h.hasher.Verify(req.Password, a.PasswordHash)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "password_digest_unreadable", "admin_id", a.ID, "err", err)
	}
	if !ok {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	token, ok := issueAndSetCookie(ctx, h.tokens, h.cookies, auth.Identity{
		UserID:   a.ID,
		Email:    a.Email,
		Verified: true,
		Role:     auth.RoleAdmin,
	})
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"token": token,
		"role":  auth.RoleAdmin,
	})
}

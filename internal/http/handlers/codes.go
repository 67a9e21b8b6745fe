package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/verification"
	"github.com/gin-gonic/gin"
)

// CodesHandler serves the email-verification and password-reset code
// endpoints.
type CodesHandler struct {
	users   UserStore
	codes   CodeLifecycle
	mailer  CodeMailer
	hasher  PasswordHasher
	tokens  TokenIssuer
	cookies CookieConfig
}

func NewCodesHandler(users UserStore, codes CodeLifecycle, mailer CodeMailer, hasher PasswordHasher, tokens TokenIssuer, cookies CookieConfig) *CodesHandler {
	return &CodesHandler{
		users:   users,
		codes:   codes,
		mailer:  mailer,
		hasher:  hasher,
		tokens:  tokens,
		cookies: cookies,
	}
}

type SendCodeRequest struct {
	Email user.Email `json:"email" binding:"required,email"`
}

type VerifyEmailCodeRequest struct {
	Email        user.Email `json:"email" binding:"required,email"`
	ProvidedCode Code       `json:"providedCode" binding:"required,code"`
}

type VerifyResetCodeRequest struct {
	Email        user.Email `json:"email" binding:"required,email"`
	ProvidedCode Code       `json:"providedCode" binding:"required,code"`
	NewPassword  string     `json:"newPassword" binding:"required,password"`
}

type deliverFunc func(ctx context.Context, to, code string, window time.Duration) error

func (h *CodesHandler) SendVerificationCode(ctx *gin.Context) {
	h.send(ctx, user.FlowEmailVerify, h.mailer.SendVerificationCode)
}

func (h *CodesHandler) SendForgotPasswordCode(ctx *gin.Context) {
	h.send(ctx, user.FlowPasswordReset, h.mailer.SendPasswordReset)
}

// send persists a fresh code before mailing it. A delivery failure leaves
// the code stored and answers 502; the caller may ask again.
func (h *CodesHandler) send(ctx *gin.Context, flow user.Flow, deliver deliverFunc) {
	var req SendCodeRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, ok := h.lookup(ctx, req.Email.String())
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	code, err := h.codes.Issue(cctx, u, flow)
	if err != nil {
		if errors.Is(err, verification.ErrAlreadyVerified) {
			RespondError(ctx, http.StatusBadRequest, "already_verified", "You are already verified.", nil)
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "issue_code_failed", "flow", string(flow), "err", err)
		RespondInternal(ctx, "Could not issue code")
		return
	}

	// mail gets its own budget; the store call above may have used most of cctx
	mctx, mcancel := config.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer mcancel()

	if err := deliver(mctx, u.Email, code, h.codes.Window(flow)); err != nil {
		slog.ErrorContext(ctx.Request.Context(), "code_delivery_failed", "flow", string(flow), "user_id", u.ID, "err", err)
		RespondUpstream(ctx, "mail_failed", "Could not send the code. Please try again.")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Code sent"})
}

func (h *CodesHandler) VerifyVerificationCode(ctx *gin.Context) {
	var req VerifyEmailCodeRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, ok := h.lookup(ctx, req.Email.String())
	if !ok {
		return
	}

	if !h.verify(ctx, u, user.FlowEmailVerify, string(req.ProvidedCode), user.Change{}) {
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message":  "Your account has been verified.",
		"verified": true,
	})
}

// VerifyForgotPasswordCode sets the new password in the same write that
// consumes the code and signs the user in.
func (h *CodesHandler) VerifyForgotPasswordCode(ctx *gin.Context) {
	var req VerifyResetCodeRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, ok := h.lookup(ctx, req.Email.String())
	if !ok {
		return
	}

	newHash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "hash_password_failed", "err", err)
		RespondInternal(ctx, "Could not reset password")
		return
	}

	if !h.verify(ctx, u, user.FlowPasswordReset, string(req.ProvidedCode), user.Change{PasswordHash: &newHash}) {
		return
	}

	u.PasswordHash = newHash

	token, ok := issueAndSetCookie(ctx, h.tokens, h.cookies, identityOf(u))
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Password updated",
		"token":   token,
	})
}

// verify runs the lifecycle and writes the failure response for every
// outcome other than Consumed.
func (h *CodesHandler) verify(ctx *gin.Context, u user.User, flow user.Flow, code string, change user.Change) bool {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	outcome, err := h.codes.Verify(cctx, u, flow, code, change)
	if err != nil {
		if errors.Is(err, verification.ErrAlreadyVerified) {
			RespondError(ctx, http.StatusBadRequest, "already_verified", "You are already verified.", nil)
			return false
		}

		slog.ErrorContext(ctx.Request.Context(), "verify_code_failed", "flow", string(flow), "err", err)
		RespondInternal(ctx, "Could not verify code")
		return false
	}

	switch outcome {
	case verification.Consumed:
		return true
	case verification.Expired:
		RespondError(ctx, http.StatusBadRequest, "code_expired", "Code has expired. Request a new one.", nil)
	case verification.Mismatch:
		RespondError(ctx, http.StatusBadRequest, "invalid_code", "Code is incorrect.", nil)
	default:
		RespondError(ctx, http.StatusBadRequest, "no_code_pending", "No code is pending. Request a new one.", nil)
	}

	return false
}

func (h *CodesHandler) lookup(ctx *gin.Context, email string) (user.User, bool) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User does not exist")
			return user.User{}, false
		}

		slog.ErrorContext(ctx.Request.Context(), "lookup_user_failed", "err", err)
		RespondInternal(ctx, "Could not load user")
		return user.User{}, false
	}

	return u, true
}

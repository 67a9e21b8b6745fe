package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// CookieConfig controls the bearer cookie. Secure and HttpOnly are both
// tied to production.
type CookieConfig struct {
	Secure bool
	Domain string
}

func (c CookieConfig) setToken(ctx *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middlewares.AuthCookie, "Bearer "+token, maxAge, "/", c.Domain, c.Secure, c.Secure)
}

func (c CookieConfig) clearToken(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middlewares.AuthCookie, "", -1, "/", c.Domain, c.Secure, c.Secure)
}

func issueAndSetCookie(ctx *gin.Context, tokens TokenIssuer, cookies CookieConfig, id auth.Identity) (string, bool) {
	token, expiresAt, err := tokens.Issue(id)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "issue_token_failed", "err", err)
		RespondInternal(ctx, "Could not generate access token")
		return "", false
	}

	cookies.setToken(ctx, token, expiresAt)

	return token, true
}

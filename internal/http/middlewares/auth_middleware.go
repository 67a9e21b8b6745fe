package middlewares

import (
	"net/http"
	"strings"

	"github.com/geocoder89/accounthub/internal/actorctx"
	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/gin-gonic/gin"
)

// AuthCookie carries "Bearer <jwt>", the same shape as the header.
const AuthCookie = "Authorization"

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

type AuthMiddleware struct {
	tokens TokenVerifier
}

func NewAuthMiddleware(tokens TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			abortUnauthorized(c, "Missing or invalid access token")
			return
		}

		id, err := m.tokens.Verify(raw)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired access token")
			return
		}

		attach(c, id)
		c.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present and
// lets anonymous requests through untouched.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := bearerToken(c); raw != "" {
			if id, err := m.tokens.Verify(raw); err == nil {
				attach(c, id)
			}
		}
		c.Next()
	}
}

func attach(c *gin.Context, id auth.Identity) {
	c.Set(ctxUserIDKey, id.UserID)
	c.Set(ctxEmailKey, id.Email)
	c.Set(ctxRoleKey, id.Role)
	c.Request = c.Request.WithContext(actorctx.WithIdentity(c.Request.Context(), id))
}

// bearerToken prefers the cookie and falls back to the Authorization header.
func bearerToken(c *gin.Context) string {
	if v, err := c.Cookie(AuthCookie); err == nil {
		if tok := stripBearer(v); tok != "" {
			return tok
		}
	}

	return stripBearer(c.GetHeader("Authorization"))
}

func stripBearer(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "Bearer ") {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":      "unauthorized",
			"message":   message,
			"requestId": c.GetString(CtxRequestID),
		},
	})
}

// Helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func RoleFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}

func EmailFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxEmailKey)
	if !ok {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// userETag is a weak validator for one stored version of an account. Every
// store write moves UpdatedAt, so id and UpdatedAt together name a version.
func userETag(u user.User) string {
	return `W/"` + u.ID + "." + strconv.FormatInt(u.UpdatedAt.UnixNano(), 36) + `"`
}

// respondUser writes {"user": u} with an ETag and answers 304 when the
// caller already holds that version.
func respondUser(ctx *gin.Context, status int, u user.User) {
	etag := userETag(u)
	ctx.Header("ETag", etag)

	if ifNoneMatch(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.JSON(status, gin.H{"user": u})
}

func ifNoneMatch(header, current string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	// weak comparison: W/ prefixes are ignored on both sides
	want := opaqueTag(current)
	for _, part := range strings.Split(header, ",") {
		if opaqueTag(part) == want {
			return true
		}
	}

	return false
}

func opaqueTag(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "W/")
}

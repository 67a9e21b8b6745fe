package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	defaultUsersLimit = 50
	maxUsersLimit     = 200
)

type UsersHandler struct {
	users UserStore
}

func NewUsersHandler(users UserStore) *UsersHandler {
	return &UsersHandler{users: users}
}

type userURI struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// List pages through every user ordered by (createdAt, id).
func (h *UsersHandler) List(ctx *gin.Context) {
	limit := defaultUsersLimit
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxUsersLimit {
			RespondBadRequest(ctx, "Invalid limit", gin.H{"limit": "must be between 1 and " + strconv.Itoa(maxUsersLimit)})
			return
		}
		limit = n
	}

	filter := user.ListFilter{Limit: limit + 1}

	if raw := ctx.Query("cursor"); raw != "" {
		cur, err := utils.DecodeUserCursor(raw)
		if err != nil {
			RespondBadRequest(ctx, "Invalid cursor", nil)
			return
		}
		filter.AfterCreatedAt = cur.CreatedAt
		filter.AfterID = cur.ID
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	items, err := h.users.List(cctx, filter)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "list_users_failed", "err", err)
		RespondInternal(ctx, "Could not list users")
		return
	}

	// fetched limit+1 to learn whether another page exists
	var nextCursor *string
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]

		c, err := utils.EncodeUserCursor(last.CreatedAt, last.ID)
		if err != nil {
			RespondInternal(ctx, "Could not build cursor")
			return
		}
		nextCursor = &c
	}

	ctx.JSON(http.StatusOK, gin.H{
		"users":      items,
		"count":      len(items),
		"nextCursor": nextCursor,
	})
}

func (h *UsersHandler) Get(ctx *gin.Context) {
	id, ok := h.authorizedID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, id)
	if err != nil {
		respondUserErr(ctx, err, "Could not load user")
		return
	}

	respondUser(ctx, http.StatusOK, u)
}

// Update lets a user edit their own name and email. Admins may edit anyone.
func (h *UsersHandler) Update(ctx *gin.Context) {
	id, ok := h.authorizedID(ctx)
	if !ok {
		return
	}

	var req user.UpdateUserRequest
	if !BindJSON(ctx, &req) {
		return
	}

	h.apply(ctx, id, req.Change())
}

// AdminUpdate additionally allows toggling the verified flag.
func (h *UsersHandler) AdminUpdate(ctx *gin.Context) {
	var uri userURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		RespondBadRequest(ctx, "Invalid user id", nil)
		return
	}

	var req user.AdminUpdateUserRequest
	if !BindJSON(ctx, &req) {
		return
	}

	h.apply(ctx, uri.ID, req.Change())
}

func (h *UsersHandler) Delete(ctx *gin.Context) {
	var uri userURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		RespondBadRequest(ctx, "Invalid user id", nil)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.users.Delete(cctx, uri.ID); err != nil {
		respondUserErr(ctx, err, "Could not delete user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

func (h *UsersHandler) apply(ctx *gin.Context, id string, change user.ProfileChange) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.users.UpdateProfile(cctx, id, change)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondError(ctx, http.StatusBadRequest, "email_taken", "Email is already in use.", nil)
			return
		}
		respondUserErr(ctx, err, "Could not update user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u})
}

// authorizedID parses :id and allows the caller only when it is their own
// id or they are an admin.
func (h *UsersHandler) authorizedID(ctx *gin.Context) (string, bool) {
	var uri userURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		RespondBadRequest(ctx, "Invalid user id", nil)
		return "", false
	}

	callerID, _ := middlewares.UserIDFromContext(ctx)
	role, _ := middlewares.RoleFromContext(ctx)

	if callerID != uri.ID && role != auth.RoleAdmin {
		RespondForbidden(ctx, "You can only access your own account")
		return "", false
	}

	return uri.ID, true
}

func respondUserErr(ctx *gin.Context, err error, message string) {
	if errors.Is(err, user.ErrNotFound) {
		RespondNotFound(ctx, "User not found")
		return
	}

	slog.ErrorContext(ctx.Request.Context(), "user_store_failed", "err", err)
	RespondInternal(ctx, message)
}

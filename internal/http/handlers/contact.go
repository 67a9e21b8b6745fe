package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/contact"
	"github.com/gin-gonic/gin"
)

type ContactHandler struct {
	contacts ContactStore
	mailer   ContactMailer
}

func NewContactHandler(contacts ContactStore, mailer ContactMailer) *ContactHandler {
	return &ContactHandler{contacts: contacts, mailer: mailer}
}

// Create stores the submission, then notifies the inbox. The submission is
// kept even when the notification fails.
func (h *ContactHandler) Create(ctx *gin.Context) {
	var req contact.CreateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	s, err := h.contacts.Create(cctx, contact.NewFromRequest(req))
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "save_contact_failed", "err", err)
		RespondInternal(ctx, "Could not save your message")
		return
	}

	mctx, mcancel := config.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer mcancel()

	if err := h.mailer.SendContactNotification(mctx, s); err != nil {
		slog.ErrorContext(ctx.Request.Context(), "contact_notification_failed", "contact_id", s.ID, "err", err)
		RespondUpstream(ctx, "mail_failed", "Your message was saved but we could not notify the team.")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Thanks, we will be in touch.",
		"id":      s.ID,
	})
}

func (h *ContactHandler) List(ctx *gin.Context) {
	limit := 100
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			RespondBadRequest(ctx, "Invalid limit", nil)
			return
		}
		limit = n
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	items, err := h.contacts.List(cctx, limit)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "list_contacts_failed", "err", err)
		RespondInternal(ctx, "Could not list contacts")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"contacts": items,
		"count":    len(items),
	})
}
